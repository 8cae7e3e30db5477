// Package config holds the startup configuration of the inspector bridge.
//
// Values come from built-in defaults, then from an optional YAML file, then from command line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPAddress    = "0.0.0.0"
	DefaultHTTPPort       = 8003
	DefaultDebugPort      = 9222
	DefaultControlPort    = 9584
	DefaultDiscoveryPort  = 9320
	DefaultWebSocketPath  = "/ws"
	DefaultWebRoot        = "front-end"
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 30 * time.Second
)

type Config struct {
	HTTPAddress string `yaml:"httpAddress"`
	HTTPPort    int    `yaml:"httpPort"`

	// Directory with the front-end files.
	WebRoot string `yaml:"webRoot"`

	// URL path where front ends open their WebSocket.
	WebSocketPath string `yaml:"webSocketPath"`

	// Zero disables the control channel.
	ControlPort int `yaml:"controlPort"`

	// Debug target addresses (host:port). A bare host gets DebugPort.
	Targets   []string `yaml:"targets"`
	DebugPort int      `yaml:"debugPort"`

	// Zero disables target discovery.
	DiscoveryPort int `yaml:"discoveryPort"`

	// Run "adb forward" when a target refuses connections.
	ForwardWithADB bool   `yaml:"forwardWithAdb"`
	ADBPath        string `yaml:"adbPath"`

	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
	PingInterval   time.Duration `yaml:"pingInterval"`

	// Zero means wait for responses until the connection is lost.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

func Default() *Config {
	return &Config{
		HTTPAddress:    DefaultHTTPAddress,
		HTTPPort:       DefaultHTTPPort,
		WebRoot:        DefaultWebRoot,
		WebSocketPath:  DefaultWebSocketPath,
		ControlPort:    DefaultControlPort,
		DebugPort:      DefaultDebugPort,
		DiscoveryPort:  DefaultDiscoveryPort,
		ForwardWithADB: true,
		ADBPath:        "adb",
		ReconnectDelay: DefaultReconnectDelay,
		PingInterval:   DefaultPingInterval,
	}
}

// LoadFile overlays the values from a YAML file onto the configuration.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}
	if err = yaml.Unmarshal(contents, c); err != nil {
		return fmt.Errorf("configuration file '%s' is not valid: %w", path, err)
	}
	return nil
}

// TargetAddresses returns the configured targets in host:port form.
// Without any configured target, the local debug port is used.
func (c *Config) TargetAddresses() []string {
	if len(c.Targets) == 0 {
		return []string{net.JoinHostPort("127.0.0.1", strconv.Itoa(c.DebugPort))}
	}

	retval := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		if _, _, err := net.SplitHostPort(t); err != nil {
			t = net.JoinHostPort(t, strconv.Itoa(c.DebugPort))
		}
		retval = append(retval, t)
	}
	return retval
}

func (c *Config) HTTPListenAddress() string {
	return net.JoinHostPort(c.HTTPAddress, strconv.Itoa(c.HTTPPort))
}

func (c *Config) ControlListenAddress() string {
	return net.JoinHostPort(c.HTTPAddress, strconv.Itoa(c.ControlPort))
}

// Announcements come from helper tools on the same machine.
func (c *Config) DiscoveryListenAddress() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.DiscoveryPort))
}

func (c *Config) Validate() error {
	var errs []error

	if !IsValidPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("HTTP port %d is not valid", c.HTTPPort))
	}
	if c.ControlPort != 0 && !IsValidPort(c.ControlPort) {
		errs = append(errs, fmt.Errorf("control port %d is not valid", c.ControlPort))
	}
	if c.DiscoveryPort != 0 && !IsValidPort(c.DiscoveryPort) {
		errs = append(errs, fmt.Errorf("discovery port %d is not valid", c.DiscoveryPort))
	}
	if !IsValidPort(c.DebugPort) {
		errs = append(errs, fmt.Errorf("debug port %d is not valid", c.DebugPort))
	}
	if c.WebSocketPath == "" || c.WebSocketPath[0] != '/' {
		errs = append(errs, fmt.Errorf("WebSocket path '%s' must start with '/'", c.WebSocketPath))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("reconnect delay must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("ping interval must be positive"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout cannot be negative"))
	}

	for _, t := range c.TargetAddresses() {
		_, portStr, err := net.SplitHostPort(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("target address '%s' is not valid: %w", t, err))
			continue
		}
		if port, convErr := strconv.Atoi(portStr); convErr != nil || !IsValidPort(port) {
			errs = append(errs, fmt.Errorf("target address '%s' does not have a valid port", t))
		}
	}

	return errors.Join(errs...)
}

func IsValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// Flags binds command line flags to configuration values.
// Only flags set explicitly override values loaded from the configuration file.
type Flags struct {
	ConfigFile string

	fs     *pflag.FlagSet
	values Config
}

const (
	configFileFlag     = "config"
	httpAddressFlag    = "http-address"
	httpPortFlag       = "http-port"
	webRootFlag        = "web-root"
	wsPathFlag         = "ws-path"
	controlPortFlag    = "control-port"
	targetFlag         = "target"
	debugPortFlag      = "debug-port"
	discoveryPortFlag  = "discovery-port"
	forwardWithADBFlag = "forward-with-adb"
	adbPathFlag        = "adb-path"
	reconnectDelayFlag = "reconnect-delay"
	requestTimeoutFlag = "request-timeout"
)

func AddFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}

	fs.StringVar(&f.ConfigFile, configFileFlag, "", "Path to a YAML configuration file.")
	fs.StringVar(&f.values.HTTPAddress, httpAddressFlag, d.HTTPAddress, "Address to serve the inspector front end on.")
	fs.IntVar(&f.values.HTTPPort, httpPortFlag, d.HTTPPort, "Port to serve the inspector front end on.")
	fs.StringVar(&f.values.WebRoot, webRootFlag, d.WebRoot, "Directory containing the inspector front-end files.")
	fs.StringVar(&f.values.WebSocketPath, wsPathFlag, d.WebSocketPath, "URL path of the front-end WebSocket endpoint.")
	fs.IntVar(&f.values.ControlPort, controlPortFlag, d.ControlPort, "Port of the control channel (0 disables it).")
	fs.StringArrayVar(&f.values.Targets, targetFlag, nil, "Debug target address (host or host:port). Can be repeated; the first target to connect is used.")
	fs.IntVar(&f.values.DebugPort, debugPortFlag, d.DebugPort, "Debug port used for targets given without a port and for announced devices.")
	fs.IntVar(&f.values.DiscoveryPort, discoveryPortFlag, d.DiscoveryPort, "UDP port to receive device announcements on (0 disables discovery).")
	fs.BoolVar(&f.values.ForwardWithADB, forwardWithADBFlag, d.ForwardWithADB, "Run 'adb forward' when a debug target refuses connections.")
	fs.StringVar(&f.values.ADBPath, adbPathFlag, d.ADBPath, "Path to the adb executable.")
	fs.DurationVar(&f.values.ReconnectDelay, reconnectDelayFlag, d.ReconnectDelay, "Delay between attempts to reconnect to a debug target.")
	fs.DurationVar(&f.values.RequestTimeout, requestTimeoutFlag, 0, "How long to wait for a debug target response (0 waits until the connection is lost).")

	return f
}

// Load builds the configuration: defaults, then the configuration file (if any), then the flags set explicitly.
func (f *Flags) Load() (*Config, error) {
	cfg := Default()

	if f.ConfigFile != "" {
		if err := cfg.LoadFile(f.ConfigFile); err != nil {
			return nil, err
		}
	}

	f.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (f *Flags) apply(cfg *Config) {
	changed := func(name string) bool {
		flag := f.fs.Lookup(name)
		return flag != nil && flag.Changed
	}

	if changed(httpAddressFlag) {
		cfg.HTTPAddress = f.values.HTTPAddress
	}
	if changed(httpPortFlag) {
		cfg.HTTPPort = f.values.HTTPPort
	}
	if changed(webRootFlag) {
		cfg.WebRoot = f.values.WebRoot
	}
	if changed(wsPathFlag) {
		cfg.WebSocketPath = f.values.WebSocketPath
	}
	if changed(controlPortFlag) {
		cfg.ControlPort = f.values.ControlPort
	}
	if changed(targetFlag) {
		cfg.Targets = f.values.Targets
	}
	if changed(debugPortFlag) {
		cfg.DebugPort = f.values.DebugPort
	}
	if changed(discoveryPortFlag) {
		cfg.DiscoveryPort = f.values.DiscoveryPort
	}
	if changed(forwardWithADBFlag) {
		cfg.ForwardWithADB = f.values.ForwardWithADB
	}
	if changed(adbPathFlag) {
		cfg.ADBPath = f.values.ADBPath
	}
	if changed(reconnectDelayFlag) {
		cfg.ReconnectDelay = f.values.ReconnectDelay
	}
	if changed(requestTimeoutFlag) {
		cfg.RequestTimeout = f.values.RequestTimeout
	}
}
