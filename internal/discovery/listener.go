// Package discovery lets devices announce themselves as debug targets.
//
// A device (or a helper script running on its behalf) sends a UDP datagram containing
// {"name":"connect","addr":"<device IP>"} to the discovery port; the debug target at
// <device IP>:<debug port> is then added to the candidate targets.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-logr/logr"
)

const (
	DefaultPort = 9320

	commandConnect  = "connect"
	maxDatagramSize = 64 * 1024
)

type Command struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

type Listener struct {
	address   string
	debugPort int
	log       logr.Logger
	onTarget  func(address string)
}

// NewListener creates a listener that will receive datagrams on address (host:port)
// and call onTarget with the debug target address for every connect command.
func NewListener(address string, debugPort int, log logr.Logger, onTarget func(address string)) *Listener {
	return &Listener{
		address:   address,
		debugPort: debugPort,
		log:       log,
		onTarget:  onTarget,
	}
}

// Run receives datagrams until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", l.address)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("could not listen for target announcements on %s: %w", l.address, err)
	}
	return l.serve(ctx, conn)
}

func (l *Listener) serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	l.log.Info("Listening for target announcements", "Address", conn.LocalAddr().String())

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, readErr := conn.ReadFrom(buf)
		if readErr != nil {
			if ctx.Err() != nil || errors.Is(readErr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to receive target announcement: %w", readErr)
		}

		l.handleDatagram(buf[:n], from)
	}
}

func (l *Listener) handleDatagram(data []byte, from net.Addr) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		l.log.Info("Ignoring datagram that is not a JSON command", "From", from.String())
		return
	}

	switch cmd.Name {
	case commandConnect:
		if net.ParseIP(cmd.Addr) == nil {
			l.log.Info("Ignoring connect command with an invalid address", "Addr", cmd.Addr)
			return
		}
		target := net.JoinHostPort(cmd.Addr, strconv.Itoa(l.debugPort))
		l.log.Info("Target announced", "Target", target)
		l.onTarget(target)
	default:
		l.log.Info("Ignoring unknown command", "Name", cmd.Name, "From", from.String())
	}
}

// Send announces the device with the given IP address to the listener at address.
func Send(ctx context.Context, address string, deviceIP string) error {
	payload, err := json.Marshal(Command{Name: commandConnect, Addr: deviceIP})
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, dialErr := d.DialContext(ctx, "udp", address)
	if dialErr != nil {
		return fmt.Errorf("could not reach the inspector at %s: %w", address, dialErr)
	}
	defer conn.Close()

	if _, writeErr := conn.Write(payload); writeErr != nil {
		return fmt.Errorf("could not send the announcement: %w", writeErr)
	}
	return nil
}
