/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/play-co/NativeInspector/internal/config"
	"github.com/play-co/NativeInspector/internal/discovery"
	"github.com/play-co/NativeInspector/internal/inspector"
	"github.com/play-co/NativeInspector/internal/juggler"
	"github.com/play-co/NativeInspector/internal/portforward"
	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func NewRunCommand(log logr.Logger) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the inspector",
		Long: `Runs the inspector.

	Serves the front end, connects to the debug targets and relays traffic between them
	until the process is interrupted.`,
		Args: cobra.NoArgs,
	}

	flags := config.AddFlags(runCmd.Flags())
	runCmd.RunE = runInspector(log, flags)

	return runCmd
}

func runInspector(log logr.Logger, flags *config.Flags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		log = log.WithName("run")

		cfg, cfgErr := flags.Load()
		if cfgErr != nil {
			log.Error(cfgErr, "Invocation parameters are invalid")
			return cfgErr
		}

		cache, cacheErr := profiles.NewCache()
		if cacheErr != nil {
			return fmt.Errorf("could not create the profile cache: %w", cacheErr)
		}

		runCtx, cancelRun := context.WithCancel(cmd.Context())
		defer cancelRun()
		group, ctx := errgroup.WithContext(runCtx)

		// Startup failures must stop the links and servers that were already started.
		abort := func(err error) error {
			cancelRun()
			_ = group.Wait()
			return err
		}

		var forwarder v8debug.Forwarder = portforward.Nop{}
		if cfg.ForwardWithADB {
			forwarder = portforward.NewADB(log.WithName("ADB"), cfg.ADBPath)
		}

		selector := juggler.New[*v8debug.Link](log.WithName("Juggler"))
		targets := inspector.NewTargets(ctx, group, inspector.TargetsConfig{
			Selector:       selector,
			Profiles:       cache,
			Forwarder:      forwarder,
			Log:            log.WithName("Link"),
			ReconnectDelay: cfg.ReconnectDelay,
			RequestTimeout: cfg.RequestTimeout,
		})
		for _, address := range cfg.TargetAddresses() {
			targets.Add(address)
		}

		frontEnd := inspector.NewServer(ctx, inspector.ServerConfig{
			WebRoot:       cfg.WebRoot,
			WebSocketPath: cfg.WebSocketPath,
			Targets:       selector,
			Profiles:      cache,
			Registry:      inspector.NewRegistry(),
			Log:           log.WithName("FrontEnd"),
			PingInterval:  cfg.PingInterval,
		})
		frontEndAddress, serveErr := serveHTTP(ctx, group, log, cfg.HTTPListenAddress(), frontEnd)
		if serveErr != nil {
			return abort(serveErr)
		}
		log.Info("Inspector front end is ready", "URL", fmt.Sprintf("http://%s/", frontEndAddress))

		if cfg.ControlPort != 0 {
			control := inspector.NewControlServer(ctx, log.WithName("Control"), cfg.PingInterval)
			control.WatchTargets(selector)
			controlAddress, controlErr := serveHTTP(ctx, group, log, cfg.ControlListenAddress(), control)
			if controlErr != nil {
				return abort(controlErr)
			}
			log.Info("Control channel is ready", "Address", controlAddress)
		}

		if cfg.DiscoveryPort != 0 {
			listener := discovery.NewListener(cfg.DiscoveryListenAddress(), cfg.DebugPort, log.WithName("Discovery"), func(address string) {
				if targets.Add(address) {
					log.Info("Device announced itself", "Target", address)
				}
			})
			group.Go(func() error {
				return listener.Run(ctx)
			})
		}

		err := group.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(err, "Inspector stopped because of an error")
			return err
		}

		log.Info("Inspector stopped")
		return nil
	}
}

// Listens right away so that address problems are reported before anything else starts,
// then serves in the group until the context is cancelled.
func serveHTTP(ctx context.Context, group *errgroup.Group, log logr.Logger, address string, handler http.Handler) (string, error) {
	lc := net.ListenConfig{}
	listener, listenErr := lc.Listen(ctx, "tcp", address)
	if listenErr != nil {
		log.Error(listenErr, "Could not listen", "Address", address)
		return "", listenErr
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group.Go(func() error {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("server at %s failed: %w", address, serveErr)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// WebSocket connections are hijacked, Shutdown does not wait for them.
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			log.V(1).Info("Server did not shut down cleanly", "Address", address, "Error", shutdownErr.Error())
		}
		return nil
	})

	return listener.Addr().String(), nil
}
