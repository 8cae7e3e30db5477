// Package portforward makes debug targets on USB-attached devices reachable from the host.
package portforward

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Forwarder makes the debug target at the given address reachable.
// Implementations do their work in the background and report failures through logging only.
type Forwarder interface {
	Forward(ctx context.Context, address string)
}

// ADB forwards the target port from an Android device attached over USB using "adb forward".
// At most one adb invocation runs at a time; requests made while one is running are dropped.
type ADB struct {
	log      logr.Logger
	path     string
	inFlight *atomic.Bool

	// Used by tests to replace the command that is run.
	makeCommand func(ctx context.Context, path string, args ...string) *exec.Cmd
}

func NewADB(log logr.Logger, path string) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{
		log:         log.WithName("adb"),
		path:        path,
		inFlight:    &atomic.Bool{},
		makeCommand: exec.CommandContext,
	}
}

func (a *ADB) Forward(ctx context.Context, address string) {
	_, port, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		a.log.Error(splitErr, "Cannot forward a port for an invalid target address", "Address", address)
		return
	}

	if !a.inFlight.CompareAndSwap(false, true) {
		return
	}

	spec := fmt.Sprintf("tcp:%s", port)
	cmd := a.makeCommand(ctx, a.path, "forward", spec, spec)

	go func() {
		defer a.inFlight.Store(false)

		output, runErr := cmd.CombinedOutput()
		if runErr != nil {
			a.log.V(1).Info("Port forwarding failed, is a device attached?", "Port", port, "Error", runErr.Error(), "Output", string(output))
			return
		}
		a.log.V(1).Info("Port forwarded", "Port", port)
	}()
}

// Nop is a Forwarder for targets that are reachable directly.
type Nop struct{}

func (Nop) Forward(context.Context, string) {}

var _ Forwarder = (*ADB)(nil)
var _ Forwarder = Nop{}
