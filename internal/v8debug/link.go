/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/smallnest/chanx"

	"github.com/play-co/NativeInspector/internal/pubsub"
	"github.com/play-co/NativeInspector/pkg/resiliency"
)

const (
	DefaultReconnectDelay = 5 * time.Second

	readBufferSize            = 64 * 1024
	eventQueueInitialCapacity = 16
)

var (
	ErrLinkClosed     = errors.New("debug link connection was lost before the response arrived")
	ErrNotConnected   = errors.New("debug link is not connected")
	ErrAlreadyRunning = errors.New("debug link is already running")
	ErrRequestTimeout = errors.New("timed out waiting for a debug target response")
)

// Forwarder makes a debug target reachable, for example by bridging a port over USB.
// It is invoked when connecting to the target is refused.
type Forwarder interface {
	Forward(ctx context.Context, address string)
}

type LinkConfig struct {
	// Address of the debug target, in host:port form.
	Address string

	Log logr.Logger

	// Optional.
	Forwarder Forwarder

	// How long to wait before reconnecting after the connection is lost or refused.
	// Defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// How long to wait for a response to a request. Zero means wait until the response
	// arrives or the connection is lost.
	RequestTimeout time.Duration
}

// Link is a connection to a single debug target that survives target restarts.
type Link struct {
	address        string
	log            logr.Logger
	forwarder      Forwarder
	reconnectDelay time.Duration
	requestTimeout time.Duration

	bus        *pubsub.Bus[Notification]
	correlator *correlator

	breakpointsActive *atomic.Bool

	// Protects the fields below.
	lock      *sync.Mutex
	conn      net.Conn
	connected bool
	running   bool

	writeLock *sync.Mutex
}

func NewLink(cfg LinkConfig) *Link {
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}

	l := &Link{
		address:           cfg.Address,
		log:               cfg.Log.WithValues("Target", cfg.Address),
		forwarder:         cfg.Forwarder,
		reconnectDelay:    reconnectDelay,
		requestTimeout:    cfg.RequestTimeout,
		bus:               pubsub.NewBus[Notification](),
		correlator:        newCorrelator(),
		breakpointsActive: &atomic.Bool{},
		lock:              &sync.Mutex{},
		writeLock:         &sync.Mutex{},
	}
	l.breakpointsActive.Store(true)
	return l
}

func (l *Link) Address() string {
	return l.address
}

// IsConnected reports whether the target has announced itself on the current connection.
func (l *Link) IsConnected() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.connected
}

func (l *Link) Subscribe(subscriber any, topic string, cb func(Notification)) {
	l.bus.Subscribe(subscriber, topic, cb)
}

func (l *Link) Unsubscribe(subscriber any) {
	l.bus.Unsubscribe(subscriber)
}

// SetBreakpointsActive controls whether the target stays paused when it hits a breakpoint.
// When breakpoints are inactive, every break is resumed automatically.
func (l *Link) SetBreakpointsActive(active bool) {
	l.breakpointsActive.Store(active)
}

func (l *Link) BreakpointsActive() bool {
	return l.breakpointsActive.Load()
}

// Run connects to the target and keeps reconnecting whenever the connection is lost,
// until the context is cancelled. It returns nil when the context is cancelled.
func (l *Link) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.running {
		l.lock.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.lock.Unlock()

	defer func() {
		l.lock.Lock()
		l.running = false
		l.lock.Unlock()
	}()

	l.log.V(1).Info("Debug link started")

	for {
		conn, dialErr := l.dial(ctx)
		if dialErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("could not connect to debug target %s: %w", l.address, dialErr)
		}

		l.serve(ctx, conn)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Link) dial(ctx context.Context) (net.Conn, error) {
	return resiliency.RetryGet(ctx, resiliency.FixedDelay(l.reconnectDelay), func() (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", l.address)
		if err == nil {
			return conn, nil
		}

		if isConnectionRefused(err) && l.forwarder != nil {
			// Nothing listens on the target port. This is what happens when a device is not bridged (yet).
			l.forwarder.Forward(ctx, l.address)
		}
		l.log.V(1).Info("Could not connect to debug target, will retry", "Error", err.Error())
		return nil, err
	})
}

// Services one connection until it is closed or the context is cancelled.
func (l *Link) serve(ctx context.Context, conn net.Conn) {
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	l.lock.Lock()
	l.conn = conn
	l.lock.Unlock()
	l.log.V(1).Info("Debug target connection established, waiting for the target to announce itself")

	events := chanx.NewUnboundedChan[*Event](connCtx, eventQueueInitialCapacity)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		l.eventWorker(connCtx, events.Out)
	}()

	go func() {
		<-connCtx.Done()
		_ = conn.Close() // Unblocks the read below.
	}()

	deframer := NewDeframer(l.log)
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			for _, frame := range deframer.Push(buf[:n]) {
				l.handleFrame(connCtx, &frame, events.In)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, net.ErrClosed) {
				l.log.Info("Debug target connection failed", "Error", readErr.Error())
			}
			break
		}
	}

	deframer.Reset()
	l.onConnectionClosed(conn)
	cancelConn()
	<-workerDone
}

func (l *Link) onConnectionClosed(conn net.Conn) {
	_ = conn.Close()

	l.lock.Lock()
	wasConnected := l.connected
	l.connected = false
	l.conn = nil
	// Clearing under the lock guarantees no request can register against the dead connection.
	l.correlator.Clear()
	l.lock.Unlock()

	if wasConnected {
		l.log.Info("Debug target disconnected")
		l.bus.Publish(TopicClose, Notification{Kind: KindClose, Address: l.address})
	}
}

func (l *Link) handleFrame(ctx context.Context, frame *Frame, events chan<- *Event) {
	if frame.IsConnect() {
		l.onConnectFrame(frame)
		return
	}

	var env envelope
	if err := json.Unmarshal(frame.Body, &env); err != nil {
		l.log.Info("Debug target sent a frame that is not a JSON object", "Body", string(frame.Body))
		return
	}

	switch env.Type {
	case messageTypeResponse:
		var resp Response
		if err := json.Unmarshal(frame.Body, &resp); err != nil {
			l.log.Error(err, "Could not decode debug target response")
			return
		}
		if !resp.Success {
			l.log.Info("Debug target reported a failed request", "Command", resp.Command, "Message", resp.Message)
		}
		if !l.correlator.Resolve(resp.RequestSeq, &resp) {
			l.log.V(1).Info("Response does not match any pending request", "RequestSeq", resp.RequestSeq)
		}

	case messageTypeEvent:
		var evt Event
		if err := json.Unmarshal(frame.Body, &evt); err != nil {
			l.log.Error(err, "Could not decode debug target event")
			return
		}
		// Events are handled on a separate goroutine because handling them
		// involves requests whose responses arrive on this one.
		select {
		case events <- &evt:
		case <-ctx.Done():
		}

	default:
		l.log.V(1).Info("Ignoring frame of unknown type", "Type", env.Type)
	}
}

func (l *Link) onConnectFrame(frame *Frame) {
	l.lock.Lock()
	if l.connected {
		l.lock.Unlock()
		return
	}
	l.connected = true
	l.lock.Unlock()

	version, _ := frame.Header("V8-Version")
	l.log.Info("Debug target connected", "V8Version", version)

	l.bus.Publish(TopicConnect, Notification{Kind: KindConnect, Address: l.address})
}

func (l *Link) eventWorker(ctx context.Context, events <-chan *Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, isOpen := <-events:
			if !isOpen {
				return
			}
			_ = resiliency.CatchPanic(l.log, func() {
				l.handleEvent(ctx, evt)
			})
		}
	}
}

func (l *Link) publishEvent(n Notification) {
	n.Address = l.address
	l.bus.Publish(TopicEvent, n)
}

// Sends a request and waits for the response. A response with success == false is not an error;
// errors are reserved for requests that could not be sent or got no response at all.
func (l *Link) request(ctx context.Context, command string, args any) (*Response, error) {
	req := &Request{Command: command, Arguments: args}

	l.lock.Lock()
	conn := l.conn
	if conn == nil {
		l.lock.Unlock()
		return nil, fmt.Errorf("%s: %w", command, ErrNotConnected)
	}
	respCh := l.correlator.Send(req)
	l.lock.Unlock()

	payload, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		l.correlator.Forget(req.Seq)
		return nil, fmt.Errorf("could not serialize '%s' request: %w", command, marshalErr)
	}

	l.writeLock.Lock()
	_, writeErr := conn.Write(EncodeFrame(payload))
	l.writeLock.Unlock()
	if writeErr != nil {
		l.correlator.Forget(req.Seq)
		return nil, fmt.Errorf("could not send '%s' request: %w", command, writeErr)
	}
	l.log.V(1).Info("Request sent", "Command", command, "Seq", req.Seq)

	var timeout <-chan time.Time
	if l.requestTimeout > 0 {
		timer := time.NewTimer(l.requestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp, isOpen := <-respCh:
		if !isOpen {
			return nil, fmt.Errorf("%s: %w", command, ErrLinkClosed)
		}
		return resp, nil
	case <-timeout:
		l.correlator.Forget(req.Seq)
		return nil, fmt.Errorf("%s: %w", command, ErrRequestTimeout)
	case <-ctx.Done():
		l.correlator.Forget(req.Seq)
		return nil, ctx.Err()
	}
}
