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
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// CommandHandler produces the response to a request received by a TestEngine.
// The engine fills in the sequence numbers, the message type and the command.
// Returning nil means the request is never answered.
type CommandHandler func(req *Request) *Response

// TestEngine is a fake debug target for testing purposes.
// It listens on a loopback port, announces itself with a connect frame to every client,
// records the requests it receives and answers them using registered command handlers.
// Commands without a handler get a successful response with an empty body.
type TestEngine struct {
	listener net.Listener
	log      logr.Logger

	lock     *sync.Mutex
	handlers map[string]CommandHandler
	requests []Request
	conns    []net.Conn
	seq      int
	changed  chan struct{}

	wg sync.WaitGroup
}

func NewTestEngine(log logr.Logger) (*TestEngine, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("test engine could not listen: %w", err)
	}

	e := &TestEngine{
		listener: listener,
		log:      log.WithName("TestEngine"),
		lock:     &sync.Mutex{},
		handlers: make(map[string]CommandHandler),
		changed:  make(chan struct{}),
	}

	e.wg.Add(1)
	go e.acceptLoop()

	return e, nil
}

func (e *TestEngine) Address() string {
	return e.listener.Addr().String()
}

// Handle registers the handler for the command, replacing any previous one.
func (e *TestEngine) Handle(command string, handler CommandHandler) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.handlers[command] = handler
}

// Requests returns the requests received so far with the given command.
// An empty command returns all requests.
func (e *TestEngine) Requests(command string) []Request {
	e.lock.Lock()
	defer e.lock.Unlock()

	var retval []Request
	for _, r := range e.requests {
		if command == "" || r.Command == command {
			retval = append(retval, r)
		}
	}
	return retval
}

// WaitForRequests waits until at least count requests with the given command have been received.
func (e *TestEngine) WaitForRequests(ctx context.Context, command string, count int) ([]Request, error) {
	return waitFor(ctx, e, func() ([]Request, bool) {
		reqs := e.Requests(command)
		return reqs, len(reqs) >= count
	})
}

// WaitForConnections waits until exactly count clients are connected.
func (e *TestEngine) WaitForConnections(ctx context.Context, count int) error {
	_, err := waitFor(ctx, e, func() (struct{}, bool) {
		return struct{}{}, e.ConnectionCount() == count
	})
	return err
}

func (e *TestEngine) ConnectionCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.conns)
}

// SendEvent sends an event to every connected client.
func (e *TestEngine) SendEvent(event string, body any) error {
	rawBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	e.lock.Lock()
	e.seq++
	evt := Event{Seq: e.seq, Type: messageTypeEvent, Event: event, Body: rawBody}
	conns := append([]net.Conn(nil), e.conns...)
	e.lock.Unlock()

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	var errs []error
	for _, conn := range conns {
		if _, writeErr := conn.Write(EncodeFrame(payload)); writeErr != nil {
			errs = append(errs, writeErr)
		}
	}
	return errors.Join(errs...)
}

// SendRaw writes arbitrary bytes to every connected client.
func (e *TestEngine) SendRaw(data []byte) error {
	e.lock.Lock()
	conns := append([]net.Conn(nil), e.conns...)
	e.lock.Unlock()

	var errs []error
	for _, conn := range conns {
		if _, writeErr := conn.Write(data); writeErr != nil {
			errs = append(errs, writeErr)
		}
	}
	return errors.Join(errs...)
}

// DropConnections closes every client connection, simulating the target going away.
// The engine keeps accepting new connections.
func (e *TestEngine) DropConnections() {
	e.lock.Lock()
	conns := e.conns
	e.conns = nil
	e.notifyLocked()
	e.lock.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (e *TestEngine) Close() error {
	err := e.listener.Close()
	e.DropConnections()
	e.wg.Wait()
	return err
}

func (e *TestEngine) acceptLoop() {
	defer e.wg.Done()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return
		}

		e.lock.Lock()
		e.conns = append(e.conns, conn)
		e.notifyLocked()
		e.lock.Unlock()

		e.wg.Add(1)
		go e.serve(conn)
	}
}

func (e *TestEngine) serve(conn net.Conn) {
	defer e.wg.Done()
	defer e.removeConn(conn)

	connect := EncodeFrameWithHeaders(nil,
		Header{Name: "Type", Value: "connect"},
		Header{Name: "V8-Version", Value: "3.14.5"},
		Header{Name: "Protocol-Version", Value: "1"},
		Header{Name: "Embedding-Host", Value: "test-engine"},
	)
	if _, err := conn.Write(connect); err != nil {
		return
	}

	deframer := NewDeframer(e.log)
	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		for _, frame := range deframer.Push(buf[:n]) {
			e.handleRequest(conn, &frame)
		}
		if readErr != nil {
			return
		}
	}
}

func (e *TestEngine) handleRequest(conn net.Conn, frame *Frame) {
	var req Request
	if err := json.Unmarshal(frame.Body, &req); err != nil {
		e.log.Error(err, "Invalid request")
		return
	}

	e.lock.Lock()
	e.requests = append(e.requests, req)
	handler := e.handlers[req.Command]
	e.notifyLocked()
	e.lock.Unlock()

	resp := &Response{Success: true, Body: json.RawMessage(`{}`)}
	if handler != nil {
		resp = handler(&req)
	}
	if resp == nil {
		return
	}

	e.lock.Lock()
	e.seq++
	resp.Seq = e.seq
	e.lock.Unlock()
	resp.Type = messageTypeResponse
	resp.RequestSeq = req.Seq
	resp.Command = req.Command

	payload, err := json.Marshal(resp)
	if err != nil {
		e.log.Error(err, "Could not serialize response")
		return
	}
	_, _ = conn.Write(EncodeFrame(payload))
}

func (e *TestEngine) removeConn(conn net.Conn) {
	_ = conn.Close()

	e.lock.Lock()
	defer e.lock.Unlock()
	for i, c := range e.conns {
		if c == conn {
			e.conns = append(e.conns[:i], e.conns[i+1:]...)
			break
		}
	}
	e.notifyLocked()
}

// Wakes up everyone waiting for the engine state to change.
func (e *TestEngine) notifyLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *TestEngine) changedChan() <-chan struct{} {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.changed
}

func waitFor[T any](ctx context.Context, e *TestEngine, check func() (T, bool)) (T, error) {
	for {
		changed := e.changedChan()
		if v, done := check(); done {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-changed:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// JSONBody serializes v for use as a response body. It panics if v cannot be serialized.
func JSONBody(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
