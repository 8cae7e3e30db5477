/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/juggler"
	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
	"github.com/play-co/NativeInspector/pkg/testutil"
)

const (
	testTimeout        = 20 * time.Second
	testWebSocketPath  = "/ws"
	testReconnectDelay = 50 * time.Millisecond
	testPollInterval   = 10 * time.Millisecond
)

// Fake debug target, the link to it, and a front-end server, wired together the way the run command does it.
type harness struct {
	engine   *v8debug.TestEngine
	link     *v8debug.Link
	selector *TargetSelector
	cache    *profiles.Cache
	registry *Registry
	server   *httptest.Server
}

func newHarness(t *testing.T, ctx context.Context, webRoot string) *harness {
	t.Helper()
	log := testutil.NewLogForTesting(t.Name())

	engine, err := v8debug.NewTestEngine(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	cache, err := profiles.NewCache()
	require.NoError(t, err)

	link := v8debug.NewLink(v8debug.LinkConfig{
		Address:        engine.Address(),
		Log:            log,
		ReconnectDelay: testReconnectDelay,
	})
	selector := juggler.New[*v8debug.Link](log)
	ForgetProfilesOnTargetLoss(selector, cache)
	selector.Add(link)

	linkCtx, cancelLink := context.WithCancel(ctx)
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		_ = link.Run(linkCtx)
	}()

	serverCtx, cancelServer := context.WithCancel(ctx)
	registry := NewRegistry()
	srv := NewServer(serverCtx, ServerConfig{
		WebRoot:       webRoot,
		WebSocketPath: testWebSocketPath,
		Targets:       selector,
		Profiles:      cache,
		Registry:      registry,
		Log:           log,
		PingInterval:  time.Hour,
	})
	server := httptest.NewServer(srv)

	t.Cleanup(func() {
		cancelServer()
		server.Close()
		cancelLink()
		<-linkDone
	})

	return &harness{
		engine:   engine,
		link:     link,
		selector: selector,
		cache:    cache,
		registry: registry,
		server:   server,
	}
}

func (h *harness) waitForTarget(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.link.IsConnected, testTimeout, testPollInterval, "debug target never connected")
}

// Connects a front end and waits until its session is ready to receive notifications.
func (h *harness) connectFrontEnd(t *testing.T, ctx context.Context) *frontEnd {
	t.Helper()

	sessionsBefore := len(h.registry.Sessions())
	fe := dialFrontEnd(t, ctx, strings.Replace(h.server.URL, "http", "ws", 1)+testWebSocketPath)
	require.Eventually(t, func() bool {
		return len(h.registry.Sessions()) > sessionsBefore
	}, testTimeout, testPollInterval, "session was never registered")
	return fe
}

// Front-end message as received by the test client.
type received struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *devtools.Error `json:"error,omitempty"`
}

type frontEnd struct {
	t        *testing.T
	conn     *websocket.Conn
	messages chan *received

	// Messages received but not yet matched by any wait.
	lock    *sync.Mutex
	backlog []*received
}

func dialFrontEnd(t *testing.T, ctx context.Context, url string) *frontEnd {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	fe := &frontEnd{
		t:        t,
		conn:     conn,
		messages: make(chan *received, 1000),
		lock:     &sync.Mutex{},
	}

	go func() {
		defer close(fe.messages)
		for {
			_, data, readErr := conn.ReadMessage()
			if readErr != nil {
				return
			}
			var msg received
			if json.Unmarshal(data, &msg) != nil {
				continue // ping
			}
			fe.messages <- &msg
		}
	}()

	return fe
}

func (fe *frontEnd) send(id int, method string, params any) {
	fe.t.Helper()
	msg := map[string]any{"id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	require.NoError(fe.t, fe.conn.WriteJSON(msg))
}

func (fe *frontEnd) waitFor(ctx context.Context, description string, match func(*received) bool) *received {
	fe.t.Helper()

	fe.lock.Lock()
	for i, msg := range fe.backlog {
		if match(msg) {
			fe.backlog = append(fe.backlog[:i], fe.backlog[i+1:]...)
			fe.lock.Unlock()
			return msg
		}
	}
	fe.lock.Unlock()

	for {
		select {
		case <-ctx.Done():
			require.FailNow(fe.t, "front end did not receive "+description)
			return nil
		case msg, isOpen := <-fe.messages:
			if !isOpen {
				require.FailNow(fe.t, "front-end connection closed while waiting for "+description)
				return nil
			}
			if match(msg) {
				return msg
			}
			fe.lock.Lock()
			fe.backlog = append(fe.backlog, msg)
			fe.lock.Unlock()
		}
	}
}

func (fe *frontEnd) waitForResponse(ctx context.Context, id int) *received {
	fe.t.Helper()
	idStr := json.RawMessage(mustJSON(fe.t, id))
	return fe.waitFor(ctx, "response "+string(idStr), func(msg *received) bool {
		return msg.Type == "" && string(msg.ID) == string(idStr)
	})
}

func (fe *frontEnd) waitForEvent(ctx context.Context, method string) *received {
	fe.t.Helper()
	return fe.waitFor(ctx, "event "+method, func(msg *received) bool {
		return msg.Type == "event" && msg.Method == method
	})
}

// Waits for a console message whose text contains the given fragment.
func (fe *frontEnd) waitForConsole(ctx context.Context, fragment string) devtools.ConsoleMessage {
	fe.t.Helper()
	var params devtools.ConsoleMessageAddedParams
	fe.waitFor(ctx, "console message '"+fragment+"'", func(msg *received) bool {
		if msg.Type != "event" || msg.Method != devtools.EventConsoleMessageAdded {
			return false
		}
		var p devtools.ConsoleMessageAddedParams
		if json.Unmarshal(msg.Params, &p) != nil || p.Message == nil {
			return false
		}
		if strings.Contains(p.Message.Text, fragment) {
			params = p
			return true
		}
		return false
	})
	return *params.Message
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func getTestContext(t *testing.T) context.Context {
	ctx, cancel := testutil.GetTestContext(t, testTimeout)
	t.Cleanup(cancel)
	return ctx
}
