/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/smallnest/chanx"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/juggler"
	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
	"github.com/play-co/NativeInspector/pkg/resiliency"
)

// TargetSelector chooses the debug target all sessions talk to.
type TargetSelector = juggler.Juggler[*v8debug.Link]

const (
	DefaultPingInterval = 30 * time.Second

	writeTimeout                = 10 * time.Second
	sessionQueueInitialCapacity = 32
	pingPayload                 = "ping"
)

var errNoTarget = errors.New("no debug target has been configured")

// Work item executed on the session loop.
type sessionTask func(ctx context.Context)

type SessionConfig struct {
	Targets  *TargetSelector
	Profiles *profiles.Cache
	Registry *Registry
	Log      logr.Logger

	// Defaults to DefaultPingInterval.
	PingInterval time.Duration
}

// Session serves one front-end connection.
//
// Front-end requests and target notifications are queued and processed one at a time
// on the session loop, so the session state needs no locking.
type Session struct {
	id      uuid.UUID
	started time.Time
	log     logr.Logger

	conn      *websocket.Conn
	writeLock *sync.Mutex

	targets      *TargetSelector
	profiles     *profiles.Cache
	registry     *Registry
	pingInterval time.Duration

	queue *chanx.UnboundedChan[sessionTask]

	// Only accessed on the session loop.
	loaded        bool
	connected     bool
	recording     *cpuRecording
	afterResponse []sessionTask
}

func NewSession(conn *websocket.Conn, cfg SessionConfig) *Session {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	id := uuid.New()
	return &Session{
		id:           id,
		started:      time.Now(),
		log:          cfg.Log.WithValues("Session", id.String()),
		conn:         conn,
		writeLock:    &sync.Mutex{},
		targets:      cfg.Targets,
		profiles:     cfg.Profiles,
		registry:     cfg.Registry,
		pingInterval: pingInterval,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Serve processes the connection until the front end goes away or the context is cancelled.
func (s *Session) Serve(ctx context.Context) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("Front end connected", "RemoteAddress", s.conn.RemoteAddr().String())

	s.queue = chanx.NewUnboundedChan[sessionTask](sessionCtx, sessionQueueInitialCapacity)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.loop(sessionCtx)
	}()

	s.targets.Subscribe(s, v8debug.TopicConnect, func(v8debug.Notification) {
		s.enqueue(sessionCtx, s.onTargetConnect)
	})
	s.targets.Subscribe(s, v8debug.TopicClose, func(v8debug.Notification) {
		s.enqueue(sessionCtx, s.onTargetClose)
	})
	s.targets.Subscribe(s, v8debug.TopicEvent, func(n v8debug.Notification) {
		s.enqueue(sessionCtx, func(context.Context) { s.onTargetEvent(n) })
	})
	defer s.targets.Unsubscribe(s)

	s.registry.Add(s)
	defer s.registry.Remove(s)

	// The target usually connects before the front end does.
	if link, found := s.targets.Active(); found && link.IsConnected() {
		s.enqueue(sessionCtx, s.onTargetConnect)
	}

	go s.ping(sessionCtx)
	go func() {
		<-sessionCtx.Done()
		_ = s.conn.Close() // Unblocks the read loop.
	}()

	s.readMessages(sessionCtx)

	cancel()
	<-loopDone
	s.log.Info("Front end disconnected")
}

func (s *Session) readMessages(ctx context.Context) {
	for {
		msgType, data, readErr := s.conn.ReadMessage()
		if readErr != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.V(1).Info("Front-end connection failed", "Error", readErr.Error())
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var msg devtools.Message
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil || msg.Method == "" {
			s.log.V(1).Info("Ignoring front-end message without a method", "Message", string(data))
			continue
		}

		s.enqueue(ctx, func(ctx context.Context) { s.dispatch(ctx, &msg) })
	}
}

func (s *Session) enqueue(ctx context.Context, task sessionTask) {
	select {
	case s.queue.In <- task:
	case <-ctx.Done():
	}
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, isOpen := <-s.queue.Out:
			if !isOpen {
				return
			}
			_ = resiliency.CatchPanic(s.log, func() { task(ctx) })
		}
	}
}

func (s *Session) ping(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage([]byte(pingPayload)); err != nil {
				s.log.V(1).Info("Could not ping the front end", "Error", err.Error())
			}
		}
	}
}

func (s *Session) writeMessage(payload []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) writeJSON(v any) {
	payload, marshalErr := json.Marshal(v)
	if marshalErr != nil {
		s.log.Error(marshalErr, "Could not serialize front-end message")
		return
	}
	if writeErr := s.writeMessage(payload); writeErr != nil {
		s.log.V(1).Info("Could not send message to the front end", "Error", writeErr.Error())
	}
}

// SendEvent sends a protocol event to the front end. It is safe to call from any goroutine.
func (s *Session) SendEvent(method string, params any) {
	s.writeJSON(devtools.NewEvent(method, params))
}

func (s *Session) console(level devtools.ConsoleLevel, text string) {
	s.SendEvent(devtools.EventConsoleMessageAdded, devtools.ConsoleMessageAddedParams{
		Message: devtools.NewConsoleMessage(level, text),
	})
}

func (s *Session) consolef(level devtools.ConsoleLevel, format string, args ...any) {
	s.console(level, fmt.Sprintf(format, args...))
}

// Runs the task on the session loop after the response to the current request has been sent.
func (s *Session) after(task sessionTask) {
	s.afterResponse = append(s.afterResponse, task)
}

// Returns the selected debug target. The target may be disconnected, in which case
// requests fail with v8debug.ErrNotConnected.
func (s *Session) link() (*v8debug.Link, error) {
	link, found := s.targets.Active()
	if !found {
		return nil, errNoTarget
	}
	return link, nil
}

func (s *Session) onTargetConnect(ctx context.Context) {
	if s.connected {
		return
	}
	s.connected = true
	s.log.V(1).Info("Debug target connected")

	if s.loaded {
		s.console(devtools.ConsoleLevelInfo, "--- Device reconnected.")
		s.loadTarget(ctx)
	}
}

func (s *Session) onTargetClose(_ context.Context) {
	if !s.connected {
		return
	}
	s.connected = false
	s.recording = nil
	s.log.V(1).Info("Debug target disconnected")

	if s.loaded {
		s.console(devtools.ConsoleLevelError, "--- Device disconnected.")
		s.resetPanels()
	}
}

// Called when the front end has finished loading.
func (s *Session) onLoad(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	s.console(devtools.ConsoleLevelInfo, "The Native Web Inspector allows you to debug and profile JavaScript code running live on a device.")
	s.console(devtools.ConsoleLevelInfo, "The application must have been built with the --debug flag.")
	s.console(devtools.ConsoleLevelInfo, "And it can only debug one application at a time, so be sure to force close other debug-mode applications.")

	if s.connected {
		s.console(devtools.ConsoleLevelInfo, "--- Device is connected.")
		s.loadTarget(ctx)
	} else {
		s.console(devtools.ConsoleLevelError, "--- Device is not connected yet.")
	}
}

func (s *Session) onTargetEvent(n v8debug.Notification) {
	switch n.Kind {
	case v8debug.KindPaused:
		s.SendEvent(devtools.EventDebuggerPaused, n.Paused)
	case v8debug.KindResumed:
		s.SendEvent(devtools.EventDebuggerResumed, nil)
	case v8debug.KindScriptParsed:
		s.SendEvent(devtools.EventDebuggerScriptParsed, n.Script)
	case v8debug.KindConsole:
		s.SendEvent(devtools.EventConsoleMessageAdded, devtools.ConsoleMessageAddedParams{Message: n.Console})
	default:
		s.log.V(1).Info("Ignoring debug target notification", "Kind", n.Kind.String())
	}
}

// Clears the script list and the profiles panel.
func (s *Session) resetPanels() {
	s.SendEvent(devtools.EventDebuggerGlobalObjectCleared, nil)
	s.SendEvent(devtools.EventProfilerResetProfiles, nil)
}

// Brings a freshly loaded front end in sync with the target.
func (s *Session) loadTarget(ctx context.Context) {
	s.resetPanels()

	link, err := s.link()
	if err != nil {
		s.log.Error(err, "Cannot load debug target state")
		return
	}

	s.clearBreakpoints(ctx, link)

	if resp, resumeErr := link.Resume(ctx); resumeErr != nil {
		s.log.Info("Could not resume the debug target", "Error", resumeErr.Error())
	} else if !resp.Success {
		s.log.V(1).Info("Debug target was not suspended", "Message", resp.Message)
	}

	s.announceScripts(ctx, link)
	s.announceProfileHeaders(ctx, link)
	s.announceVersion(ctx, link)
}

// Breakpoints left over from an earlier front end would stop the target with no way to remove them.
func (s *Session) clearBreakpoints(ctx context.Context, link *v8debug.Link) {
	resp, err := link.ListBreakpoints(ctx)
	if err != nil || !resp.Success {
		s.log.Info("Could not list breakpoints", "Error", describeFailure(resp, err))
		return
	}

	var body v8debug.ListBreakpointsBody
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		s.log.Error(decodeErr, "Could not read the breakpoint list")
		return
	}

	for _, bp := range body.Breakpoints {
		clearResp, clearErr := link.ClearBreakpoint(ctx, bp.Number)
		if clearErr != nil || !clearResp.Success {
			s.log.Info("Could not clear breakpoint", "Breakpoint", bp.Number, "Error", describeFailure(clearResp, clearErr))
		}
	}
}

func (s *Session) announceScripts(ctx context.Context, link *v8debug.Link) {
	resp, err := link.Scripts(ctx)
	if err != nil || !resp.Success {
		s.log.Info("Could not list scripts", "Error", describeFailure(resp, err))
		return
	}

	var scripts []v8debug.ScriptInfo
	if decodeErr := resp.DecodeBody(&scripts); decodeErr != nil {
		s.log.Error(decodeErr, "Could not read the script list")
		return
	}

	for i := range scripts {
		if scripts[i].Type != "" && scripts[i].Type != "script" {
			continue
		}
		s.SendEvent(devtools.EventDebuggerScriptParsed, v8debug.ScriptParsed(&scripts[i]))
	}
}

func (s *Session) announceProfileHeaders(ctx context.Context, link *v8debug.Link) {
	resp, err := link.ProfileHeaders(ctx)
	switch {
	case err != nil:
		s.log.Info("Could not list profiles", "Error", err.Error())
	case !resp.Success:
		s.log.V(1).Info("Debug target does not report profiles", "Message", resp.Message)
	default:
		var headers []v8debug.ProfileHeaderInfo
		if decodeErr := resp.DecodeBody(&headers); decodeErr != nil {
			s.log.Error(decodeErr, "Could not read the profile list")
			break
		}
		for _, h := range headers {
			kind, kindErr := profiles.ParseKind(h.Type)
			if kindErr != nil {
				s.log.V(1).Info("Ignoring profile of unknown kind", "Kind", h.Type, "UID", h.UID)
				continue
			}
			s.profiles.GotHeader(kind, h.UID, h.Title)
		}
	}

	for _, h := range s.profiles.Headers() {
		s.SendEvent(devtools.EventProfilerAddProfileHeader, devtools.ProfileHeaderParams{Header: profileHeader(h)})
	}
}

func (s *Session) announceVersion(ctx context.Context, link *v8debug.Link) {
	resp, err := link.Version(ctx)
	if err != nil || !resp.Success {
		s.log.Info("Could not get the debug target version", "Error", describeFailure(resp, err))
		return
	}

	var body v8debug.VersionBody
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		s.log.Error(decodeErr, "Could not read the debug target version")
		return
	}
	s.consolef(devtools.ConsoleLevelInfo, "--- Device JavaScript engine: V8 %s", body.V8Version)
}

// Describes why a request failed, for logging.
func describeFailure(resp *v8debug.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return "request failed"
}
