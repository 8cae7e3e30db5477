/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/smallnest/chanx"

	"github.com/play-co/NativeInspector/internal/v8debug"
)

const (
	controlPingName = "ping"
	controlPingData = "wazaaaa"
	controlLogName  = "log"

	ControlTargetConnected    = "targetConnected"
	ControlTargetDisconnected = "targetDisconnected"

	controlQueueInitialCapacity = 8
)

// ControlMessage is the envelope of every control channel message, in both directions.
type ControlMessage struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// ControlServer accepts control connections from tools that drive the inspector.
// Every control connection is pinged periodically and told when the selected debug target
// connects or disconnects.
type ControlServer struct {
	lifetimeCtx  context.Context
	log          logr.Logger
	pingInterval time.Duration
	upgrader     *websocket.Upgrader

	lock     *sync.Mutex
	sessions map[uuid.UUID]*controlSession
}

type controlSession struct {
	id   uuid.UUID
	conn *websocket.Conn
	log  logr.Logger

	// Messages waiting to be written. Only the session writer goroutine writes to the connection.
	outbox *chanx.UnboundedChan[ControlMessage]
	done   <-chan struct{}
}

func NewControlServer(lifetimeCtx context.Context, log logr.Logger, pingInterval time.Duration) *ControlServer {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	return &ControlServer{
		lifetimeCtx:  lifetimeCtx,
		log:          log,
		pingInterval: pingInterval,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		lock:     &sync.Mutex{},
		sessions: make(map[uuid.UUID]*controlSession),
	}
}

// WatchTargets reports connections and disconnections of the selected debug target to control clients.
func (cs *ControlServer) WatchTargets(targets *TargetSelector) {
	targets.Subscribe(cs, v8debug.TopicConnect, func(n v8debug.Notification) {
		cs.Broadcast(ControlTargetConnected, n.Address)
	})
	targets.Subscribe(cs, v8debug.TopicClose, func(n v8debug.Notification) {
		cs.Broadcast(ControlTargetDisconnected, n.Address)
	})
}

func (cs *ControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.log.V(1).Info("Control WebSocket upgrade failed", "RemoteAddress", r.RemoteAddr, "Error", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(cs.lifetimeCtx)
	defer cancel()

	id := uuid.New()
	session := &controlSession{
		id:     id,
		conn:   conn,
		log:    cs.log.WithValues("ControlSession", id.String()),
		outbox: chanx.NewUnboundedChan[ControlMessage](ctx, controlQueueInitialCapacity),
		done:   ctx.Done(),
	}

	cs.lock.Lock()
	cs.sessions[id] = session
	cs.lock.Unlock()

	defer func() {
		cs.lock.Lock()
		delete(cs.sessions, id)
		cs.lock.Unlock()
	}()

	cs.serve(ctx, cancel, session)
}

func (cs *ControlServer) serve(ctx context.Context, cancel context.CancelFunc, session *controlSession) {
	session.log.Info("Controller connected")

	go func() {
		<-ctx.Done()
		_ = session.conn.Close()
	}()

	go func() {
		session.writeMessages(ctx)
		cancel() // A connection that cannot be written to is dropped.
	}()

	go func() {
		ticker := time.NewTicker(cs.pingInterval)
		defer ticker.Stop()
		for {
			session.send(ControlMessage{Name: controlPingName, Data: controlPingData})
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	for {
		_, data, readErr := session.conn.ReadMessage()
		if readErr != nil {
			break
		}

		var msg ControlMessage
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil {
			session.log.V(1).Info("Ignoring malformed control message", "Message", string(data))
			continue
		}

		switch msg.Name {
		case controlLogName:
			session.log.Info("Control log message", "Message", string(data))
		default:
			session.log.Info("Unhandled control message", "Name", msg.Name)
		}
	}

	session.log.Info("Controller disconnected")
}

// Broadcast sends a message to every control connection.
func (cs *ControlServer) Broadcast(name string, data any) {
	cs.lock.Lock()
	sessions := make([]*controlSession, 0, len(cs.sessions))
	for _, s := range cs.sessions {
		sessions = append(sessions, s)
	}
	cs.lock.Unlock()

	cs.log.V(1).Info("Sending control message", "Name", name)
	for _, s := range sessions {
		s.send(ControlMessage{Name: name, Data: data})
	}
}

func (cs *ControlServer) SessionCount() int {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	return len(cs.sessions)
}

// Queues the message for the session writer. Never waits for the network.
func (s *controlSession) send(msg ControlMessage) {
	select {
	case s.outbox.In <- msg:
	case <-s.done:
	}
}

func (s *controlSession) writeMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, isOpen := <-s.outbox.Out:
			if !isOpen {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.V(1).Info("Could not send control message", "Name", msg.Name, "Error", err.Error())
				return
			}
		}
	}
}
