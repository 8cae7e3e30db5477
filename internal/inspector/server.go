/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/play-co/NativeInspector/internal/profiles"
)

const websocketBufferSize = 64 * 1024

type ServerConfig struct {
	// Directory with the front-end files.
	WebRoot string

	// URL path where front ends open their WebSocket.
	WebSocketPath string

	Targets  *TargetSelector
	Profiles *profiles.Cache
	Registry *Registry
	Log      logr.Logger

	PingInterval time.Duration
}

// Server serves the front-end files and accepts front-end WebSocket connections.
type Server struct {
	lifetimeCtx context.Context
	cfg         ServerConfig
	log         logr.Logger
	files       http.Handler
	upgrader    *websocket.Upgrader
}

// NewServer returns a handler for the front end. Sessions end when lifetimeCtx is cancelled.
func NewServer(lifetimeCtx context.Context, cfg ServerConfig) *Server {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	return &Server{
		lifetimeCtx: lifetimeCtx,
		cfg:         cfg,
		log:         cfg.Log,
		files:       http.FileServer(http.Dir(cfg.WebRoot)),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  websocketBufferSize,
			WriteBufferSize: websocketBufferSize,
			// The front end is served from this server, but may be opened through any host name.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == srv.cfg.WebSocketPath && websocket.IsWebSocketUpgrade(r) {
		srv.serveSession(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Expires", "-1")
	srv.files.ServeHTTP(w, r)
}

func (srv *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		srv.log.V(1).Info("Front-end WebSocket upgrade failed", "RemoteAddress", r.RemoteAddr, "Error", err.Error())
		return
	}

	session := NewSession(conn, SessionConfig{
		Targets:      srv.cfg.Targets,
		Profiles:     srv.cfg.Profiles,
		Registry:     srv.cfg.Registry,
		Log:          srv.log.WithName("Session"),
		PingInterval: srv.cfg.PingInterval,
	})
	session.Serve(srv.lifetimeCtx)
}
