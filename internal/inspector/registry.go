/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the live front-end sessions.
type Registry struct {
	lock     *sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		lock:     &sync.Mutex{},
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Remove(s *Session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.sessions, s.ID())
}

// Sessions returns the live sessions, oldest first.
func (r *Registry) Sessions() []*Session {
	r.lock.Lock()
	defer r.lock.Unlock()

	retval := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		retval = append(retval, s)
	}
	slices.SortFunc(retval, func(a, b *Session) int { return a.started.Compare(b.started) })
	return retval
}

// Broadcast sends the event to every live session.
func (r *Registry) Broadcast(method string, params any) {
	for _, s := range r.Sessions() {
		s.SendEvent(method, params)
	}
}
