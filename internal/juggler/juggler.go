/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package juggler selects which of several debug targets the inspector sessions talk to.
//
// Every candidate target keeps its own connection. The juggler watches their connect and close
// notifications and exposes exactly one selected candidate. A connected selection is never
// replaced by another candidate that connects later; when the selected candidate disconnects,
// the selection moves to any other connected candidate. When nothing else is connected, the
// disconnected candidate stays selected so that its reconnection is picked up.
package juggler

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"

	"github.com/play-co/NativeInspector/internal/pubsub"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

// Candidate is a debug target connection the juggler can select.
type Candidate interface {
	comparable
	Address() string
	IsConnected() bool
	Subscribe(subscriber any, topic string, cb func(v8debug.Notification))
	Unsubscribe(subscriber any)
}

type Juggler[L Candidate] struct {
	log logr.Logger
	bus *pubsub.Bus[v8debug.Notification]

	lock       *sync.Mutex
	candidates []L
	connected  map[L]bool
	selected   L
	hasSelect  bool

	// Notifications are queued together with the state change that produced them
	// and delivered by one goroutine at a time, so subscribers see them in that order.
	outbox     []outgoing
	delivering bool
}

type outgoing struct {
	topic string
	n     v8debug.Notification
}

func New[L Candidate](log logr.Logger) *Juggler[L] {
	return &Juggler[L]{
		log:       log,
		bus:       pubsub.NewBus[v8debug.Notification](),
		lock:      &sync.Mutex{},
		connected: make(map[L]bool),
	}
}

// Add starts tracking the candidate. The first candidate added becomes the initial selection.
// Adding a candidate that is already tracked is a no-op.
func (j *Juggler[L]) Add(c L) {
	j.lock.Lock()
	if slices.Contains(j.candidates, c) {
		j.lock.Unlock()
		return
	}
	j.candidates = append(j.candidates, c)
	if !j.hasSelect {
		j.selected = c
		j.hasSelect = true
	}
	j.lock.Unlock()

	j.log.Info("Tracking debug target", "Target", c.Address())

	c.Subscribe(j, v8debug.TopicConnect, func(n v8debug.Notification) { j.onConnect(c, n) })
	c.Subscribe(j, v8debug.TopicClose, func(n v8debug.Notification) { j.onClose(c, n) })
	c.Subscribe(j, v8debug.TopicEvent, func(n v8debug.Notification) { j.onEvent(c, n) })

	if c.IsConnected() {
		j.onConnect(c, v8debug.Notification{Kind: v8debug.KindConnect, Address: c.Address()})
	}
}

// Active returns the selected candidate. The second return value is false
// if no candidate has been added yet.
func (j *Juggler[L]) Active() (L, bool) {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.selected, j.hasSelect
}

func (j *Juggler[L]) Candidates() []L {
	j.lock.Lock()
	defer j.lock.Unlock()
	return slices.Clone(j.candidates)
}

// Subscribe registers a callback for notifications about the selected candidate.
// Topics are the same as the ones published by v8debug.Link.
func (j *Juggler[L]) Subscribe(subscriber any, topic string, cb func(v8debug.Notification)) {
	j.bus.Subscribe(subscriber, topic, cb)
}

func (j *Juggler[L]) Unsubscribe(subscriber any) {
	j.bus.Unsubscribe(subscriber)
}

func (j *Juggler[L]) onConnect(c L, n v8debug.Notification) {
	j.lock.Lock()
	j.connected[c] = true

	switch {
	case j.selected == c:
		j.queueLocked(v8debug.TopicConnect, n)
	case !j.connected[j.selected]:
		j.log.Info("Switching to debug target", "Target", c.Address())
		j.selected = c
		j.queueLocked(v8debug.TopicConnect, n)
	default:
		j.log.Info("Debug target connected, but another target is already in use",
			"Target", c.Address(), "InUse", j.selected.Address())
	}
	j.lock.Unlock()

	j.deliver()
}

func (j *Juggler[L]) onClose(c L, n v8debug.Notification) {
	j.lock.Lock()
	delete(j.connected, c)

	if j.selected == c {
		j.queueLocked(v8debug.TopicClose, n)

		next, found := j.firstConnectedLocked()
		if found {
			j.log.Info("Selected debug target disconnected, switching to another target",
				"Target", c.Address(), "NewTarget", next.Address())
			j.selected = next
			j.queueLocked(v8debug.TopicConnect, v8debug.Notification{Kind: v8debug.KindConnect, Address: next.Address()})
		}
	}
	j.lock.Unlock()

	j.deliver()
}

func (j *Juggler[L]) firstConnectedLocked() (L, bool) {
	for _, candidate := range j.candidates {
		if j.connected[candidate] {
			return candidate, true
		}
	}
	var none L
	return none, false
}

func (j *Juggler[L]) onEvent(c L, n v8debug.Notification) {
	j.lock.Lock()
	if j.selected == c {
		j.queueLocked(v8debug.TopicEvent, n)
	}
	j.lock.Unlock()

	j.deliver()
}

func (j *Juggler[L]) queueLocked(topic string, n v8debug.Notification) {
	j.outbox = append(j.outbox, outgoing{topic: topic, n: n})
}

// Publishes queued notifications unless another goroutine (or an outer call on this one,
// when a subscriber causes a new transition) is already doing it. In that case the
// notifications queued here are published by that goroutine, after the ones queued before them.
func (j *Juggler[L]) deliver() {
	j.lock.Lock()
	if j.delivering {
		j.lock.Unlock()
		return
	}
	j.delivering = true

	for len(j.outbox) > 0 {
		next := j.outbox[0]
		j.outbox = j.outbox[1:]

		j.lock.Unlock()
		j.bus.Publish(next.topic, next.n)
		j.lock.Lock()
	}

	j.delivering = false
	j.lock.Unlock()
}
