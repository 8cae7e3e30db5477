/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package pubsub

import (
	"sync"
	"sync/atomic"
)

type HandleT uint32

const (
	InvalidHandle HandleT = 0
)

var (
	nextHandle = InvalidHandle
)

// tagger assigns a stable handle to each subscriber value.
// The same subscriber always maps to the same handle until it is released.
type tagger struct {
	lock *sync.Mutex
	tags map[any]HandleT
}

func newTagger() *tagger {
	return &tagger{
		lock: &sync.Mutex{},
		tags: make(map[any]HandleT),
	}
}

func (t *tagger) tag(subscriber any) HandleT {
	t.lock.Lock()
	defer t.lock.Unlock()

	if h, found := t.tags[subscriber]; found {
		return h
	}

	h := HandleT(atomic.AddUint32((*uint32)(&nextHandle), 1))
	t.tags[subscriber] = h
	return h
}

func (t *tagger) release(subscriber any) (HandleT, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	h, found := t.tags[subscriber]
	if found {
		delete(t.tags, subscriber)
	}
	return h, found
}
