/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package pubsub implements a topic-keyed publish/subscribe bus.
//
// Subscribers are identified by value (typically a pointer to the subscribing object).
// The first time a subscriber is used with a Bus it is assigned a handle, and that handle
// is used to register callbacks under any number of topics. Unsubscribe removes the
// subscriber from every topic at once.
package pubsub

import (
	"maps"
	"slices"
	"sync"
)

type Callback[T any] func(T)

// Topic holds the callbacks registered under one topic name, keyed by subscriber handle.
type Topic[T any] struct {
	Name        string
	subscribers map[HandleT]Callback[T]
}

type Bus[T any] struct {
	tagger *tagger
	topics map[string]*Topic[T]
	mutex  *sync.Mutex
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{
		tagger: newTagger(),
		topics: make(map[string]*Topic[T]),
		mutex:  &sync.Mutex{},
	}
}

// Topic returns the named topic, creating it if it does not exist yet.
func (b *Bus[T]) Topic(name string) *Topic[T] {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.topicLocked(name)
}

func (b *Bus[T]) topicLocked(name string) *Topic[T] {
	t, found := b.topics[name]
	if !found {
		t = &Topic[T]{
			Name:        name,
			subscribers: make(map[HandleT]Callback[T]),
		}
		b.topics[name] = t
	}
	return t
}

// Tag returns the handle assigned to the subscriber, assigning one if necessary.
// The subscriber must be a comparable value.
func (b *Bus[T]) Tag(subscriber any) HandleT {
	return b.tagger.tag(subscriber)
}

// Subscribe registers the callback for the subscriber under the named topic.
// Subscribing again to the same topic replaces the previous callback.
func (b *Bus[T]) Subscribe(subscriber any, topic string, cb Callback[T]) HandleT {
	h := b.tagger.tag(subscriber)

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.topicLocked(topic).subscribers[h] = cb

	return h
}

// Publish invokes every callback currently registered under the topic.
// Callbacks run on the caller's goroutine, outside of the bus lock, in no particular order.
func (b *Bus[T]) Publish(topic string, payload T) {
	b.mutex.Lock()
	t := b.topicLocked(topic)
	callbacks := slices.Collect(maps.Values(t.subscribers))
	b.mutex.Unlock()

	for _, cb := range callbacks {
		cb(payload)
	}
}

// Unsubscribe removes the subscriber from every topic and releases its handle.
// It is a no-op for a subscriber that was never seen by the bus.
func (b *Bus[T]) Unsubscribe(subscriber any) {
	h, found := b.tagger.release(subscriber)
	if !found {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, t := range b.topics {
		delete(t.subscribers, h) // This is a no-op if the handle does not exist.
	}
}
