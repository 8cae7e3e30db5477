/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package v8debug

import (
	"sync"
)

// pendingRequest tracks a request that is awaiting a response.
type pendingRequest struct {
	// command is the request command (for logging).
	command string

	// responseChan receives the response. It is buffered so that delivering a response never blocks.
	responseChan chan *Response
}

// pendingRequestMap is a thread-safe map of pending requests keyed by sequence number.
type pendingRequestMap struct {
	mu       sync.Mutex
	requests map[int]*pendingRequest
}

func newPendingRequestMap() *pendingRequestMap {
	return &pendingRequestMap{
		requests: make(map[int]*pendingRequest),
	}
}

func (m *pendingRequestMap) Add(seq int, req *pendingRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[seq] = req
}

// Get retrieves and removes a pending request from the map.
// Returns nil if no request exists for the given sequence number.
func (m *pendingRequestMap) Get(seq int) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[seq]
	if !ok {
		return nil
	}

	delete(m.requests, seq)
	return req
}

func (m *pendingRequestMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// DrainWithError closes all response channels and clears the map.
// Callers waiting on a closed channel learn that the response will never come.
func (m *pendingRequestMap) DrainWithError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, req := range m.requests {
		close(req.responseChan)
	}

	m.requests = make(map[int]*pendingRequest)
}

// sequenceCounter provides thread-safe sequence number generation.
type sequenceCounter struct {
	mu  sync.Mutex
	seq int
}

func newSequenceCounter() *sequenceCounter {
	return &sequenceCounter{seq: 0}
}

func (c *sequenceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *sequenceCounter) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// correlator matches responses to the requests that caused them.
// Sequence numbers start at 1 and are never reused for the lifetime of the correlator,
// including across reconnections of the link that owns it.
type correlator struct {
	pending *pendingRequestMap
	seq     *sequenceCounter
}

func newCorrelator() *correlator {
	return &correlator{
		pending: newPendingRequestMap(),
		seq:     newSequenceCounter(),
	}
}

// Send stamps the request with the next sequence number and returns the channel
// the response will be delivered on.
func (c *correlator) Send(req *Request) <-chan *Response {
	req.Seq = c.seq.Next()
	req.Type = messageTypeRequest

	ch := make(chan *Response, 1)
	c.pending.Add(req.Seq, &pendingRequest{
		command:      req.Command,
		responseChan: ch,
	})
	return ch
}

// Resolve delivers the response to the request with the given sequence number.
// Returns false if no such request is pending.
func (c *correlator) Resolve(seq int, resp *Response) bool {
	pending := c.pending.Get(seq)
	if pending == nil {
		return false
	}
	pending.responseChan <- resp
	return true
}

// Forget drops a pending request without delivering anything to it.
func (c *correlator) Forget(seq int) {
	_ = c.pending.Get(seq)
}

// Clear closes the channels of all pending requests.
func (c *correlator) Clear() {
	c.pending.DrainWithError()
}

func (c *correlator) PendingCount() int {
	return c.pending.Len()
}
