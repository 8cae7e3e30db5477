/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

const (
	contentLengthHeader = "Content-Length"
	typeHeader          = "Type"

	// A header block shorter than this suggests the reader lost track of frame boundaries.
	minExpectedHeaderLength = 16
)

var (
	headerTerminator = []byte("\r\n\r\n")
	emptyBody        = json.RawMessage(`{}`)
)

type Header struct {
	Name  string
	Value string
}

// Frame is one complete message of the debug wire protocol.
type Frame struct {
	Headers []Header

	// The JSON body of the frame. It is an empty object if the frame had no content
	// or the content was not valid JSON.
	Body json.RawMessage
}

// Header returns the value of the first header with the given name.
func (f *Frame) Header(name string) (string, bool) {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

func (f *Frame) IsConnect() bool {
	t, found := f.Header(typeHeader)
	return found && t == "connect"
}

type deframerState int

const (
	awaitingHeaders deframerState = iota
	awaitingContent
)

// Deframer splits a byte stream into frames. Bytes may be pushed in chunks of any size;
// frames are returned in arrival order as soon as they are complete.
// Deframer is not safe for concurrent use.
type Deframer struct {
	log           logr.Logger
	buf           []byte
	state         deframerState
	headers       []Header
	contentLength int
}

func NewDeframer(log logr.Logger) *Deframer {
	return &Deframer{log: log}
}

// Push appends the chunk to the buffered data and returns every frame that became complete.
func (d *Deframer) Push(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		if d.state == awaitingHeaders && !d.parseHeaders() {
			return frames
		}

		frame, complete := d.parseContent()
		if !complete {
			return frames
		}
		frames = append(frames, frame)
	}
}

// Reset discards buffered data. Used when the underlying connection is replaced.
func (d *Deframer) Reset() {
	d.buf = nil
	d.state = awaitingHeaders
	d.headers = nil
	d.contentLength = 0
}

func (d *Deframer) parseHeaders() bool {
	end := bytes.Index(d.buf, headerTerminator)
	if end < 0 {
		return false
	}

	if end < minExpectedHeaderLength {
		d.log.Info("Frame header block is unusually short, the stream may be out of sync", "headerLength", end)
	}

	d.headers = nil
	d.contentLength = 0
	for _, line := range strings.Split(string(d.buf[:end]), "\r\n") {
		name, value, _ := strings.Cut(line, ": ")
		value = strings.TrimLeft(value, " ")
		d.headers = append(d.headers, Header{Name: name, Value: value})

		if name == contentLengthHeader {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
				d.contentLength = n
			}
		}
	}

	d.buf = d.buf[end+len(headerTerminator):]
	d.state = awaitingContent
	return true
}

func (d *Deframer) parseContent() (Frame, bool) {
	if len(d.buf) < d.contentLength {
		return Frame{}, false
	}

	body := emptyBody
	if d.contentLength > 0 {
		content := d.buf[:d.contentLength]
		if json.Valid(content) {
			body = make(json.RawMessage, len(content))
			copy(body, content)
		} else {
			d.log.Info("Frame content is not valid JSON, using an empty object instead", "content", string(content))
		}
	}

	frame := Frame{Headers: d.headers, Body: body}

	// Keep the buffer from growing without bound by copying the remainder, if any.
	rest := d.buf[d.contentLength:]
	if len(rest) > 0 {
		d.buf = append([]byte(nil), rest...)
	} else {
		d.buf = nil
	}
	d.state = awaitingHeaders
	d.headers = nil
	d.contentLength = 0

	return frame, true
}

// EncodeFrame wraps a JSON body into a frame ready to be written to the wire.
func EncodeFrame(body []byte) []byte {
	return EncodeFrameWithHeaders(body)
}

// EncodeFrameWithHeaders wraps a JSON body into a frame, putting the given headers
// in front of the Content-Length header.
func EncodeFrameWithHeaders(body []byte, headers ...Header) []byte {
	var b bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	fmt.Fprintf(&b, "%s: %d\r\n\r\n", contentLengthHeader, len(body))
	b.Write(body)
	return b.Bytes()
}
