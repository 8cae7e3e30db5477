/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	messageTypeRequest  = "request"
	messageTypeResponse = "response"
	messageTypeEvent    = "event"
)

type Request struct {
	Seq       int    `json:"seq"`
	Type      string `json:"type"`
	Command   string `json:"command"`
	Arguments any    `json:"arguments,omitempty"`
}

type Response struct {
	Seq        int             `json:"seq,omitempty"`
	Type       string          `json:"type"`
	RequestSeq int             `json:"request_seq"`
	Command    string          `json:"command,omitempty"`
	Success    bool            `json:"success"`
	Running    bool            `json:"running,omitempty"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Refs       []Value         `json:"refs,omitempty"`
}

// DecodeBody unmarshals the response body into v.
func (r *Response) DecodeBody(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("response to '%s' has no body", r.Command)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("response to '%s' has an unexpected body: %w", r.Command, err)
	}
	return nil
}

// RefMap indexes the values referenced by the response body by their handle.
func (r *Response) RefMap() map[int]*Value {
	refs := make(map[int]*Value, len(r.Refs))
	for i := range r.Refs {
		refs[r.Refs[i].Handle] = &r.Refs[i]
	}
	return refs
}

type Event struct {
	Seq   int             `json:"seq,omitempty"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Used to find out what kind of message a frame carries before decoding it.
type envelope struct {
	Type string `json:"type"`
}

// Value is the engine's description of a JavaScript value (a "mirror").
type Value struct {
	Handle      int             `json:"handle"`
	Type        string          `json:"type"`
	ClassName   string          `json:"className,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Text        string          `json:"text,omitempty"`
	Properties  []Property      `json:"properties,omitempty"`
	ProtoObject *Ref            `json:"protoObject,omitempty"`
}

type Ref struct {
	Ref int `json:"ref"`
}

// Property is a named reference to another value. Lookup responses put the handle
// directly on the property, scope responses nest it inside the value field.
type Property struct {
	Name         PropertyName `json:"name"`
	PropertyType int          `json:"propertyType,omitempty"`
	Attributes   int          `json:"attributes,omitempty"`
	Ref          int          `json:"ref,omitempty"`
	Value        *Ref         `json:"value,omitempty"`
}

func (p *Property) Handle() int {
	if p.Value != nil {
		return p.Value.Ref
	}
	return p.Ref
}

// PropertyName is either a string or an array index.
type PropertyName string

func (n *PropertyName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = PropertyName(s)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("property name must be a string or a number: %w", err)
	}
	*n = PropertyName(num.String())
	return nil
}

type ScriptInfo struct {
	Handle       int     `json:"handle,omitempty"`
	Type         string  `json:"type,omitempty"`
	ID           int     `json:"id"`
	Name         *string `json:"name,omitempty"`
	LineOffset   int     `json:"lineOffset"`
	ColumnOffset int     `json:"columnOffset"`
	LineCount    int     `json:"lineCount"`
	SourceLength int     `json:"sourceLength,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// Name used for scripts that were compiled from a string rather than loaded from a file.
const anonymousScriptName = "<evaluated script>"

func (s *ScriptInfo) DisplayName() string {
	if s.Name == nil || *s.Name == "" {
		return anonymousScriptName
	}
	return *s.Name
}

func (s *ScriptInfo) IDString() string {
	return strconv.Itoa(s.ID)
}

type BreakEventBody struct {
	InvocationText string      `json:"invocationText,omitempty"`
	SourceLine     int         `json:"sourceLine"`
	SourceColumn   int         `json:"sourceColumn"`
	SourceLineText string      `json:"sourceLineText"`
	Script         *ScriptInfo `json:"script,omitempty"`
	Breakpoints    []int       `json:"breakpoints,omitempty"`
}

type ExceptionEventBody struct {
	BreakEventBody
	Uncaught  bool   `json:"uncaught"`
	Exception *Value `json:"exception,omitempty"`
}

type AfterCompileEventBody struct {
	Script *ScriptInfo `json:"script,omitempty"`
}

type BacktraceBody struct {
	FromFrame   int              `json:"fromFrame"`
	ToFrame     int              `json:"toFrame"`
	TotalFrames int              `json:"totalFrames"`
	Frames      []BacktraceFrame `json:"frames"`
}

type BacktraceFrame struct {
	Type           string         `json:"type"`
	Index          int            `json:"index"`
	Receiver       FrameValue     `json:"receiver"`
	Func           FrameFunction  `json:"func"`
	Line           int            `json:"line"`
	Column         int            `json:"column"`
	SourceLineText string         `json:"sourceLineText,omitempty"`
	Scopes         []ScopeSummary `json:"scopes"`
}

type FrameValue struct {
	Ref       int    `json:"ref"`
	Type      string `json:"type,omitempty"`
	ClassName string `json:"className,omitempty"`
}

type FrameFunction struct {
	Ref          int    `json:"ref"`
	Name         string `json:"name,omitempty"`
	InferredName string `json:"inferredName,omitempty"`
	ScriptID     int    `json:"scriptId"`
}

type ScopeSummary struct {
	Type  int `json:"type"`
	Index int `json:"index"`
}

type ScopesBody struct {
	FromScope   int            `json:"fromScope"`
	ToScope     int            `json:"toScope"`
	TotalScopes int            `json:"totalScopes"`
	Scopes      []ScopeSummary `json:"scopes"`
}

type ScopeBody struct {
	Type       int    `json:"type"`
	Index      int    `json:"index"`
	FrameIndex int    `json:"frameIndex"`
	Object     *Value `json:"object,omitempty"`
}

type Breakpoint struct {
	Number     int    `json:"number"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	ScriptName string `json:"script_name,omitempty"`
	ScriptID   int    `json:"script_id,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Active     bool   `json:"active"`
}

type ListBreakpointsBody struct {
	Breakpoints               []Breakpoint `json:"breakpoints"`
	BreakOnExceptions         bool         `json:"breakOnExceptions"`
	BreakOnUncaughtExceptions bool         `json:"breakOnUncaughtExceptions"`
}

type BreakpointLocation struct {
	Line     int `json:"line"`
	Column   int `json:"column"`
	ScriptID int `json:"script_id"`
}

type SetBreakpointBody struct {
	Type            string               `json:"type"`
	Breakpoint      int                  `json:"breakpoint"`
	ActualLocations []BreakpointLocation `json:"actual_locations"`
}

type VersionBody struct {
	V8Version string `json:"V8Version"`
}

// ProfileHeaderInfo describes a profile the engine holds.
type ProfileHeaderInfo struct {
	Type  string `json:"type"`
	UID   int    `json:"uid"`
	Title string `json:"title"`
}
