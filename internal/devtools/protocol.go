package devtools

import (
	"encoding/json"
)

// Message is an inbound front-end request. Requests without an ID expect no response.
type Message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (m *Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// DecodeParams unmarshals the request parameters into v. Missing parameters leave v untouched.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 || string(m.Params) == "null" {
		return nil
	}
	return json.Unmarshal(m.Params, v)
}

type Error struct {
	Message string `json:"message"`
}

type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  *Error          `json:"error,omitempty"`
}

type Event struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

func NewEvent(method string, params any) *Event {
	if params == nil {
		params = struct{}{}
	}
	return &Event{
		Type:   "event",
		Method: method,
		Params: params,
	}
}

// RemoteObject is the front end's view of an engine value.
type RemoteObject struct {
	Type        string          `json:"type"`
	ClassName   string          `json:"className,omitempty"`
	Description string          `json:"description,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

type PropertyDescriptor struct {
	Name  string        `json:"name"`
	Value *RemoteObject `json:"value"`
}

type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

type Scope struct {
	Type   string        `json:"type"`
	Object *RemoteObject `json:"object"`
}

type CallFrame struct {
	CallFrameID  string        `json:"callFrameId"`
	FunctionName string        `json:"functionName"`
	Location     Location      `json:"location"`
	ScopeChain   []Scope       `json:"scopeChain"`
	This         *RemoteObject `json:"this,omitempty"`
}

type PausedParams struct {
	CallFrames []CallFrame `json:"callFrames"`
	Reason     string      `json:"reason"`
	Data       any         `json:"data,omitempty"`
}

type ScriptParsedParams struct {
	ScriptID        string `json:"scriptId"`
	URL             string `json:"url"`
	StartLine       int    `json:"startLine"`
	StartColumn     int    `json:"startColumn"`
	EndLine         int    `json:"endLine"`
	EndColumn       int    `json:"endColumn"`
	IsContentScript bool   `json:"isContentScript"`
	SourceMapURL    string `json:"sourceMapURL,omitempty"`
}

type ConsoleLevel string

const (
	ConsoleLevelLog     ConsoleLevel = "log"
	ConsoleLevelInfo    ConsoleLevel = "info"
	ConsoleLevelWarning ConsoleLevel = "warning"
	ConsoleLevelError   ConsoleLevel = "error"
)

type ConsoleMessage struct {
	Source      string       `json:"source"`
	Level       ConsoleLevel `json:"level"`
	Text        string       `json:"text"`
	Type        string       `json:"type"`
	URL         string       `json:"url"`
	Line        string       `json:"line"`
	RepeatCount int          `json:"repeatCount"`
}

// NewConsoleMessage returns a console message originating from the bridge itself rather than from page script.
func NewConsoleMessage(level ConsoleLevel, text string) *ConsoleMessage {
	return &ConsoleMessage{
		Source: "network",
		Level:  level,
		Text:   text,
	}
}

type ConsoleMessageAddedParams struct {
	Message *ConsoleMessage `json:"message"`
}

type ProfileHeader struct {
	TypeID      string `json:"typeId"`
	UID         int    `json:"uid"`
	Title       string `json:"title"`
	IsTemporary bool   `json:"isTemporary"`
}

type ProfileHeaderParams struct {
	Header ProfileHeader `json:"header"`
}

type HeapSnapshotProgressParams struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type HeapSnapshotChunkParams struct {
	UID   int    `json:"uid"`
	Chunk string `json:"chunk"`
}

type FinishHeapSnapshotParams struct {
	UID int `json:"uid"`
}

type RecordingProfileParams struct {
	IsProfiling bool `json:"isProfiling"`
}
