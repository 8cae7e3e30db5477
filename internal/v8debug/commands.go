/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"context"
)

// StepAction selects how far execution proceeds when continuing from a break.
type StepAction string

const (
	StepInto StepAction = "in"
	StepOver StepAction = "next"
	StepOut  StepAction = "out"
)

// Breakpoint target types understood by the setbreakpoint command.
const (
	breakpointTargetScriptID   = "scriptId"
	breakpointTargetScriptName = "script"
)

// Script type mask selecting normal (non-native, non-extension) scripts.
const normalScriptsMask = 4

// Evaluation results longer than this are truncated by the engine.
const maxEvaluateStringLength = 10000000

// Exception break types.
const (
	ExceptionBreakAll      = "all"
	ExceptionBreakUncaught = "uncaught"
)

// Profile kinds as reported by the engine.
const (
	ProfileTypeCPU  = "CPU"
	ProfileTypeHeap = "HEAP"
)

type setBreakpointArgs struct {
	Type      string `json:"type"`
	Target    any    `json:"target"`
	Line      int    `json:"line"`
	Column    *int   `json:"column,omitempty"`
	Enabled   bool   `json:"enabled"`
	Condition string `json:"condition,omitempty"`
}

type clearBreakpointArgs struct {
	Breakpoint int `json:"breakpoint"`
}

type continueArgs struct {
	StepAction StepAction `json:"stepaction"`
	StepCount  int        `json:"stepcount"`
}

type backtraceArgs struct {
	InlineRefs bool `json:"inlineRefs"`
}

type scopeArgs struct {
	Number      int  `json:"number"`
	FrameNumber int  `json:"frameNumber"`
	InlineRefs  bool `json:"inlineRefs"`
}

type scopesArgs struct {
	FrameNumber int `json:"frameNumber"`
}

type scriptsArgs struct {
	IncludeSource bool  `json:"includeSource,omitempty"`
	Types         int   `json:"types,omitempty"`
	IDs           []int `json:"ids,omitempty"`
}

type changeLiveArgs struct {
	ScriptID    int    `json:"script_id"`
	PreviewOnly bool   `json:"preview_only"`
	NewSource   string `json:"new_source"`
}

type evaluateArgs struct {
	Expression      string `json:"expression"`
	Global          bool   `json:"global"`
	Frame           *int   `json:"frame,omitempty"`
	DisableBreak    bool   `json:"disable_break"`
	MaxStringLength int    `json:"maxStringLength"`
}

type lookupArgs struct {
	Handles       []int `json:"handles"`
	IncludeSource bool  `json:"includeSource"`
}

type exceptionBreakArgs struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type profilerArgs struct {
	Command string `json:"command"`
	Title   string `json:"title,omitempty"`
	Type    string `json:"type,omitempty"`
	UID     int    `json:"uid,omitempty"`
}

type heapSnapshotArgs struct {
	Command string `json:"command"`
	UID     int    `json:"uid"`
}

func (l *Link) Version(ctx context.Context) (*Response, error) {
	return l.request(ctx, "version", nil)
}

// SetBreakpoint sets a breakpoint in the script with the given ID.
// The column is optional; a nil column means the first breakable position on the line.
func (l *Link) SetBreakpoint(ctx context.Context, scriptID int, line int, column *int, condition string) (*Response, error) {
	return l.request(ctx, "setbreakpoint", setBreakpointArgs{
		Type:      breakpointTargetScriptID,
		Target:    scriptID,
		Line:      line,
		Column:    column,
		Enabled:   true,
		Condition: condition,
	})
}

// SetBreakpointByURL sets a breakpoint in every script (current or future) with the given name.
func (l *Link) SetBreakpointByURL(ctx context.Context, url string, line int, column *int, condition string) (*Response, error) {
	return l.request(ctx, "setbreakpoint", setBreakpointArgs{
		Type:      breakpointTargetScriptName,
		Target:    url,
		Line:      line,
		Column:    column,
		Enabled:   true,
		Condition: condition,
	})
}

func (l *Link) ClearBreakpoint(ctx context.Context, breakpoint int) (*Response, error) {
	return l.request(ctx, "clearbreakpoint", clearBreakpointArgs{Breakpoint: breakpoint})
}

func (l *Link) ListBreakpoints(ctx context.Context) (*Response, error) {
	return l.request(ctx, "listbreakpoints", nil)
}

// Continue resumes execution, stepping count times with the given step action.
func (l *Link) Continue(ctx context.Context, step StepAction, count int) (*Response, error) {
	return l.request(ctx, "continue", continueArgs{StepAction: step, StepCount: count})
}

// Resume leaves the break state and lets the target run freely.
func (l *Link) Resume(ctx context.Context) (*Response, error) {
	return l.request(ctx, "continue", nil)
}

func (l *Link) Suspend(ctx context.Context) (*Response, error) {
	return l.request(ctx, "suspend", nil)
}

// Backtrace returns the stack of the paused target, with frame receivers and functions inlined.
func (l *Link) Backtrace(ctx context.Context) (*Response, error) {
	return l.request(ctx, "backtrace", backtraceArgs{InlineRefs: true})
}

func (l *Link) Scope(ctx context.Context, scope int, frame int) (*Response, error) {
	return l.request(ctx, "scope", scopeArgs{Number: scope, FrameNumber: frame, InlineRefs: true})
}

// Scopes lists the scopes of a frame of the paused target.
func (l *Link) Scopes(ctx context.Context, frame int) (*Response, error) {
	return l.request(ctx, "scopes", scopesArgs{FrameNumber: frame})
}

// Scripts lists the scripts loaded by the target, without their source.
func (l *Link) Scripts(ctx context.Context) (*Response, error) {
	return l.request(ctx, "scripts", nil)
}

// ScriptSource returns the script with the given ID, including its source.
func (l *Link) ScriptSource(ctx context.Context, scriptID int) (*Response, error) {
	return l.request(ctx, "scripts", scriptsArgs{
		IncludeSource: true,
		Types:         normalScriptsMask,
		IDs:           []int{scriptID},
	})
}

// ChangeLive replaces the source of a loaded script.
func (l *Link) ChangeLive(ctx context.Context, scriptID int, previewOnly bool, newSource string) (*Response, error) {
	return l.request(ctx, "changelive", changeLiveArgs{
		ScriptID:    scriptID,
		PreviewOnly: previewOnly,
		NewSource:   newSource,
	})
}

// Evaluate evaluates the expression in the global context, or in the context of the given frame
// when frame is not nil. Breakpoints are disabled during the evaluation.
func (l *Link) Evaluate(ctx context.Context, expression string, frame *int) (*Response, error) {
	return l.request(ctx, "evaluate", evaluateArgs{
		Expression:      expression,
		Global:          frame == nil,
		Frame:           frame,
		DisableBreak:    true,
		MaxStringLength: maxEvaluateStringLength,
	})
}

func (l *Link) Lookup(ctx context.Context, handles []int, includeSource bool) (*Response, error) {
	return l.request(ctx, "lookup", lookupArgs{Handles: handles, IncludeSource: includeSource})
}

// SetExceptionBreak enables or disables breaking on exceptions of the given type (all or uncaught).
func (l *Link) SetExceptionBreak(ctx context.Context, exceptionType string, enabled bool) (*Response, error) {
	return l.request(ctx, "setexceptionbreak", exceptionBreakArgs{Type: exceptionType, Enabled: enabled})
}

// StartProfiling starts CPU sampling under the given title.
func (l *Link) StartProfiling(ctx context.Context, title string) (*Response, error) {
	return l.request(ctx, "profiler", profilerArgs{Command: "start", Title: title})
}

// StopProfiling stops CPU sampling started under the given title. The response body describes the profile.
func (l *Link) StopProfiling(ctx context.Context, title string) (*Response, error) {
	return l.request(ctx, "profiler", profilerArgs{Command: "stop", Title: title})
}

// ProfileHeaders lists the profiles the target still holds.
func (l *Link) ProfileHeaders(ctx context.Context) (*Response, error) {
	return l.request(ctx, "profiler", profilerArgs{Command: "headers"})
}

func (l *Link) GetProfile(ctx context.Context, profileType string, uid int) (*Response, error) {
	return l.request(ctx, "profiler", profilerArgs{Command: "get", Type: profileType, UID: uid})
}

func (l *Link) TakeHeapSnapshot(ctx context.Context, uid int) (*Response, error) {
	return l.request(ctx, "heapsnapshot", heapSnapshotArgs{Command: "take", UID: uid})
}
