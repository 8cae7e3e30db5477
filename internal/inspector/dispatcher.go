/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"errors"
	"fmt"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

// Handles one front-end method. The returned result (or error) becomes the response.
type handlerFunc func(s *Session, ctx context.Context, msg *devtools.Message) (any, error)

var handlers = map[devtools.Method]handlerFunc{
	devtools.RuntimeEvaluate:           (*Session).runtimeEvaluate,
	devtools.RuntimeGetProperties:      (*Session).runtimeGetProperties,
	devtools.RuntimeReleaseObjectGroup: (*Session).runtimeReleaseObjectGroup,
	devtools.RuntimeCallFunctionOn:     (*Session).runtimeCallFunctionOn,

	devtools.DebuggerEnable:                    (*Session).debuggerEnable,
	devtools.DebuggerDisable:                   (*Session).debuggerDisable,
	devtools.DebuggerCausesRecompilation:       constantResult(false),
	devtools.DebuggerSupportsNativeBreakpoints: constantResult(true),
	devtools.DebuggerCanSetScriptSource:        constantResult(true),
	devtools.DebuggerSetPauseOnExceptions:      (*Session).debuggerSetPauseOnExceptions,
	devtools.DebuggerSetBreakpointsActive:      (*Session).debuggerSetBreakpointsActive,
	devtools.DebuggerSetBreakpointByURL:        (*Session).debuggerSetBreakpointByURL,
	devtools.DebuggerSetBreakpoint:             (*Session).debuggerSetBreakpoint,
	devtools.DebuggerRemoveBreakpoint:          (*Session).debuggerRemoveBreakpoint,
	devtools.DebuggerStepInto:                  stepHandler(v8debug.StepInto),
	devtools.DebuggerStepOver:                  stepHandler(v8debug.StepOver),
	devtools.DebuggerStepOut:                   stepHandler(v8debug.StepOut),
	devtools.DebuggerPause:                     (*Session).debuggerPause,
	devtools.DebuggerResume:                    (*Session).debuggerResume,
	devtools.DebuggerEvaluateOnCallFrame:       (*Session).debuggerEvaluateOnCallFrame,
	devtools.DebuggerGetScriptSource:           (*Session).debuggerGetScriptSource,
	devtools.DebuggerSetScriptSource:           (*Session).debuggerSetScriptSource,

	devtools.PageCanOverrideDeviceMetrics: (*Session).pageCanOverrideDeviceMetrics,

	devtools.ConsoleEnable: (*Session).consoleEnable,

	devtools.ProfilerEnable:                  (*Session).profilerEnable,
	devtools.ProfilerDisable:                 (*Session).profilerDisable,
	devtools.ProfilerCausesRecompilation:     constantResult(false),
	devtools.ProfilerIsSampling:              constantResult(true),
	devtools.ProfilerHasHeapProfiler:         constantResult(true),
	devtools.ProfilerStart:                   (*Session).profilerStart,
	devtools.ProfilerStop:                    (*Session).profilerStop,
	devtools.ProfilerGetProfileHeaders:       (*Session).profilerGetProfileHeaders,
	devtools.ProfilerGetProfile:              (*Session).profilerGetProfile,
	devtools.ProfilerRemoveProfile:           (*Session).profilerRemoveProfile,
	devtools.ProfilerClearProfiles:           (*Session).profilerClearProfiles,
	devtools.ProfilerTakeHeapSnapshot:        (*Session).profilerTakeHeapSnapshot,
	devtools.ProfilerGetObjectByHeapObjectID: (*Session).profilerGetObjectByHeapObjectID,
}

type boolResult struct {
	Result bool `json:"result"`
}

func constantResult(value bool) handlerFunc {
	return func(*Session, context.Context, *devtools.Message) (any, error) {
		return boolResult{Result: value}, nil
	}
}

func (s *Session) dispatch(ctx context.Context, msg *devtools.Message) {
	method, known := devtools.ParseMethod(msg.Method)
	handler, found := handlers[method]
	if !known || !found {
		s.log.Info("Unhandled front-end method", "Method", msg.Method)
		return
	}

	s.log.V(1).Info("Handling front-end request", "Method", method.String())
	result, err := handler(s, ctx, msg)
	if err != nil {
		s.log.V(1).Info("Front-end request failed", "Method", method.String(), "Error", err.Error())
	}

	if msg.HasID() {
		s.respond(msg, result, err)
	}

	tasks := s.afterResponse
	s.afterResponse = nil
	for _, task := range tasks {
		task(ctx)
	}
}

func (s *Session) respond(msg *devtools.Message, result any, err error) {
	resp := devtools.Response{ID: msg.ID, Result: result}
	if err != nil {
		resp.Error = &devtools.Error{Message: err.Error()}
	}
	if resp.Result == nil {
		resp.Result = struct{}{}
	}
	s.writeJSON(&resp)
}

func decodeParams[T any](msg *devtools.Message) (T, error) {
	var params T
	if err := msg.DecodeParams(&params); err != nil {
		return params, fmt.Errorf("invalid parameters for %s: %w", msg.Method, err)
	}
	return params, nil
}

// Turns a failed debug target response into an error for the front end.
func checkResponse(resp *v8debug.Response, err error) (*v8debug.Response, error) {
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Message != "" {
			return resp, errors.New(resp.Message)
		}
		return resp, fmt.Errorf("debug target could not process '%s'", resp.Command)
	}
	return resp, nil
}
