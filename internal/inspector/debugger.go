/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

const (
	pauseOnExceptionsNone = "none"

	scriptSourceUnavailable = "Unable to load source file. Try reloading the page"
)

type setPauseOnExceptionsParams struct {
	State string `json:"state"`
}

type setBreakpointsActiveParams struct {
	Active bool `json:"active"`
}

type setBreakpointByURLParams struct {
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber *int   `json:"columnNumber,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

type setBreakpointByURLResult struct {
	BreakpointID string              `json:"breakpointId"`
	Locations    []devtools.Location `json:"locations"`
}

type setBreakpointParams struct {
	Location struct {
		ScriptID     string `json:"scriptId"`
		LineNumber   int    `json:"lineNumber"`
		ColumnNumber *int   `json:"columnNumber,omitempty"`
	} `json:"location"`
	Condition string `json:"condition,omitempty"`
}

type setBreakpointResult struct {
	BreakpointID   string            `json:"breakpointId"`
	ActualLocation devtools.Location `json:"actualLocation"`
}

type removeBreakpointParams struct {
	BreakpointID string `json:"breakpointId"`
}

type scriptIDParams struct {
	ScriptID string `json:"scriptId"`
}

type scriptSourceResult struct {
	ScriptSource string `json:"scriptSource"`
}

type setScriptSourceParams struct {
	ScriptID     string `json:"scriptId"`
	ScriptSource string `json:"scriptSource"`
	Preview      bool   `json:"preview,omitempty"`
}

func (s *Session) debuggerEnable(context.Context, *devtools.Message) (any, error) {
	s.log.V(1).Info("Debugger enabled")
	return nil, nil
}

func (s *Session) debuggerDisable(context.Context, *devtools.Message) (any, error) {
	return nil, errors.New("the debugger cannot be disabled")
}

func (s *Session) debuggerSetPauseOnExceptions(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[setPauseOnExceptionsParams](msg)
	if err != nil {
		return nil, err
	}

	exceptionType, enabled := params.State, true
	if params.State == pauseOnExceptionsNone || params.State == "" {
		exceptionType, enabled = v8debug.ExceptionBreakUncaught, false
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}
	_, err = checkResponse(link.SetExceptionBreak(ctx, exceptionType, enabled))
	return nil, err
}

// The setting applies to every target so that it survives switching between them.
func (s *Session) debuggerSetBreakpointsActive(_ context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[setBreakpointsActiveParams](msg)
	if err != nil {
		return nil, err
	}

	s.log.V(1).Info("Setting breakpoints active", "Active", params.Active)
	for _, link := range s.targets.Candidates() {
		link.SetBreakpointsActive(params.Active)
	}
	return nil, nil
}

func (s *Session) debuggerSetBreakpointByURL(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[setBreakpointByURLParams](msg)
	if err != nil {
		return nil, err
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(link.SetBreakpointByURL(ctx, params.URL, params.LineNumber, params.ColumnNumber, params.Condition))
	if err != nil {
		return nil, err
	}

	var body v8debug.SetBreakpointBody
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		return nil, decodeErr
	}

	return setBreakpointByURLResult{
		BreakpointID: strconv.Itoa(body.Breakpoint),
		Locations:    breakpointLocations(body.ActualLocations),
	}, nil
}

func (s *Session) debuggerSetBreakpoint(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[setBreakpointParams](msg)
	if err != nil {
		return nil, err
	}

	scriptID, err := strconv.Atoi(params.Location.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("script id '%s' is not valid", params.Location.ScriptID)
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(link.SetBreakpoint(ctx, scriptID, params.Location.LineNumber, params.Location.ColumnNumber, params.Condition))
	if err != nil {
		return nil, err
	}

	var body v8debug.SetBreakpointBody
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		return nil, decodeErr
	}

	result := setBreakpointResult{BreakpointID: strconv.Itoa(body.Breakpoint)}
	if locations := breakpointLocations(body.ActualLocations); len(locations) > 0 {
		result.ActualLocation = locations[0]
	} else {
		result.ActualLocation = devtools.Location{
			ScriptID:   params.Location.ScriptID,
			LineNumber: params.Location.LineNumber,
		}
		if params.Location.ColumnNumber != nil {
			result.ActualLocation.ColumnNumber = *params.Location.ColumnNumber
		}
	}
	return result, nil
}

func breakpointLocations(actual []v8debug.BreakpointLocation) []devtools.Location {
	retval := make([]devtools.Location, 0, len(actual))
	for _, l := range actual {
		retval = append(retval, devtools.Location{
			ScriptID:     strconv.Itoa(l.ScriptID),
			LineNumber:   l.Line,
			ColumnNumber: l.Column,
		})
	}
	return retval
}

func (s *Session) debuggerRemoveBreakpoint(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[removeBreakpointParams](msg)
	if err != nil {
		return nil, err
	}

	number, err := strconv.Atoi(params.BreakpointID)
	if err != nil {
		return nil, fmt.Errorf("breakpoint id '%s' is not valid", params.BreakpointID)
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}
	_, err = checkResponse(link.ClearBreakpoint(ctx, number))
	return nil, err
}

func stepHandler(step v8debug.StepAction) handlerFunc {
	return func(s *Session, ctx context.Context, _ *devtools.Message) (any, error) {
		link, err := s.link()
		if err != nil {
			return nil, err
		}
		_, err = checkResponse(link.Continue(ctx, step, 1))
		return nil, err
	}
}

func (s *Session) debuggerPause(ctx context.Context, _ *devtools.Message) (any, error) {
	link, err := s.link()
	if err != nil {
		return nil, err
	}

	// Otherwise the break caused by suspending would be resumed right away.
	link.SetBreakpointsActive(true)

	_, err = checkResponse(link.Suspend(ctx))
	return nil, err
}

func (s *Session) debuggerResume(ctx context.Context, _ *devtools.Message) (any, error) {
	link, err := s.link()
	if err != nil {
		return nil, err
	}

	if _, err = checkResponse(link.Resume(ctx)); err != nil {
		return nil, err
	}

	s.after(func(context.Context) {
		s.SendEvent(devtools.EventDebuggerResumed, nil)
	})
	return nil, nil
}

func (s *Session) debuggerEvaluateOnCallFrame(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[evaluateParams](msg)
	if err != nil {
		return nil, err
	}

	frame, err := strconv.Atoi(params.CallFrameID)
	if err != nil {
		return nil, fmt.Errorf("call frame id '%s' is not valid", params.CallFrameID)
	}
	return s.evaluate(ctx, params.Expression, &frame)
}

func (s *Session) debuggerGetScriptSource(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[scriptIDParams](msg)
	if err != nil {
		return nil, err
	}

	scriptID, err := strconv.Atoi(params.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("script id '%s' is not valid", params.ScriptID)
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := link.ScriptSource(ctx, scriptID)
	if err != nil {
		return nil, err
	}

	var scripts []v8debug.ScriptInfo
	if !resp.Success || resp.DecodeBody(&scripts) != nil || len(scripts) == 0 || scripts[0].Source == "" {
		return nil, errors.New(scriptSourceUnavailable)
	}

	s.log.V(1).Info("Got script source", "ScriptID", scriptID, "Length", len(scripts[0].Source))
	return scriptSourceResult{ScriptSource: scripts[0].Source}, nil
}

func (s *Session) debuggerSetScriptSource(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[setScriptSourceParams](msg)
	if err != nil {
		return nil, err
	}

	scriptID, err := strconv.Atoi(params.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("script id '%s' is not valid", params.ScriptID)
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	_, err = checkResponse(link.ChangeLive(ctx, scriptID, params.Preview, params.ScriptSource))
	return nil, err
}
