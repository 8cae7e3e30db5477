/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/play-co/NativeInspector/internal/devtools"
)

const (
	eventBreak           = "break"
	eventException       = "exception"
	eventAfterCompile    = "afterCompile"
	eventScriptCollected = "scriptCollected"
)

func (l *Link) handleEvent(ctx context.Context, evt *Event) {
	switch evt.Event {
	case eventBreak:
		var body BreakEventBody
		if !l.decodeEventBody(evt, &body) {
			return
		}
		l.handleBreak(ctx, &body)

	case eventException:
		var body ExceptionEventBody
		if !l.decodeEventBody(evt, &body) {
			return
		}
		l.publishEvent(Notification{
			Kind:    KindConsole,
			Console: devtools.NewConsoleMessage(devtools.ConsoleLevelWarning, exceptionText(&body)),
		})
		l.handleBreak(ctx, &body.BreakEventBody)

	case eventAfterCompile:
		var body AfterCompileEventBody
		if !l.decodeEventBody(evt, &body) || body.Script == nil {
			return
		}
		script := body.Script
		l.publishEvent(Notification{
			Kind: KindConsole,
			Console: devtools.NewConsoleMessage(devtools.ConsoleLevelInfo,
				fmt.Sprintf("-- Script compiled: %s [%d bytes]", script.DisplayName(), script.SourceLength)),
		})
		l.publishEvent(Notification{
			Kind:   KindScriptParsed,
			Script: ScriptParsed(script),
		})

	case eventScriptCollected:
		// Nothing to do, the front end has no way to forget a script.

	default:
		l.log.Info("Unhandled debug target event", "Event", evt.Event, "Body", string(evt.Body))
	}
}

func (l *Link) decodeEventBody(evt *Event, v any) bool {
	if len(evt.Body) == 0 {
		l.log.Info("Debug target event has no body", "Event", evt.Event)
		return false
	}
	if err := json.Unmarshal(evt.Body, v); err != nil {
		l.log.Error(err, "Could not decode debug target event body", "Event", evt.Event)
		return false
	}
	return true
}

// Reports the break to the front end, or resumes right away when breakpoints are inactive.
func (l *Link) handleBreak(ctx context.Context, body *BreakEventBody) {
	resp, err := l.Backtrace(ctx)
	if err != nil {
		l.log.Info("Could not get backtrace for break event", "Error", err.Error())
		return
	}

	if !l.BreakpointsActive() {
		if _, resumeErr := l.Resume(ctx); resumeErr != nil {
			l.log.Info("Could not resume after break while breakpoints are inactive", "Error", resumeErr.Error())
			return
		}
		l.publishEvent(Notification{Kind: KindResumed})
		return
	}

	var bt BacktraceBody
	if resp.Success {
		if decodeErr := resp.DecodeBody(&bt); decodeErr != nil {
			l.log.Error(decodeErr, "Could not decode backtrace")
		}
	}
	l.fillMissingScopes(ctx, bt.Frames)

	reason := "Breakpoint"
	if body.Script != nil {
		reason = fmt.Sprintf("Breakpoint @ %s:%d", body.Script.DisplayName(), body.SourceLine)
	}

	l.publishEvent(Notification{
		Kind: KindPaused,
		Paused: &devtools.PausedParams{
			CallFrames: ConvertCallFrames(bt.Frames),
			Reason:     reason,
			Data:       "Source line text: " + body.SourceLineText,
		},
	})
}

// Backtraces from some engine builds leave out the scopes of each frame. These are asked for separately.
func (l *Link) fillMissingScopes(ctx context.Context, frames []BacktraceFrame) {
	for i := range frames {
		f := &frames[i]
		if f.Type != stackFrameType || f.Scopes != nil {
			continue
		}

		resp, err := l.Scopes(ctx, f.Index)
		if err != nil {
			l.log.Info("Could not get frame scopes", "Frame", f.Index, "Error", err.Error())
			return
		}
		if !resp.Success {
			l.log.Info("Debug target refused to list frame scopes", "Frame", f.Index, "Message", resp.Message)
			continue
		}

		var body ScopesBody
		if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
			l.log.Error(decodeErr, "Could not decode frame scopes", "Frame", f.Index)
			continue
		}
		f.Scopes = body.Scopes
	}
}

func exceptionText(body *ExceptionEventBody) string {
	text := "(unknown exception)"
	if body.Exception != nil {
		switch {
		case body.Exception.Text != "":
			text = body.Exception.Text
		case len(body.Exception.Value) > 0:
			text = string(body.Exception.Value)
		case body.Exception.ClassName != "":
			text = body.Exception.ClassName
		}
	}

	location := "(unknown script)"
	if body.Script != nil {
		location = fmt.Sprintf("%s:%d", body.Script.DisplayName(), body.SourceLine)
	}

	prefix := "Exception"
	if body.Uncaught {
		prefix = "Uncaught exception"
	}
	return fmt.Sprintf("%s: %s at %s", prefix, text, location)
}

// ScriptParsed describes a loaded script the way the front end expects it.
func ScriptParsed(script *ScriptInfo) *devtools.ScriptParsedParams {
	return &devtools.ScriptParsedParams{
		ScriptID:        script.IDString(),
		URL:             script.DisplayName(),
		StartLine:       script.LineOffset,
		StartColumn:     script.ColumnOffset,
		EndLine:         script.LineOffset + script.LineCount,
		EndColumn:       0,
		IsContentScript: true,
	}
}
