/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

func TestAfterCompileIsReportedAsParsedScript(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	require.NoError(t, h.engine.SendEvent("afterCompile", map[string]any{
		"script": map[string]any{
			"id":           7,
			"name":         "a.js",
			"lineOffset":   0,
			"columnOffset": 0,
			"lineCount":    10,
			"sourceLength": 240,
		},
	}))

	console := fe.waitForConsole(ctx, "a.js")
	assert.Equal(t, devtools.ConsoleLevelInfo, console.Level)
	assert.Contains(t, console.Text, "240 bytes")

	evt := fe.waitForEvent(ctx, devtools.EventDebuggerScriptParsed)
	var script devtools.ScriptParsedParams
	require.NoError(t, json.Unmarshal(evt.Params, &script))
	assert.Equal(t, "7", script.ScriptID)
	assert.Equal(t, "a.js", script.URL)
	assert.Equal(t, 0, script.StartLine)
	assert.Equal(t, 10, script.EndLine)
}

func TestSetBreakpointByURL(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("setbreakpoint", func(req *v8debug.Request) *v8debug.Response {
		return &v8debug.Response{
			Success: true,
			Body: v8debug.JSONBody(map[string]any{
				"type":       "scriptName",
				"breakpoint": 42,
				"actual_locations": []map[string]any{
					{"line": 5, "column": 0, "script_id": 7},
				},
			}),
		}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(3, "Debugger.setBreakpointByUrl", map[string]any{"url": "a.js", "lineNumber": 5, "columnNumber": 0})

	resp := fe.waitForResponse(ctx, 3)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"breakpointId":"42","locations":[{"lineNumber":5,"columnNumber":0,"scriptId":"7"}]}`, string(resp.Result))

	reqs := h.engine.Requests("setbreakpoint")
	require.Len(t, reqs, 1)
	args, isMap := reqs[0].Arguments.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "script", args["type"])
	assert.Equal(t, "a.js", args["target"])
	assert.EqualValues(t, 5, args["line"])
	assert.EqualValues(t, 0, args["column"])
}

func TestLoadSequence(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("listbreakpoints", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{
			"breakpoints": []map[string]any{{"number": 3, "line": 1, "column": 0}},
		})}
	})
	h.engine.Handle("scripts", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody([]map[string]any{
			{"type": "script", "id": 7, "name": "a.js", "lineOffset": 0, "lineCount": 10},
			{"type": "script", "id": 8, "lineOffset": 2, "lineCount": 1},
		})}
	})
	h.engine.Handle("profiler", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody([]map[string]any{
			{"type": "CPU", "uid": 4, "title": "org.webkit.profiles.user-initiated.4"},
		})}
	})
	h.engine.Handle("version", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{"V8Version": "3.14.5"})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Page.canOverrideDeviceMetrics", nil)
	resp := fe.waitForResponse(ctx, 1)
	assert.JSONEq(t, `{"result":false}`, string(resp.Result))

	fe.waitForConsole(ctx, "--- Device is connected.")
	fe.waitForEvent(ctx, devtools.EventDebuggerGlobalObjectCleared)
	fe.waitForEvent(ctx, devtools.EventProfilerResetProfiles)

	first := fe.waitForEvent(ctx, devtools.EventDebuggerScriptParsed)
	second := fe.waitForEvent(ctx, devtools.EventDebuggerScriptParsed)
	var a, b devtools.ScriptParsedParams
	require.NoError(t, json.Unmarshal(first.Params, &a))
	require.NoError(t, json.Unmarshal(second.Params, &b))
	assert.Equal(t, "a.js", a.URL)
	assert.Equal(t, "8", b.ScriptID)
	assert.NotEmpty(t, b.URL, "scripts without a name still get one")

	header := fe.waitForEvent(ctx, devtools.EventProfilerAddProfileHeader)
	assert.JSONEq(t, `{"header":{"typeId":"CPU","uid":4,"title":"org.webkit.profiles.user-initiated.4","isTemporary":false}}`, string(header.Params))

	fe.waitForConsole(ctx, "3.14.5")

	clears := h.engine.Requests("clearbreakpoint")
	require.Len(t, clears, 1)
	assert.EqualValues(t, 3, clears[0].Arguments.(map[string]any)["breakpoint"])
	assert.Len(t, h.engine.Requests("continue"), 1, "load resumes the target")

	assert.Equal(t, 5, h.cache.NextUID("CPU"), "uids reported by the target are not reused")
}

func TestLoadBeforeTargetConnects(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	h.engine.DropConnections()
	require.Eventually(t, func() bool { return !h.link.IsConnected() }, testTimeout, testPollInterval, "link never noticed the dropped connection")

	// The engine accepts the reconnection right away, so load may see either state.
	fe := h.connectFrontEnd(t, ctx)
	fe.send(1, "Page.canOverrideDeviceMetrics", nil)
	fe.waitForResponse(ctx, 1)

	fe.waitForConsole(ctx, "The Native Web Inspector")
	// Whichever way the race goes, the front end ends up loaded against the connected target.
	fe.waitForConsole(ctx, "V8 ")
}

func TestTargetDisconnectResetsPanels(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Page.canOverrideDeviceMetrics", nil)
	fe.waitForConsole(ctx, "--- Device is connected.")
	fe.waitForConsole(ctx, "V8 ")
	// Drain the panel resets sent while loading.
	fe.waitForEvent(ctx, devtools.EventDebuggerGlobalObjectCleared)
	fe.waitForEvent(ctx, devtools.EventProfilerResetProfiles)

	h.engine.DropConnections()

	disconnected := fe.waitForConsole(ctx, "--- Device disconnected.")
	assert.Equal(t, devtools.ConsoleLevelError, disconnected.Level)
	fe.waitForEvent(ctx, devtools.EventDebuggerGlobalObjectCleared)
	fe.waitForEvent(ctx, devtools.EventProfilerResetProfiles)

	// The link reconnects to the engine, which reloads the front end.
	fe.waitForConsole(ctx, "--- Device reconnected.")
	fe.waitForConsole(ctx, "V8 ")
}

func TestPausedAndResumed(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("backtrace", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{
			"frames": []map[string]any{{
				"type":     "frame",
				"index":    0,
				"receiver": map[string]any{"ref": 1, "className": "Window"},
				"func":     map[string]any{"ref": 2, "inferredName": "tick", "scriptId": 7},
				"line":     12,
				"column":   4,
				"scopes":   []map[string]any{{"type": 1, "index": 0}, {"type": 0, "index": 1}},
			}},
		})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	require.NoError(t, h.engine.SendEvent("break", map[string]any{
		"sourceLine":     12,
		"sourceColumn":   4,
		"sourceLineText": "  tick();",
		"script":         map[string]any{"id": 7, "name": "a.js", "lineOffset": 0, "lineCount": 40},
	}))

	evt := fe.waitForEvent(ctx, devtools.EventDebuggerPaused)
	var paused devtools.PausedParams
	require.NoError(t, json.Unmarshal(evt.Params, &paused))
	require.Len(t, paused.CallFrames, 1)
	assert.Equal(t, "tick", paused.CallFrames[0].FunctionName)
	assert.Equal(t, "7", paused.CallFrames[0].Location.ScriptID)
	require.Len(t, paused.CallFrames[0].ScopeChain, 2)
	assert.Equal(t, "0:0:backtrace", paused.CallFrames[0].ScopeChain[0].Object.ObjectID)
	require.NotNil(t, paused.CallFrames[0].This)
	assert.Equal(t, "0:0:1", paused.CallFrames[0].This.ObjectID)

	fe.send(2, "Debugger.resume", nil)
	resp := fe.waitForResponse(ctx, 2)
	assert.Nil(t, resp.Error)
	fe.waitForEvent(ctx, devtools.EventDebuggerResumed)
	assert.Len(t, h.engine.Requests("continue"), 1)
}

func TestBreakpointsInactiveAndPause(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("backtrace", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{"frames": []any{}})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Debugger.setBreakpointsActive", map[string]any{"active": false})
	fe.waitForResponse(ctx, 1)
	assert.False(t, h.link.BreakpointsActive())

	require.NoError(t, h.engine.SendEvent("break", map[string]any{"sourceLine": 1, "sourceLineText": "x"}))
	fe.waitForEvent(ctx, devtools.EventDebuggerResumed)
	_, err := h.engine.WaitForRequests(ctx, "continue", 1)
	require.NoError(t, err)

	fe.send(2, "Debugger.pause", nil)
	resp := fe.waitForResponse(ctx, 2)
	assert.Nil(t, resp.Error)
	assert.True(t, h.link.BreakpointsActive(), "a manual pause must not be resumed automatically")
	assert.Len(t, h.engine.Requests("suspend"), 1)
}

func TestStepping(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Debugger.stepInto", nil)
	fe.waitForResponse(ctx, 1)
	fe.send(2, "Debugger.stepOver", nil)
	fe.waitForResponse(ctx, 2)
	fe.send(3, "Debugger.stepOut", nil)
	fe.waitForResponse(ctx, 3)

	reqs := h.engine.Requests("continue")
	require.Len(t, reqs, 3)
	actions := []any{}
	for _, r := range reqs {
		args := r.Arguments.(map[string]any)
		assert.EqualValues(t, 1, args["stepcount"])
		actions = append(actions, args["stepaction"])
	}
	assert.Equal(t, []any{"in", "next", "out"}, actions)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("evaluate", func(req *v8debug.Request) *v8debug.Response {
		args := req.Arguments.(map[string]any)
		if args["expression"] == "boom" {
			return &v8debug.Response{Success: false, Message: "ReferenceError: boom is not defined"}
		}
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{
			"handle": 5, "type": "number", "value": 3, "text": "3",
		})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Runtime.evaluate", map[string]any{"expression": "1+2"})
	resp := fe.waitForResponse(ctx, 1)
	assert.JSONEq(t, `{"result":{"type":"number","description":"3","objectId":"0:0:5","value":3},"wasThrown":false}`, string(resp.Result))

	fe.send(2, "Runtime.evaluate", map[string]any{"expression": "boom"})
	resp = fe.waitForResponse(ctx, 2)
	assert.Nil(t, resp.Error, "evaluation errors are results, not protocol errors")
	assert.JSONEq(t, `{"result":{"type":"error","description":"ReferenceError: boom is not defined"},"wasThrown":true}`, string(resp.Result))

	fe.send(3, "Debugger.evaluateOnCallFrame", map[string]any{"expression": "x", "callFrameId": "2"})
	fe.waitForResponse(ctx, 3)

	reqs := h.engine.Requests("evaluate")
	require.Len(t, reqs, 3)
	global := reqs[0].Arguments.(map[string]any)
	assert.Equal(t, true, global["global"])
	inFrame := reqs[2].Arguments.(map[string]any)
	assert.EqualValues(t, 2, inFrame["frame"])
	assert.Equal(t, false, inFrame["global"])
}

func TestGetProperties(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("scope", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{
			Success: true,
			Body: v8debug.JSONBody(map[string]any{
				"type": 1, "index": 0, "frameIndex": 0,
				"object": map[string]any{
					"handle": 10, "type": "object",
					"properties": []map[string]any{{"name": "count", "value": map[string]any{"ref": 11}}},
				},
			}),
			Refs: []v8debug.Value{{Handle: 11, Type: "number", Value: json.RawMessage("4"), Text: "4"}},
		}
	})
	h.engine.Handle("lookup", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{
			Success: true,
			Body: v8debug.JSONBody(map[string]any{
				"20": map[string]any{
					"handle": 20, "type": "object", "className": "Point",
					"properties":  []map[string]any{{"name": "x", "ref": 21}, {"name": 0, "ref": 22}},
					"protoObject": map[string]any{"ref": 23},
				},
			}),
			Refs: []v8debug.Value{
				{Handle: 21, Type: "string", Value: json.RawMessage(`"left"`)},
				{Handle: 22, Type: "function", Text: "function f() {}"},
				{Handle: 23, Type: "object", ClassName: "Object"},
			},
		}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Runtime.getProperties", map[string]any{"objectId": "0:1:backtrace"})
	resp := fe.waitForResponse(ctx, 1)
	assert.JSONEq(t, `{"result":[{"name":"count","value":{"type":"number","description":"4","objectId":"0:0:11","value":4}}]}`, string(resp.Result))

	scopeArgs := h.engine.Requests("scope")[0].Arguments.(map[string]any)
	assert.EqualValues(t, 1, scopeArgs["number"])
	assert.EqualValues(t, 0, scopeArgs["frameNumber"])

	fe.send(2, "Runtime.getProperties", map[string]any{"objectId": "0:0:20"})
	resp = fe.waitForResponse(ctx, 2)
	var result getPropertiesResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Result, 3)
	assert.Equal(t, "x", result.Result[0].Name)
	assert.Equal(t, "left", result.Result[0].Value.Description)
	assert.Equal(t, "0", result.Result[1].Name)
	assert.Equal(t, "function f() {}", result.Result[1].Value.Description)
	assert.Equal(t, "__proto__", result.Result[2].Name)
	assert.Equal(t, "Object", result.Result[2].Value.Description)

	fe.send(3, "Runtime.getProperties", map[string]any{"objectId": "not-a-reference"})
	resp = fe.waitForResponse(ctx, 3)
	require.NotNil(t, resp.Error)
}

func TestUnknownMethodIsIgnored(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Network.enable", nil)
	fe.send(2, "Debugger.causesRecompilation", nil)

	// Requests are processed in order, so getting the second response means the first one was dropped.
	resp := fe.waitForResponse(ctx, 2)
	assert.JSONEq(t, `{"result":false}`, string(resp.Result))

	fe.lock.Lock()
	defer fe.lock.Unlock()
	for _, msg := range fe.backlog {
		assert.NotEqual(t, "1", string(msg.ID))
	}
}

func TestDisableIsRefused(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Debugger.disable", nil)
	resp := fe.waitForResponse(ctx, 1)
	require.NotNil(t, resp.Error)

	fe.send(2, "Profiler.disable", nil)
	resp = fe.waitForResponse(ctx, 2)
	require.NotNil(t, resp.Error)
}

func TestGetScriptSource(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("scripts", func(req *v8debug.Request) *v8debug.Response {
		ids := req.Arguments.(map[string]any)["ids"].([]any)
		if ids[0] == float64(7) {
			return &v8debug.Response{Success: true, Body: v8debug.JSONBody([]map[string]any{
				{"id": 7, "name": "a.js", "source": "var a = 1;"},
			})}
		}
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody([]any{})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Debugger.getScriptSource", map[string]any{"scriptId": "7"})
	resp := fe.waitForResponse(ctx, 1)
	assert.JSONEq(t, `{"scriptSource":"var a = 1;"}`, string(resp.Result))

	fe.send(2, "Debugger.getScriptSource", map[string]any{"scriptId": "8"})
	resp = fe.waitForResponse(ctx, 2)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Unable to load source file")
}

func TestRequestsFailWhileTargetIsDown(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	require.NoError(t, h.engine.Close())
	require.Eventually(t, func() bool { return !h.link.IsConnected() }, testTimeout, testPollInterval)

	fe := h.connectFrontEnd(t, ctx)
	fe.send(1, "Debugger.stepInto", nil)
	resp := fe.waitForResponse(ctx, 1)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, v8debug.ErrNotConnected.Error())
}
