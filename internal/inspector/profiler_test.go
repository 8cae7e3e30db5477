/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

// CPU profile as the engine describes it: a mirror whose values are in the refs.
func cpuProfileResponse() *v8debug.Response {
	return &v8debug.Response{
		Success: true,
		Body: v8debug.JSONBody(map[string]any{
			"handle": 1, "type": "object", "className": "Object",
			"properties": []map[string]any{{"name": "head", "ref": 2}},
		}),
		Refs: []v8debug.Value{
			{Handle: 2, Type: "object", ClassName: "Object", Properties: []v8debug.Property{
				{Name: "functionName", Ref: 3},
				{Name: "totalTime", Ref: 4},
				{Name: "children", Ref: 5},
			}},
			{Handle: 3, Type: "string", Value: json.RawMessage(`"(root)"`)},
			{Handle: 4, Type: "number", Value: json.RawMessage(`12.5`)},
			{Handle: 5, Type: "object", ClassName: "Array", Properties: []v8debug.Property{
				{Name: "length", Ref: 6},
			}},
			{Handle: 6, Type: "number", Value: json.RawMessage(`0`)},
		},
	}
}

const expectedCPUProfileHead = `{"functionName":"(root)","totalTime":12.5,"children":[]}`

func handleProfilerCommands(h *harness) {
	h.engine.Handle("profiler", func(req *v8debug.Request) *v8debug.Response {
		switch req.Arguments.(map[string]any)["command"] {
		case "stop", "get":
			return cpuProfileResponse()
		case "headers":
			return &v8debug.Response{Success: true, Body: v8debug.JSONBody([]any{})}
		default:
			return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{})}
		}
	})
}

func TestCPUProfiling(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	handleProfilerCommands(h)
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)
	observer := h.connectFrontEnd(t, ctx)

	fe.send(1, "Profiler.start", nil)
	resp := fe.waitForResponse(ctx, 1)
	require.Nil(t, resp.Error)
	recording := fe.waitForEvent(ctx, devtools.EventProfilerSetRecordingProfile)
	assert.JSONEq(t, `{"isProfiling":true}`, string(recording.Params))

	starts := h.engine.Requests("profiler")
	require.Len(t, starts, 1)
	assert.Equal(t, "start", starts[0].Arguments.(map[string]any)["command"])
	assert.Equal(t, "org.webkit.profiles.user-initiated.1", starts[0].Arguments.(map[string]any)["title"])

	fe.send(2, "Profiler.start", nil)
	resp = fe.waitForResponse(ctx, 2)
	require.NotNil(t, resp.Error, "only one recording at a time")

	fe.send(3, "Profiler.stop", nil)
	resp = fe.waitForResponse(ctx, 3)
	require.Nil(t, resp.Error)

	// Every front end learns about the new profile.
	expectedHeader := `{"header":{"typeId":"CPU","uid":1,"title":"org.webkit.profiles.user-initiated.1","isTemporary":false}}`
	assert.JSONEq(t, expectedHeader, string(fe.waitForEvent(ctx, devtools.EventProfilerAddProfileHeader).Params))
	assert.JSONEq(t, expectedHeader, string(observer.waitForEvent(ctx, devtools.EventProfilerAddProfileHeader).Params))

	fe.send(4, "Profiler.getProfile", map[string]any{"type": "CPU", "uid": 1})
	resp = fe.waitForResponse(ctx, 4)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"profile":{"title":"org.webkit.profiles.user-initiated.1","uid":1,"typeId":"CPU","head":`+expectedCPUProfileHead+`}}`, string(resp.Result))
	assert.Len(t, h.engine.Requests("profiler"), 2, "cached profiles are not fetched again")

	fe.send(5, "Profiler.getProfileHeaders", nil)
	resp = fe.waitForResponse(ctx, 5)
	assert.JSONEq(t, `{"headers":[{"typeId":"CPU","uid":1,"title":"org.webkit.profiles.user-initiated.1","isTemporary":false}]}`, string(resp.Result))

	fe.send(6, "Profiler.removeProfile", map[string]any{"type": "CPU", "uid": 1})
	fe.waitForResponse(ctx, 6)
	_, found := h.cache.Header(profiles.CPU, 1)
	assert.False(t, found)
}

func TestProfileIsFetchedWhenNotCached(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	handleProfilerCommands(h)
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	h.cache.GotHeader(profiles.CPU, 9, "recorded on device")

	fe.send(1, "Profiler.getProfile", map[string]any{"type": "CPU", "uid": 9})
	resp := fe.waitForResponse(ctx, 1)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"profile":{"title":"recorded on device","uid":9,"typeId":"CPU","head":`+expectedCPUProfileHead+`}}`, string(resp.Result))

	gets := h.engine.Requests("profiler")
	require.Len(t, gets, 1)
	args := gets[0].Arguments.(map[string]any)
	assert.Equal(t, "get", args["command"])
	assert.Equal(t, "CPU", args["type"])
	assert.EqualValues(t, 9, args["uid"])

	payload, found, err := h.cache.Get(profiles.CPU, 9)
	require.NoError(t, err)
	require.True(t, found, "fetched profiles are cached")
	assert.JSONEq(t, expectedCPUProfileHead, string(payload))
}

func TestHeapSnapshot(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	snapshot := map[string]any{
		"snapshot": map[string]any{"title": "Snapshot 1", "uid": 1},
		"nodes":    []int{0, 1, 2, 3},
		"strings":  []string{"", "(GC roots)", strings.Repeat("x", 3*heapSnapshotChunkSize)},
	}

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("heapsnapshot", func(*v8debug.Request) *v8debug.Response {
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(snapshot)}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Profiler.takeHeapSnapshot", nil)
	for _, done := range heapSnapshotMilestones {
		evt := fe.waitForEvent(ctx, devtools.EventProfilerHeapSnapshotProgress)
		var progress devtools.HeapSnapshotProgressParams
		require.NoError(t, json.Unmarshal(evt.Params, &progress))
		assert.Equal(t, done, progress.Done)
		assert.Equal(t, heapSnapshotTotal, progress.Total)
	}
	resp := fe.waitForResponse(ctx, 1)
	require.Nil(t, resp.Error)

	header := fe.waitForEvent(ctx, devtools.EventProfilerAddProfileHeader)
	assert.JSONEq(t, `{"header":{"typeId":"HEAP","uid":1,"title":"Snapshot 1","isTemporary":false}}`, string(header.Params))

	fe.send(2, "Profiler.getProfile", map[string]any{"type": "HEAP", "uid": 1})
	resp = fe.waitForResponse(ctx, 2)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"profile":{"title":"Snapshot 1","uid":1,"typeId":"HEAP"}}`, string(resp.Result))

	var sb strings.Builder
	chunks := 0
	for {
		evt := fe.waitFor(ctx, "heap snapshot chunk", func(msg *received) bool {
			return msg.Method == devtools.EventProfilerAddHeapSnapshotChunk || msg.Method == devtools.EventProfilerFinishHeapSnapshot
		})
		if evt.Method == devtools.EventProfilerFinishHeapSnapshot {
			assert.JSONEq(t, `{"uid":1}`, string(evt.Params))
			break
		}
		var chunk devtools.HeapSnapshotChunkParams
		require.NoError(t, json.Unmarshal(evt.Params, &chunk))
		assert.Equal(t, 1, chunk.UID)
		sb.WriteString(chunk.Chunk)
		chunks++
	}

	assert.Greater(t, chunks, 1)
	assert.JSONEq(t, string(mustJSON(t, snapshot)), sb.String())
	assert.Len(t, h.engine.Requests("heapsnapshot"), 1)
}

func TestMalformedProfileIsReported(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.engine.Handle("profiler", func(req *v8debug.Request) *v8debug.Response {
		if req.Arguments.(map[string]any)["command"] == "stop" {
			return &v8debug.Response{Success: true, Body: v8debug.JSONBody("profiling is not compiled in")}
		}
		return &v8debug.Response{Success: true, Body: v8debug.JSONBody(map[string]any{})}
	})
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Profiler.start", nil)
	fe.waitForResponse(ctx, 1)
	fe.send(2, "Profiler.stop", nil)
	resp := fe.waitForResponse(ctx, 2)
	require.NotNil(t, resp.Error)

	console := fe.waitForConsole(ctx, "outdated version of the native debugger")
	assert.Equal(t, devtools.ConsoleLevelError, console.Level)
	assert.Empty(t, h.cache.Headers())
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	ctx := getTestContext(t)

	h := newHarness(t, ctx, t.TempDir())
	h.waitForTarget(t)
	fe := h.connectFrontEnd(t, ctx)

	fe.send(1, "Profiler.stop", nil)
	resp := fe.waitForResponse(ctx, 1)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errNotProfiling.Error(), resp.Error.Message)
	assert.Empty(t, h.engine.Requests("profiler"))
}
