/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

const (
	userInitiatedProfilePrefix = "org.webkit.profiles.user-initiated."
	heapSnapshotTitlePrefix    = "Snapshot "

	heapSnapshotTotal = 100

	// Heap snapshots are streamed to the front end in pieces of this size.
	heapSnapshotChunkSize = 64 * 1024

	stalePayloadHint = "The application on the device was probably built with an outdated version of the native debugger. Rebuild it with the --debug flag and try again."
)

var (
	heapSnapshotMilestones = [...]int{10, 70, 100}

	errNotProfiling = errors.New("CPU profiling has not been started")
)

type cpuRecording struct {
	uid   int
	title string
}

type profileParams struct {
	Type string `json:"type"`
	UID  int    `json:"uid"`
}

type profileHeadersResult struct {
	Headers []devtools.ProfileHeader `json:"headers"`
}

type profileBody struct {
	Title  string          `json:"title"`
	UID    int             `json:"uid"`
	TypeID string          `json:"typeId"`
	Head   json.RawMessage `json:"head,omitempty"`
}

type profileResult struct {
	Profile profileBody `json:"profile"`
}

type heapObjectParams struct {
	ObjectID string `json:"objectId"`
}

func profileHeader(h profiles.Header) devtools.ProfileHeader {
	return devtools.ProfileHeader{
		TypeID: string(h.Kind),
		UID:    h.UID,
		Title:  h.Title,
	}
}

func (s *Session) profilerEnable(context.Context, *devtools.Message) (any, error) {
	s.log.V(1).Info("Profiler enabled")
	return nil, nil
}

func (s *Session) profilerDisable(context.Context, *devtools.Message) (any, error) {
	return nil, errors.New("the profiler cannot be disabled")
}

func (s *Session) profilerStart(ctx context.Context, _ *devtools.Message) (any, error) {
	if s.recording != nil {
		return nil, fmt.Errorf("CPU profile '%s' is already being recorded", s.recording.title)
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	uid := s.profiles.NextUID(profiles.CPU)
	title := userInitiatedProfilePrefix + strconv.Itoa(uid)
	if _, err = checkResponse(link.StartProfiling(ctx, title)); err != nil {
		return nil, err
	}

	s.recording = &cpuRecording{uid: uid, title: title}
	s.SendEvent(devtools.EventProfilerSetRecordingProfile, devtools.RecordingProfileParams{IsProfiling: true})
	return nil, nil
}

func (s *Session) profilerStop(ctx context.Context, _ *devtools.Message) (any, error) {
	if s.recording == nil {
		return nil, errNotProfiling
	}
	recording := s.recording
	s.recording = nil
	s.SendEvent(devtools.EventProfilerSetRecordingProfile, devtools.RecordingProfileParams{IsProfiling: false})

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(link.StopProfiling(ctx, recording.title))
	if err != nil {
		return nil, err
	}

	payload, err := cpuProfilePayload(resp)
	if err != nil {
		s.reportStalePayload("CPU profile", err)
		return nil, err
	}

	s.profiles.Store(profiles.CPU, recording.uid, recording.title, payload)
	s.announceProfile(profiles.Header{Kind: profiles.CPU, UID: recording.uid, Title: recording.title})
	return nil, nil
}

// Rebuilds the profile tree from the mirror returned by the engine and serializes it.
func cpuProfilePayload(resp *v8debug.Response) ([]byte, error) {
	var value v8debug.Value
	if err := resp.DecodeBody(&value); err != nil {
		return nil, err
	}

	flat := flattenValue(&value, resp.RefMap())
	profile, isObject := flat.(map[string]any)
	if !isObject {
		return nil, fmt.Errorf("CPU profile is a %s, not an object", value.Type)
	}
	if head, hasHead := profile["head"]; hasHead {
		return json.Marshal(head)
	}
	return json.Marshal(profile)
}

func heapSnapshotPayload(resp *v8debug.Response) ([]byte, error) {
	if len(resp.Body) == 0 || !json.Valid(resp.Body) {
		return nil, errors.New("heap snapshot returned by the debug target is not valid JSON")
	}
	return resp.Body, nil
}

// Every front end learns about the new profile, not just the one that asked for it.
func (s *Session) announceProfile(h profiles.Header) {
	s.registry.Broadcast(devtools.EventProfilerAddProfileHeader, devtools.ProfileHeaderParams{Header: profileHeader(h)})
}

func (s *Session) reportStalePayload(what string, err error) {
	s.log.Error(err, "Debug target sent a malformed profiling payload", "Payload", what)
	s.consolef(devtools.ConsoleLevelError, "Unable to read the %s sent by the device (%s). %s", what, err.Error(), stalePayloadHint)
}

func (s *Session) profilerGetProfileHeaders(context.Context, *devtools.Message) (any, error) {
	headers := s.profiles.Headers()
	result := profileHeadersResult{Headers: make([]devtools.ProfileHeader, 0, len(headers))}
	for _, h := range headers {
		result.Headers = append(result.Headers, profileHeader(h))
	}
	return result, nil
}

func (s *Session) profilerGetProfile(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[profileParams](msg)
	if err != nil {
		return nil, err
	}
	kind, err := profiles.ParseKind(params.Type)
	if err != nil {
		return nil, err
	}

	payload, found, err := s.profiles.Get(kind, params.UID)
	if err != nil {
		return nil, err
	}
	if !found {
		if payload, err = s.fetchProfile(ctx, kind, params.UID); err != nil {
			return nil, err
		}
	}

	header, _ := s.profiles.Header(kind, params.UID)
	result := profileResult{Profile: profileBody{
		Title:  header.Title,
		UID:    params.UID,
		TypeID: string(kind),
	}}

	switch kind {
	case profiles.CPU:
		result.Profile.Head = payload
	case profiles.HEAP:
		s.after(func(context.Context) { s.sendHeapSnapshot(params.UID, payload) })
	}
	return result, nil
}

// Gets a profile the cache only knows the header of from the target, and caches it.
func (s *Session) fetchProfile(ctx context.Context, kind profiles.Kind, uid int) ([]byte, error) {
	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(link.GetProfile(ctx, string(kind), uid))
	if err != nil {
		return nil, err
	}

	var payload []byte
	var payloadErr error
	if kind == profiles.CPU {
		payload, payloadErr = cpuProfilePayload(resp)
	} else {
		payload, payloadErr = heapSnapshotPayload(resp)
	}
	if payloadErr != nil {
		s.reportStalePayload(fmt.Sprintf("%s profile %d", kind, uid), payloadErr)
		return nil, payloadErr
	}

	title := ""
	if header, found := s.profiles.Header(kind, uid); found {
		title = header.Title
	}
	s.profiles.Store(kind, uid, title, payload)
	return payload, nil
}

func (s *Session) sendHeapSnapshot(uid int, payload []byte) {
	for start := 0; start < len(payload); {
		end := min(start+heapSnapshotChunkSize, len(payload))
		for end < len(payload) && end > start+1 && !utf8.RuneStart(payload[end]) {
			end--
		}
		s.SendEvent(devtools.EventProfilerAddHeapSnapshotChunk, devtools.HeapSnapshotChunkParams{
			UID:   uid,
			Chunk: string(payload[start:end]),
		})
		start = end
	}
	s.SendEvent(devtools.EventProfilerFinishHeapSnapshot, devtools.FinishHeapSnapshotParams{UID: uid})
}

func (s *Session) profilerRemoveProfile(_ context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[profileParams](msg)
	if err != nil {
		return nil, err
	}
	kind, err := profiles.ParseKind(params.Type)
	if err != nil {
		return nil, err
	}

	s.profiles.Remove(kind, params.UID)
	return nil, nil
}

func (s *Session) profilerClearProfiles(context.Context, *devtools.Message) (any, error) {
	s.profiles.Clear()
	return nil, nil
}

func (s *Session) profilerTakeHeapSnapshot(ctx context.Context, _ *devtools.Message) (any, error) {
	link, err := s.link()
	if err != nil {
		return nil, err
	}

	uid := s.profiles.NextUID(profiles.HEAP)
	title := heapSnapshotTitlePrefix + strconv.Itoa(uid)

	s.reportHeapSnapshotProgress(heapSnapshotMilestones[0])
	resp, err := checkResponse(link.TakeHeapSnapshot(ctx, uid))
	if err != nil {
		return nil, err
	}
	s.reportHeapSnapshotProgress(heapSnapshotMilestones[1])

	payload, err := heapSnapshotPayload(resp)
	if err != nil {
		s.reportStalePayload("heap snapshot", err)
		return nil, err
	}

	s.profiles.Store(profiles.HEAP, uid, title, payload)
	s.reportHeapSnapshotProgress(heapSnapshotMilestones[2])
	s.announceProfile(profiles.Header{Kind: profiles.HEAP, UID: uid, Title: title})
	return nil, nil
}

func (s *Session) reportHeapSnapshotProgress(done int) {
	s.SendEvent(devtools.EventProfilerHeapSnapshotProgress, devtools.HeapSnapshotProgressParams{
		Done:  done,
		Total: heapSnapshotTotal,
	})
}

// Heap object ids are assigned by the snapshot and do not correspond to live handles.
func (s *Session) profilerGetObjectByHeapObjectID(_ context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[heapObjectParams](msg)
	if err != nil {
		return nil, err
	}
	s.log.V(1).Info("Front end asked for a heap snapshot object", "ObjectID", params.ObjectID)
	return nil, fmt.Errorf("heap snapshot object %s cannot be inspected on the device", params.ObjectID)
}
