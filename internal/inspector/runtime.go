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

type evaluateParams struct {
	Expression  string `json:"expression"`
	CallFrameID string `json:"callFrameId,omitempty"`
}

type evaluateResult struct {
	Result    *devtools.RemoteObject `json:"result"`
	WasThrown bool                   `json:"wasThrown"`
}

type getPropertiesParams struct {
	ObjectID string `json:"objectId"`
}

type getPropertiesResult struct {
	Result []devtools.PropertyDescriptor `json:"result"`
}

const protoPropertyName = "__proto__"

func (s *Session) runtimeEvaluate(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[evaluateParams](msg)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, params.Expression, nil)
}

// Evaluation failures are results with wasThrown set, not protocol errors.
func (s *Session) evaluate(ctx context.Context, expression string, frame *int) (any, error) {
	link, err := s.link()
	if err != nil {
		return nil, err
	}

	resp, err := link.Evaluate(ctx, expression, frame)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return evaluateResult{
			Result:    &devtools.RemoteObject{Type: "error", Description: resp.Message},
			WasThrown: true,
		}, nil
	}

	var value v8debug.Value
	if decodeErr := resp.DecodeBody(&value); decodeErr != nil {
		return nil, decodeErr
	}
	return evaluateResult{Result: RemoteObjectFor(&value)}, nil
}

func (s *Session) runtimeGetProperties(ctx context.Context, msg *devtools.Message) (any, error) {
	params, err := decodeParams[getPropertiesParams](msg)
	if err != nil {
		return nil, err
	}

	ref, err := devtools.ParseObjectRef(params.ObjectID)
	if err != nil {
		return nil, err
	}

	link, err := s.link()
	if err != nil {
		return nil, err
	}

	if ref.IsScope() {
		return scopeProperties(ctx, link, ref)
	}
	return objectProperties(ctx, link, ref)
}

func scopeProperties(ctx context.Context, link *v8debug.Link, ref devtools.ObjectRef) (any, error) {
	resp, err := checkResponse(link.Scope(ctx, ref.Scope, ref.Frame))
	if err != nil {
		return nil, err
	}

	var body v8debug.ScopeBody
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		return nil, decodeErr
	}

	result := getPropertiesResult{Result: []devtools.PropertyDescriptor{}}
	if body.Object != nil {
		result.Result = Properties(body.Object.Properties, resp.RefMap())
	}
	return result, nil
}

func objectProperties(ctx context.Context, link *v8debug.Link, ref devtools.ObjectRef) (any, error) {
	handle, err := ref.HandleID()
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(link.Lookup(ctx, []int{handle}, false))
	if err != nil {
		return nil, err
	}

	// Lookup results are keyed by the handle.
	var body map[string]*v8debug.Value
	if decodeErr := resp.DecodeBody(&body); decodeErr != nil {
		return nil, decodeErr
	}

	obj := body[strconv.Itoa(handle)]
	if obj == nil {
		return nil, fmt.Errorf("debug target has no object with handle %d", handle)
	}

	refs := resp.RefMap()
	props := Properties(obj.Properties, refs)
	if obj.ProtoObject != nil {
		props = append(props, devtools.PropertyDescriptor{
			Name:  protoPropertyName,
			Value: RemoteObjectFor(refs[obj.ProtoObject.Ref]),
		})
	}
	return getPropertiesResult{Result: props}, nil
}

func (s *Session) runtimeReleaseObjectGroup(context.Context, *devtools.Message) (any, error) {
	// Handles are only valid while the target is paused; there is nothing to release.
	return nil, nil
}

func (s *Session) runtimeCallFunctionOn(_ context.Context, msg *devtools.Message) (any, error) {
	s.log.Info("Front end asked to call a function on a remote object", "Params", string(msg.Params))
	return nil, errors.New("calling functions on remote objects is not supported")
}
