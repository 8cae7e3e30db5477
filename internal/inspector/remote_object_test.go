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

	"github.com/play-co/NativeInspector/internal/v8debug"
)

func TestRemoteObjectFor(t *testing.T) {
	t.Parallel()

	type testcase struct {
		description         string
		value               *v8debug.Value
		expectedType        string
		expectedValue       string
		expectedDescription string
		expectedObjectID    string
	}

	testcases := []testcase{
		{
			description:         "missing value",
			value:               nil,
			expectedType:        "undefined",
			expectedDescription: "undefined",
		},
		{
			description:         "number keeps its JSON value",
			value:               &v8debug.Value{Handle: 4, Type: "number", Value: json.RawMessage(`42`), Text: "42"},
			expectedType:        "number",
			expectedValue:       `42`,
			expectedDescription: "42",
			expectedObjectID:    "0:0:4",
		},
		{
			description:         "string is described without quotes",
			value:               &v8debug.Value{Handle: 5, Type: "string", Value: json.RawMessage(`"hello"`)},
			expectedType:        "string",
			expectedValue:       `"hello"`,
			expectedDescription: "hello",
			expectedObjectID:    "0:0:5",
		},
		{
			description:         "object is described by its class",
			value:               &v8debug.Value{Handle: 7, Type: "object", ClassName: "Array"},
			expectedType:        "object",
			expectedDescription: "Array",
			expectedObjectID:    "0:0:7",
		},
		{
			description:         "object without a class",
			value:               &v8debug.Value{Handle: 8, Type: "object"},
			expectedType:        "object",
			expectedDescription: "Object",
			expectedObjectID:    "0:0:8",
		},
		{
			description:         "function is described by its source",
			value:               &v8debug.Value{Handle: 9, Type: "function", Text: "function tick(dt) { ... }"},
			expectedType:        "function",
			expectedValue:       `"function tick(dt) { ... }"`,
			expectedDescription: "function tick(dt) { ... }",
			expectedObjectID:    "0:0:9",
		},
		{
			description:         "function without source",
			value:               &v8debug.Value{Handle: 10, Type: "function"},
			expectedType:        "function",
			expectedDescription: "function()",
			expectedObjectID:    "0:0:10",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()
			ro := RemoteObjectFor(tc.value)
			require.NotNil(t, ro)
			assert.Equal(t, tc.expectedType, ro.Type)
			assert.Equal(t, tc.expectedDescription, ro.Description)
			assert.Equal(t, tc.expectedObjectID, ro.ObjectID)
			if tc.expectedValue == "" {
				assert.Empty(t, ro.Value)
			} else {
				assert.JSONEq(t, tc.expectedValue, string(ro.Value))
			}
		})
	}
}

func TestPropertiesResolveReferences(t *testing.T) {
	t.Parallel()

	refs := map[int]*v8debug.Value{
		2: {Handle: 2, Type: "number", Value: json.RawMessage(`1`)},
		3: {Handle: 3, Type: "object", ClassName: "Sprite"},
	}
	props := []v8debug.Property{
		{Name: "x", Ref: 2},
		{Name: "sprite", Value: &v8debug.Ref{Ref: 3}},
		{Name: "missing", Ref: 99},
	}

	descriptors := Properties(props, refs)
	require.Len(t, descriptors, 3)

	assert.Equal(t, "x", descriptors[0].Name)
	assert.JSONEq(t, `1`, string(descriptors[0].Value.Value))

	assert.Equal(t, "sprite", descriptors[1].Name)
	assert.Equal(t, "Sprite", descriptors[1].Value.Description)
	assert.Equal(t, "0:0:3", descriptors[1].Value.ObjectID)

	assert.Equal(t, "missing", descriptors[2].Name)
	assert.Equal(t, "undefined", descriptors[2].Value.Type)
}

func TestFlattenValue(t *testing.T) {
	t.Parallel()

	// {name: "root", children: [child, child], self: <cycle>} where child = {name: "leaf"}
	refs := map[int]*v8debug.Value{
		1: {Handle: 1, Type: "object", Properties: []v8debug.Property{
			{Name: "name", Ref: 2},
			{Name: "children", Ref: 3},
			{Name: "self", Ref: 1},
		}},
		2: {Handle: 2, Type: "string", Value: json.RawMessage(`"root"`)},
		3: {Handle: 3, Type: "object", ClassName: "Array", Properties: []v8debug.Property{
			{Name: "1", Ref: 4},
			{Name: "length", Ref: 6},
			{Name: "0", Ref: 4},
		}},
		4: {Handle: 4, Type: "object", Properties: []v8debug.Property{
			{Name: "name", Ref: 5},
		}},
		5: {Handle: 5, Type: "string", Value: json.RawMessage(`"leaf"`)},
		6: {Handle: 6, Type: "number", Value: json.RawMessage(`2`)},
	}

	flat := flattenValue(refs[1], refs)
	b, err := json.Marshal(flat)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"root","children":[{"name":"leaf"},{"name":"leaf"}],"self":null}`, string(b))
}

func TestFlattenPrimitives(t *testing.T) {
	t.Parallel()

	assert.Nil(t, flattenValue(nil, nil))
	assert.Nil(t, flattenValue(&v8debug.Value{Type: "undefined", Text: "undefined"}, nil))
	assert.Nil(t, flattenValue(&v8debug.Value{Type: "null", Text: "null"}, nil))
	assert.Equal(t, json.RawMessage(`true`), flattenValue(&v8debug.Value{Type: "boolean", Value: json.RawMessage(`true`)}, nil))
	assert.Equal(t, "function f() {}", flattenValue(&v8debug.Value{Type: "function", Text: "function f() {}"}, nil))
}
