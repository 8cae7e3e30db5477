/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/play-co/NativeInspector/internal/devtools"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

const (
	objectType   = "object"
	functionType = "function"
	arrayClass   = "Array"
)

// RemoteObjectFor projects an engine value onto the front end's remote object shape.
// A value the engine did not include in the response is reported as undefined.
func RemoteObjectFor(v *v8debug.Value) *devtools.RemoteObject {
	if v == nil {
		return &devtools.RemoteObject{Type: "undefined", Description: "undefined"}
	}

	ro := &devtools.RemoteObject{
		Type:      v.Type,
		ClassName: v.ClassName,
		ObjectID:  devtools.NewHandleRef(v.Handle).Encode(),
	}

	switch {
	case len(v.Value) > 0:
		ro.Value = v.Value
		ro.Description = v.Text
		if ro.Description == "" {
			ro.Description = primitiveDescription(v.Value)
		}
	case v.Text != "":
		ro.Value = textValue(v.Text)
		ro.Description = v.Text
	}

	switch v.Type {
	case objectType:
		if v.ClassName != "" {
			ro.Description = v.ClassName
		} else {
			ro.Description = "Object"
		}
	case functionType:
		if v.Text != "" {
			ro.Description = v.Text
		} else {
			ro.Description = "function()"
		}
	}

	return ro
}

func textValue(text string) json.RawMessage {
	b, _ := json.Marshal(text)
	return b
}

// Strings are shown without quotes, everything else the way JSON spells it.
func primitiveDescription(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Properties converts the properties of an engine object into front-end property descriptors,
// resolving each property value through the references that came with the response.
func Properties(props []v8debug.Property, refs map[int]*v8debug.Value) []devtools.PropertyDescriptor {
	retval := make([]devtools.PropertyDescriptor, 0, len(props))
	for i := range props {
		retval = append(retval, devtools.PropertyDescriptor{
			Name:  string(props[i].Name),
			Value: RemoteObjectFor(refs[props[i].Handle()]),
		})
	}
	return retval
}

// flattenValue rebuilds a plain data structure from an engine value and its references.
// Objects become maps, arrays become slices ordered by index, primitives keep their JSON value.
// A value that refers back to one of its ancestors is cut off and becomes nil.
func flattenValue(v *v8debug.Value, refs map[int]*v8debug.Value) any {
	return flatten(v, refs, make(map[int]bool))
}

func flatten(v *v8debug.Value, refs map[int]*v8debug.Value, ancestors map[int]bool) any {
	if v == nil {
		return nil
	}

	if v.Type != objectType {
		if len(v.Value) > 0 {
			return v.Value
		}
		if v.Text != "" && v.Type != "undefined" && v.Type != "null" {
			return v.Text
		}
		return nil
	}

	if ancestors[v.Handle] {
		return nil
	}
	ancestors[v.Handle] = true
	defer delete(ancestors, v.Handle)

	if v.ClassName == arrayClass {
		type element struct {
			index int
			value any
		}
		elements := make([]element, 0, len(v.Properties))
		for i := range v.Properties {
			p := &v.Properties[i]
			index, err := strconv.Atoi(string(p.Name))
			if err != nil {
				continue // length and other named properties
			}
			elements = append(elements, element{index, flatten(refs[p.Handle()], refs, ancestors)})
		}
		sort.SliceStable(elements, func(i, j int) bool { return elements[i].index < elements[j].index })

		retval := make([]any, 0, len(elements))
		for _, e := range elements {
			retval = append(retval, e.value)
		}
		return retval
	}

	retval := make(map[string]any, len(v.Properties))
	for i := range v.Properties {
		p := &v.Properties[i]
		retval[string(p.Name)] = flatten(refs[p.Handle()], refs, ancestors)
	}
	return retval
}
