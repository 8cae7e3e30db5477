/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"fmt"
	"strconv"

	"github.com/play-co/NativeInspector/internal/devtools"
)

const stackFrameType = "frame"

// Engine scope types, indexed by the numeric scope type in a backtrace.
var scopeTypeNames = []string{
	0: "global",
	1: "local",
	2: "with",
	3: "closure",
	4: "catch",
}

const localScopeType = 1

// ConvertCallFrames turns backtrace frames into front-end call frames.
// Entries that are not real stack frames are skipped.
func ConvertCallFrames(frames []BacktraceFrame) []devtools.CallFrame {
	retval := make([]devtools.CallFrame, 0, len(frames))

	for _, f := range frames {
		if f.Type != stackFrameType {
			continue
		}

		functionName := f.Func.InferredName
		if functionName == "" {
			functionName = f.Func.Name
		}

		cf := devtools.CallFrame{
			CallFrameID:  strconv.Itoa(f.Index),
			FunctionName: functionName,
			Location: devtools.Location{
				ScriptID:     strconv.Itoa(f.Func.ScriptID),
				LineNumber:   f.Line,
				ColumnNumber: f.Column,
			},
			ScopeChain: make([]devtools.Scope, 0, len(f.Scopes)),
		}

		for _, s := range f.Scopes {
			scopeType := "unknown"
			if s.Type >= 0 && s.Type < len(scopeTypeNames) {
				scopeType = scopeTypeNames[s.Type]
			}

			if s.Type == localScopeType {
				cf.This = &devtools.RemoteObject{
					Type:        "object",
					ClassName:   f.Receiver.ClassName,
					Description: f.Receiver.ClassName,
					ObjectID:    devtools.ObjectRef{Frame: f.Index, Scope: s.Index, Handle: strconv.Itoa(f.Receiver.Ref)}.Encode(),
				}
			}

			cf.ScopeChain = append(cf.ScopeChain, devtools.Scope{
				Type: scopeType,
				Object: &devtools.RemoteObject{
					Type:        "object",
					Description: fmt.Sprintf("Scope Index %d", f.Index),
					ObjectID:    devtools.NewScopeRef(f.Index, s.Index).Encode(),
				},
			})
		}

		retval = append(retval, cf)
	}

	return retval
}
