/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"

	"github.com/play-co/NativeInspector/internal/devtools"
)

// The front end sends this once it has finished loading, which makes it a convenient load signal.
func (s *Session) pageCanOverrideDeviceMetrics(context.Context, *devtools.Message) (any, error) {
	s.after(s.onLoad)
	return boolResult{Result: false}, nil
}

func (s *Session) consoleEnable(context.Context, *devtools.Message) (any, error) {
	return nil, nil
}
