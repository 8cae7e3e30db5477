/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"github.com/play-co/NativeInspector/internal/devtools"
)

// Topics a Link publishes on.
const (
	TopicConnect = "connect"
	TopicEvent   = "event"
	TopicClose   = "close"
)

type NotificationKind int

const (
	KindConnect NotificationKind = iota
	KindClose
	KindPaused
	KindResumed
	KindScriptParsed
	KindConsole
)

func (k NotificationKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindClose:
		return "close"
	case KindPaused:
		return "paused"
	case KindResumed:
		return "resumed"
	case KindScriptParsed:
		return "scriptParsed"
	case KindConsole:
		return "console"
	default:
		return "unknown"
	}
}

// Notification describes something that happened on a debug target.
// Exactly one of the payload fields is set, matching Kind; connect and close carry no payload.
type Notification struct {
	Kind    NotificationKind
	Address string

	Paused  *devtools.PausedParams
	Script  *devtools.ScriptParsedParams
	Console *devtools.ConsoleMessage
}
