/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package inspector connects WebKit inspector front ends to debug targets.
//
// Each front-end WebSocket connection is served by a Session, which translates front-end
// protocol methods into debug protocol requests sent to the currently selected target, and
// translates target notifications back into front-end events. Sessions are tracked by a
// Registry so that notifications that concern every front end (such as a new profile) can be broadcast.
package inspector
