/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package v8debug implements a client for the V8 JavaScript engine debug protocol.
//
// The protocol runs over a TCP connection. Every message is a block of "Name: value" header
// lines terminated by an empty line, followed by Content-Length bytes of JSON. Right after
// the connection is established the engine sends a header-only frame carrying "Type: connect";
// only after that frame arrives is the engine considered connected.
//
// A Link owns the connection to one debug target. It correlates requests with responses,
// turns engine events (break, exception, afterCompile) into Notifications published on its
// event bus, and reconnects when the connection is lost.
package v8debug
