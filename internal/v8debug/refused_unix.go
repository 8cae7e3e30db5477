//go:build !windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package v8debug

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Reports whether a dial failed because nothing listens on the target port.
func isConnectionRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
