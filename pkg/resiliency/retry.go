/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Returns a back-off policy that waits the same amount of time between attempts and never gives up.
// The retry loop ends only when the operation succeeds, a permanent error occurs, or the context is cancelled.
func FixedDelay(delay time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(delay)
}

// Try calling factory function with given backoff policy until a value is successfully created,
// or a permanent error occurs, or the passed context is cancelled.
//
// The notify function (optional) is called after every failed attempt, before waiting for the next one.
func RetryGet[T any](ctx context.Context, b backoff.BackOff, factory func() (T, error), notify ...backoff.Notify) (T, error) {
	var lastAttemptErr error

	retval, err := backoff.RetryNotifyWithData(
		factory,
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastAttemptErr = err
			for _, n := range notify {
				n(err, d)
			}
		},
	)

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		// Inform the caller about the cancellation AND the last attempt error.
		return *new(T), errors.Join(lastAttemptErr, err)
	case err != nil:
		return *new(T), err
	default:
		return retval, nil
	}
}

// Try calling operation function with given backoff policy until it succeeds,
// or a permanent error occurs, or the passed context is cancelled.
func Retry(ctx context.Context, b backoff.BackOff, operation func() error) error {
	_, err := RetryGet(ctx, b, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// Creates a permanent error that stops the retry loop.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
