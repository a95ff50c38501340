// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject Fake() and advance time deterministically. Any
// function that would call time.Now or time.After takes a Clock instead,
// so that polling loops and deadlines can be tested without real sleeps.
package clock

import "time"

// Clock provides the time operations releasetrain needs: reading the
// current time and waiting for a duration to elapse.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. Equivalent to time.After. If d <= 0,
	// the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}
