// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The voting session controller owns two periodic tasks (a
// reconciliation poll and a countdown) plus a bounded initial load.
// Testing those paths against the wall clock is flaky by construction,
// so every timed component takes a [Clock]. Production wiring passes
// [Real]; tests pass [Fake] and drive time with Advance, using
// WaitForTimers to eliminate the race between a goroutine registering
// a timer and the test advancing past its deadline.
package clock
