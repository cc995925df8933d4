// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for voteroom tests:
// channel receive/close assertions with timeout safety valves, so
// tests that exercise the session controller's goroutines cannot hang
// the suite.
package testutil
