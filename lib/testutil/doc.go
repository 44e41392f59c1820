// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the small set of helpers shared by package
// tests: bounded channel waits ([RequireReceive], [RequireClosed],
// [RequireSilent]). These are the only places where tests use the real
// wall clock, and only as a hang guard.
//
// Helpers call t.Fatalf on failure instead of returning errors.
package testutil
