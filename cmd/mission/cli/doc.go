// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the mission binary.
//
// A [Command] tree dispatches on the first positional argument. Leaf
// commands declare their flags as a tagged params struct (see
// [BindFlags]) and receive a context and logger in Run. Unknown
// commands and flags get an edit-distance suggestion.
//
// Failures that should reach the user with a specific exit code are
// returned as [ExitError]. Everything else is classified by
// [ToolError] so the entry point can print the right hint.
package cli
