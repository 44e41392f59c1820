// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides the terminal rendering pieces shared by the
// mission-control views: the color theme, scrollbars, modal overlays,
// change highlighting and compact charts (sparklines and gauges).
//
// Everything here is presentation only. Models built on bubbletea own
// their data and layout and call into this package to draw.
package tui
