// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package missionui is the interactive terminal dashboard: stat cards,
// the quota gauge with its usage history, the filterable task list, a
// dispatch form and the bulk-action confirmations.
//
// The model never owns task or quota state. It renders whatever the
// [Backend] projects and re-renders on every change notification, so
// speculative rows from an in-flight dispatch appear as soon as the
// backend inserts them and are replaced when the refresh lands.
//
// When the backend reports that the session ended (a 401 from any
// request), the program quits and [Run] returns [ErrSessionEnded] so
// the caller can print a login hint.
package missionui
