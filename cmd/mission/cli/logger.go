// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// NewCommandLogger returns the logger passed to every command: text on
// a terminal, JSON lines otherwise, both on stderr. MISSION_LOG_LEVEL
// selects the level (debug, info, warn, error).
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: levelFromEnvironment()}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func levelFromEnvironment() slog.Level {
	var level slog.Level
	value := strings.TrimSpace(os.Getenv("MISSION_LOG_LEVEL"))
	if value == "" || level.UnmarshalText([]byte(value)) != nil {
		return slog.LevelWarn
	}
	return level
}
