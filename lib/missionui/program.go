// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ErrSessionEnded is returned by Run when the dashboard quit because
// the service rejected the session.
var ErrSessionEnded = errors.New("missionui: session ended")

// Run shows the dashboard in the alternate screen until the user quits,
// ctx is cancelled, or the session ends. When handler is non-nil, log
// records are routed into the status bar for the program's lifetime.
func Run(ctx context.Context, backend Backend, options Options, handler *LogHandler) error {
	profile, override, err := ParseColorProfile(options.Color)
	if err != nil {
		return err
	}
	if override {
		lipgloss.SetColorProfile(profile)
	}

	model := NewModel(backend, options)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if handler != nil {
		handler.SetProgram(program)
		defer handler.SetProgram(nil)
	}

	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running dashboard: %w", err)
	}
	if finished, ok := final.(Model); ok && finished.Expired() {
		return ErrSessionEnded
	}
	return nil
}

// ParseColorProfile maps a color option to a termenv profile. override
// is false for "auto" and "", which keep the detected profile.
func ParseColorProfile(name string) (profile termenv.Profile, override bool, err error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return termenv.Ascii, false, nil
	case "ascii", "none":
		return termenv.Ascii, true, nil
	case "ansi", "16":
		return termenv.ANSI, true, nil
	case "ansi256", "256":
		return termenv.ANSI256, true, nil
	case "truecolor", "24bit":
		return termenv.TrueColor, true, nil
	}
	return termenv.Ascii, false, fmt.Errorf("unknown color profile %q (want auto, ascii, ansi, ansi256 or truecolor)", name)
}
