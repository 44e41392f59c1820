// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for the mission-control views. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
//
// Besides the chrome (text, selection, borders) it carries the two
// semantic scales the dashboard draws with: task lifecycle status and
// quota pressure.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Task status colors.
	StatusPending    lipgloss.Color
	StatusProcessing lipgloss.Color
	StatusCompleted  lipgloss.Color
	StatusFailed     lipgloss.Color
	StatusCancelled  lipgloss.Color

	// Quota pressure (indexed 0-2: normal, elevated, critical).
	LevelColors [3]lipgloss.Color

	// UI chrome.
	Accent           lipgloss.Color
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Background tints for rows that just appeared or changed, and for
	// rows still waiting on server confirmation.
	HotAccent         lipgloss.Color
	SpeculativeAccent lipgloss.Color

	// Fuzzy match highlighting.
	SearchHighlightBackground lipgloss.Color

	// Modal dialogs.
	ModalForeground lipgloss.Color
	ModalBackground lipgloss.Color
	DangerText      lipgloss.Color
}

// StatusColor returns the color for a task status as the service
// spells it. Unknown values get FaintText.
func (theme Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case "Pending":
		return theme.StatusPending
	case "Processing":
		return theme.StatusProcessing
	case "Completed":
		return theme.StatusCompleted
	case "Failed":
		return theme.StatusFailed
	case "Cancelled":
		return theme.StatusCancelled
	default:
		return theme.FaintText
	}
}

// LevelColor returns the color for a quota pressure level (0-2).
// Out-of-range values return NormalText.
func (theme Theme) LevelColor(level int) lipgloss.Color {
	if level < 0 || level >= len(theme.LevelColors) {
		return theme.NormalText
	}
	return theme.LevelColors[level]
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusPending:    lipgloss.Color("75"),  // blue
	StatusProcessing: lipgloss.Color("220"), // amber
	StatusCompleted:  lipgloss.Color("114"), // green
	StatusFailed:     lipgloss.Color("196"), // red
	StatusCancelled:  lipgloss.Color("245"), // gray

	LevelColors: [3]lipgloss.Color{
		lipgloss.Color("114"), // normal
		lipgloss.Color("208"), // elevated
		lipgloss.Color("196"), // critical
	},

	Accent:           lipgloss.Color("220"),
	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	HotAccent:         lipgloss.Color("58"),
	SpeculativeAccent: lipgloss.Color("17"),

	SearchHighlightBackground: lipgloss.Color("58"),

	ModalForeground: lipgloss.Color("252"),
	ModalBackground: lipgloss.Color("237"),
	DangerText:      lipgloss.Color("203"),
}
