// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderScrollbar produces a single-column scrollbar of the given
// height for a list of totalItems rows of which visibleItems are shown
// starting at scrollOffset. The thumb uses the accent color when the
// list has focus.
func RenderScrollbar(theme Theme, height, totalItems, visibleItems, scrollOffset int, focused bool) string {
	if height <= 0 {
		return ""
	}

	thumbColor := theme.BorderColor
	if focused {
		thumbColor = theme.Accent
	}
	track := lipgloss.NewStyle().Foreground(theme.BorderColor).Render("│")
	thumb := lipgloss.NewStyle().Foreground(thumbColor).Render("┃")

	start, size := thumbSpan(height, totalItems, visibleItems, scrollOffset)
	lines := make([]string, height)
	for index := range lines {
		if index >= start && index < start+size {
			lines[index] = thumb
		} else {
			lines[index] = track
		}
	}
	return strings.Join(lines, "\n")
}

// thumbSpan returns the first row and the row count of the thumb. When
// everything fits the thumb fills the track.
func thumbSpan(height, totalItems, visibleItems, scrollOffset int) (start, size int) {
	if totalItems <= 0 || totalItems <= visibleItems {
		return 0, height
	}

	size = max(height*visibleItems/totalItems, 1)
	scrollable := totalItems - visibleItems
	travel := height - size
	if scrollable > 0 && travel > 0 {
		start = min(max(scrollOffset, 0), scrollable) * travel / scrollable
	}
	return min(start, height-size), size
}
