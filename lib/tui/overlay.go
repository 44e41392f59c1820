// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// SpliceOverlay replaces a rectangular region of a rendered view with
// overlay lines placed at (anchorX, anchorY). Truncation is ANSI-aware,
// so styling on either side of the overlay survives.
func SpliceOverlay(view string, overlayLines []string, anchorX, anchorY int) string {
	if len(overlayLines) == 0 {
		return view
	}

	viewLines := strings.Split(view, "\n")
	overlayWidth := ansi.StringWidth(overlayLines[0])

	for index, overlayLine := range overlayLines {
		row := anchorY + index
		if row < 0 || row >= len(viewLines) {
			continue
		}
		line := viewLines[row]

		var spliced strings.Builder
		if anchorX > 0 {
			prefix := ansi.Truncate(line, anchorX, "")
			spliced.WriteString(prefix)
			if gap := anchorX - ansi.StringWidth(prefix); gap > 0 {
				spliced.WriteString(strings.Repeat(" ", gap))
			}
		}
		spliced.WriteString("\x1b[0m")
		spliced.WriteString(overlayLine)
		spliced.WriteString("\x1b[0m")
		if suffixStart := anchorX + overlayWidth; suffixStart < ansi.StringWidth(line) {
			spliced.WriteString(ansi.TruncateLeft(line, suffixStart, ""))
		}
		viewLines[row] = spliced.String()
	}

	return strings.Join(viewLines, "\n")
}

// CenterOverlay splices overlay lines into the middle of a view of the
// given dimensions.
func CenterOverlay(view string, overlayLines []string, width, height int) string {
	if len(overlayLines) == 0 {
		return view
	}
	overlayWidth := ansi.StringWidth(overlayLines[0])
	anchorX := max((width-overlayWidth)/2, 0)
	anchorY := max((height-len(overlayLines))/2, 0)
	return SpliceOverlay(view, overlayLines, anchorX, anchorY)
}

// PadOverlayLine pads styled content to innerWidth with background
// colored spaces and adds a one-column margin on each side.
func PadOverlayLine(styledContent string, innerWidth int, backgroundStyle lipgloss.Style) string {
	rightPad := max(innerWidth-ansi.StringWidth(styledContent), 0)
	return backgroundStyle.Render(" ") +
		styledContent +
		backgroundStyle.Render(strings.Repeat(" ", rightPad+1))
}

// RenderModal draws a boxed dialog of the given total width: a bold
// title, a blank line, then body lines truncated to fit. Every returned
// line has the same display width.
func RenderModal(theme Theme, title string, body []string, width int) []string {
	innerWidth := max(width-4, 1)
	background := lipgloss.NewStyle().Background(theme.ModalBackground)
	border := lipgloss.NewStyle().Foreground(theme.BorderColor).Background(theme.ModalBackground)
	text := lipgloss.NewStyle().Foreground(theme.ModalForeground).Background(theme.ModalBackground)

	fit := func(line string) string {
		if ansi.StringWidth(line) > innerWidth {
			return ansi.Truncate(line, innerWidth-1, "…")
		}
		return line
	}
	row := func(content string) string {
		return border.Render("│") + PadOverlayLine(content, innerWidth, background) + border.Render("│")
	}

	horizontal := strings.Repeat("─", innerWidth+2)
	lines := []string{border.Render("┌" + horizontal + "┐")}
	lines = append(lines, row(text.Bold(true).Render(fit(title))))
	lines = append(lines, row(""))
	for _, line := range body {
		lines = append(lines, row(text.Render(fit(line))))
	}
	lines = append(lines, border.Render("└"+horizontal+"┘"))
	return lines
}
