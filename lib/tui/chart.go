// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the last width values as block characters scaled
// between the series minimum and maximum. A flat series renders at the
// lowest block. Returns "" for an empty series.
func Sparkline(values []int64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	low, high := values[0], values[0]
	for _, value := range values[1:] {
		low = min(low, value)
		high = max(high, value)
	}

	var builder strings.Builder
	for _, value := range values {
		index := 0
		if high > low {
			index = int((value - low) * int64(len(sparkBlocks)-1) / (high - low))
		}
		builder.WriteRune(sparkBlocks[index])
	}
	return builder.String()
}

// Gauge renders fraction (clamped to [0,1]) as a bar of width cells.
func Gauge(fraction float64, width int) string {
	if width <= 0 {
		return ""
	}
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
