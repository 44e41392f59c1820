// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestParseColorProfile(t *testing.T) {
	tests := []struct {
		name     string
		profile  termenv.Profile
		override bool
	}{
		{"", termenv.Ascii, false},
		{"auto", termenv.Ascii, false},
		{"none", termenv.Ascii, true},
		{"ANSI", termenv.ANSI, true},
		{"256", termenv.ANSI256, true},
		{"truecolor", termenv.TrueColor, true},
	}
	for _, test := range tests {
		profile, override, err := ParseColorProfile(test.name)
		if err != nil {
			t.Errorf("ParseColorProfile(%q): %v", test.name, err)
			continue
		}
		if profile != test.profile || override != test.override {
			t.Errorf("ParseColorProfile(%q) = %v, %v; want %v, %v", test.name, profile, override, test.profile, test.override)
		}
	}

	if _, _, err := ParseColorProfile("sepia"); err == nil {
		t.Error("expected an error for an unknown profile")
	}
}
