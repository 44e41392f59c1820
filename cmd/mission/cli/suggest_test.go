// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"quota", "quota", 0},
		{"qouta", "quota", 2},
		{"dispach", "dispatch", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{{Name: "login"}, {Name: "logout"}, {Name: "list"}}

	if got := suggestCommand("logni", commands); got != "login" {
		t.Errorf("suggestCommand(logni) = %q, want login", got)
	}
	if got := suggestCommand("administrator", commands); got != "" {
		t.Errorf("suggestCommand(administrator) = %q, want no suggestion", got)
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.String("password-file", "", "")
	flagSet.BoolP("force", "f", false, "")

	if got := suggestFlag([]string{"--pasword-file=x"}, flagSet); got != "--password-file" {
		t.Errorf("suggestFlag = %q, want --password-file", got)
	}
	if got := suggestFlag([]string{"-f", "--forse"}, flagSet); got != "--force" {
		t.Errorf("suggestFlag = %q, want --force", got)
	}
	if got := suggestFlag([]string{"--", "--forse"}, flagSet); got != "" {
		t.Errorf("suggestFlag after -- = %q, want none", got)
	}
}
