// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"testing"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
)

// Every command's params must bind without panicking, and names must
// be unique within their parent.
func TestRootTreeIsWellFormed(t *testing.T) {
	var walk func(command *cli.Command, path string)
	walk = func(command *cli.Command, path string) {
		if command.Params != nil {
			func() {
				defer func() {
					if recovered := recover(); recovered != nil {
						t.Errorf("%s: params do not bind: %v", path, recovered)
					}
				}()
				cli.FlagsFromParams(path, command.Params())
			}()
		}
		if command.Summary == "" && path != "mission" {
			t.Errorf("%s has no summary", path)
		}
		seen := make(map[string]bool)
		for _, sub := range command.Subcommands {
			if seen[sub.Name] {
				t.Errorf("%s: duplicate subcommand %q", path, sub.Name)
			}
			seen[sub.Name] = true
			walk(sub, path+" "+sub.Name)
		}
	}
	walk(Root(), "mission")
}
