// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete mission CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/admin"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/auth"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/doctor"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/monitor"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/task"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/version"
)

// Root builds and returns the mission command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "mission",
		Description: `mission: a client for the task-dispatch service.

Dispatch tasks, follow their progress and keep an eye on your quota,
either one command at a time or from the interactive dashboard.`,
		Subcommands: []*cli.Command{
			auth.SignupCommand(),
			auth.LoginCommand(),
			auth.LogoutCommand(),
			auth.WhoAmICommand(),
			auth.ProfileCommand(),
			task.DispatchCommand(),
			task.ListCommand(),
			task.ShowCommand(),
			task.CancelCommand(),
			task.KillAllCommand(),
			task.PurgeCommand(),
			monitor.QuotaCommand(),
			monitor.WatchCommand(),
			monitor.DashboardCommand(),
			admin.Command(),
			doctor.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Printf("mission %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
