// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin implements the administrator commands. The service
// enforces admin rights; the client refuses early when the saved
// session is not an admin session.
package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// Command returns the "admin" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "admin",
		Summary: "Administrator operations",
		Description: `Administrator operations across every account. These require a
session whose account has admin rights.`,
		Subcommands: []*cli.Command{
			usersCommand(),
			resetCommand(),
		},
	}
}

type usersParams struct {
	app.Params
	cli.JSONOutput
}

func usersCommand() *cli.Command {
	var params usersParams
	return &cli.Command{
		Name:    "users",
		Summary: "List every account with its quota and dispatch count",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				users, err := a.Dashboard.AdminUsers(ctx)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(users); done {
					return err
				}
				writeUserTable(os.Stdout, users)
				return nil
			})
		},
	}
}

func writeUserTable(w io.Writer, users []taskapi.UserSummary) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tQUOTA\tDISPATCHED")
	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", user.ID, user.Username, role, user.TaskQuota, user.TasksDispatched)
	}
	tw.Flush()
}

type resetParams struct {
	app.Params
	Yes bool `json:"-" flag:"yes,y" desc:"do not ask for confirmation"`
}

func resetCommand() *cli.Command {
	var params resetParams
	return &cli.Command{
		Name:        "reset",
		Summary:     "Delete every task of every user",
		Description: "Delete every task in the system. Quotas are freed for all accounts.",
		Params:      func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				if current, _ := a.Dashboard.Session(); !current.IsAdmin {
					return cli.Forbidden("admin reset requires an admin session (logged in as %s)", current.Username)
				}
				if err := cli.Confirm("delete every task of every user", params.Yes); err != nil {
					return err
				}
				message, err := a.Dashboard.ResetSystem(ctx)
				if err != nil {
					return err
				}
				fmt.Println(message)
				return nil
			})
		},
	}
}
