// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor implements the read-mostly commands that follow the
// account over time: quota, watch and the interactive dashboard.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/missionui"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/tui"
	"github.com/zaibaki/ResilientTask-Mission-Control/quota"
	"github.com/zaibaki/ResilientTask-Mission-Control/session"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

type quotaParams struct {
	app.Params
	cli.JSONOutput
}

// quotaResult is the --json shape of quota.
type quotaResult struct {
	Quota     int64   `json:"quota"`
	Used      int64   `json:"used"`
	Available int64   `json:"available"`
	Usage     float64 `json:"usage"`
	Level     string  `json:"level"`
}

// QuotaCommand returns the "quota" command.
func QuotaCommand() *cli.Command {
	var params quotaParams
	return &cli.Command{
		Name:    "quota",
		Summary: "Show quota usage",
		Description: `Show how much of your dispatch quota is used. Usage of 70% or more is
elevated, 90% or more is critical.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				state, err := a.Dashboard.RefreshQuota(ctx)
				if err != nil {
					return err
				}
				snapshot := state.Snapshot
				result := quotaResult{
					Quota:     snapshot.Quota,
					Used:      snapshot.Used,
					Available: snapshot.Available,
					Usage:     quota.Usage(snapshot),
					Level:     state.Level().String(),
				}
				if done, err := params.EmitJSON(result); done {
					return err
				}
				fmt.Println(formatQuota(state))
				return nil
			})
		},
	}
}

// gaugeWidth is the quota bar width in cells.
const gaugeWidth = 20

func formatQuota(state quota.State) string {
	snapshot := state.Snapshot
	return fmt.Sprintf("%s  %d/%d used, %d available (%s)",
		tui.Gauge(quota.Usage(snapshot), gaugeWidth), snapshot.Used, snapshot.Quota, snapshot.Available, state.Level())
}

// WatchCommand returns the "watch" command.
func WatchCommand() *cli.Command {
	var params app.Params
	return &cli.Command{
		Name:    "watch",
		Summary: "Print a line whenever tasks or quota change",
		Description: `Poll the service on the configured interval and print a timestamped
summary line each time the task counts or quota change. Suitable for a
log file or a narrow terminal. Stops on interrupt or when the session
ends.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params, logger, func(a *app.App) error {
				changes, cancel := a.Dashboard.Subscribe()
				defer cancel()
				ended := make(chan session.Reason, 1)
				a.Dashboard.OnSessionEnd(func(reason session.Reason) {
					select {
					case ended <- reason:
					default:
					}
				})

				a.Dashboard.Refresh(ctx)
				if err := a.Dashboard.Start(ctx); err != nil {
					return err
				}
				defer a.Dashboard.Stop()

				everything := view.Filter{Status: view.StatusAll, Type: view.TypeAll}
				var last string
				for {
					if _, ok := a.Dashboard.Session(); !ok {
						return cli.Unauthenticated("the session ended")
					}
					line := summaryLine(a.Dashboard.Project(everything, view.Newest).Counts, a.Dashboard.Quota())
					if line != last {
						fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), line)
						last = line
					}
					select {
					case <-ctx.Done():
						return nil
					case reason := <-ended:
						return cli.Unauthenticated("the session ended (%s)", reason)
					case <-changes:
					}
				}
			})
		},
	}
}

// sparklineWidth is how many quota samples watch shows.
const sparklineWidth = 12

func summaryLine(counts view.Counts, state quota.State) string {
	var line strings.Builder
	fmt.Fprintf(&line, "%d active, %d completed, %d failed, %d cancelled",
		counts.Active, counts.Completed, counts.Failed, counts.Cancelled)
	if !state.HasSample {
		return line.String()
	}
	snapshot := state.Snapshot
	fmt.Fprintf(&line, " | quota %d/%d (%s)", snapshot.Used, snapshot.Quota, state.Level())
	if state.Velocity != 0 {
		fmt.Fprintf(&line, " %+d", state.Velocity)
	}
	if spark := tui.Sparkline(state.History, sparklineWidth); spark != "" {
		line.WriteString(" " + spark)
	}
	return line.String()
}

type dashboardParams struct {
	app.Params
	Color string `json:"-" flag:"color" desc:"color profile: auto, ascii, ansi, ansi256 or truecolor" default:"auto"`
}

// DashboardCommand returns the "dashboard" command.
func DashboardCommand() *cli.Command {
	var params dashboardParams
	return &cli.Command{
		Name:    "dashboard",
		Summary: "Open the interactive dashboard",
		Description: `Open a full-screen dashboard that keeps the task list and quota in
sync with the service. Dispatch, cancel, kill-all and purge are
available from the keyboard; the footer lists the keys and q quits.

Log output is shown in the status bar while the dashboard is open.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			if _, _, err := missionui.ParseColorProfile(params.Color); err != nil {
				return cli.Validation("--color: %w", err)
			}

			// Records go to the status bar; stderr would tear the
			// alternate screen.
			handler := missionui.NewLogHandler(slog.LevelInfo)
			return app.WithSession(ctx, params.Params, slog.New(handler), func(a *app.App) error {
				if err := a.Dashboard.Start(ctx); err != nil {
					return err
				}
				defer a.Dashboard.Stop()

				err := missionui.Run(ctx, a.Dashboard, missionui.Options{
					Defaults: a.DispatchDefaults(),
					Color:    params.Color,
				}, handler)
				if errors.Is(err, missionui.ErrSessionEnded) {
					return cli.Unauthenticated("the service ended the session")
				}
				return err
			})
		},
	}
}
