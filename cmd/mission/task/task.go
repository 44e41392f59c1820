// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the task commands: dispatch, list, show,
// cancel, purge and kill-all.
package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

type dispatchParams struct {
	app.Params
	cli.JSONOutput
	Type             string `json:"task_type" flag:"type,t" desc:"task type: text_processing, image_gen, video_gen or code_analysis (default from config)"`
	Replicas         int    `json:"replicas" flag:"replicas,r" desc:"number of copies to dispatch, 1 to 50 (default from config)"`
	MaxExecutionTime int    `json:"max_execution_time" flag:"max-exec" desc:"seconds before the service times a task out (default from config)"`
	Duration         int    `json:"simulated_duration" flag:"duration" desc:"seconds of simulated work (default from config)"`
}

// DispatchCommand returns the "dispatch" command.
func DispatchCommand() *cli.Command {
	var params dispatchParams
	return &cli.Command{
		Name:    "dispatch",
		Summary: "Dispatch one or more tasks",
		Description: `Dispatch tasks with the given payload. The remaining positional
arguments are joined with spaces to form the payload.

Unset numeric flags and the task type fall back to the dispatch section
of the configuration. The quota is checked by the service; a request
that would exceed it is rejected as a whole.`,
		Usage: "mission dispatch <payload...> [flags]",
		Examples: []cli.Example{
			{Description: "Summarize a document", Command: "mission dispatch 'summarize the Q3 report'"},
			{Description: "Five image jobs with a short timeout", Command: "mission dispatch -t image_gen -r 5 --max-exec 10 'a lighthouse at dusk'"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("missing argument: expected <payload...>")
			}
			request := taskapi.DispatchRequest{
				InputData:         strings.Join(args, " "),
				TaskType:          taskapi.TaskType(params.Type),
				Replicas:          params.Replicas,
				MaxExecutionTime:  params.MaxExecutionTime,
				SimulatedDuration: params.Duration,
			}

			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				normalized, err := a.Dashboard.Normalize(request)
				if err != nil {
					return err
				}
				created, err := a.Dashboard.Submit(ctx, normalized)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(created); done {
					return err
				}
				ids := make([]string, len(created))
				for i, task := range created {
					ids[i] = "#" + strconv.FormatInt(task.ID, 10)
				}
				fmt.Printf("Dispatched %d %s task%s: %s\n", len(created), normalized.TaskType, plural(len(created)), strings.Join(ids, " "))
				return nil
			})
		},
	}
}

type listParams struct {
	app.Params
	cli.JSONOutput
	Status string `json:"status" flag:"status,s" desc:"all, active, pending, processing, completed, failed or cancelled" default:"all"`
	Type   string `json:"task_type" flag:"type,t" desc:"all or a task type" default:"all"`
	Order  string `json:"order" flag:"order,o" desc:"newest or oldest" default:"newest"`
	Query  string `json:"query" flag:"query,q" desc:"fuzzy match against payload and type"`
}

// listResult is the --json shape of list.
type listResult struct {
	Tasks  []taskapi.Task `json:"tasks"`
	Counts view.Counts    `json:"counts"`
}

// ListCommand returns the "list" command.
func ListCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List your tasks",
		Description: `Fetch your most recent tasks and print them as a table. Filters
narrow the rows; the summary counts always cover every fetched task.`,
		Examples: []cli.Example{
			{Description: "Tasks still running", Command: "mission list --status active"},
			{Description: "Failed image jobs, oldest first", Command: "mission list -s failed -t image_gen -o oldest"},
			{Description: "Fuzzy search", Command: "mission list -q lighthouse"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			filter, order, err := params.filter()
			if err != nil {
				return err
			}

			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				if _, err := a.Dashboard.RefreshTasks(ctx); err != nil {
					return err
				}
				projection := a.Dashboard.Project(filter, order)
				if done, err := params.EmitJSON(listResult{Tasks: nonNil(projection.Tasks), Counts: projection.Counts}); done {
					return err
				}
				writeTaskTable(os.Stdout, projection, time.Now())
				return nil
			})
		},
	}
}

func (p *listParams) filter() (view.Filter, view.Order, error) {
	status, err := view.ParseStatusFilter(p.Status)
	if err != nil {
		return view.Filter{}, 0, cli.Validation("--status: %w", err)
	}
	taskType, err := view.ParseTypeFilter(p.Type)
	if err != nil {
		return view.Filter{}, 0, cli.Validation("--type: %w", err)
	}
	order, err := view.ParseOrder(p.Order)
	if err != nil {
		return view.Filter{}, 0, cli.Validation("--order: %w", err)
	}
	return view.Filter{Status: status, Type: taskType, Query: p.Query}, order, nil
}

// payloadWidth truncates the payload column.
const payloadWidth = 48

func writeTaskTable(w io.Writer, projection view.Projection, now time.Time) {
	if len(projection.Tasks) == 0 {
		fmt.Fprintln(w, "No matching tasks.")
	} else {
		tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tAGE\tPAYLOAD")
		for _, task := range projection.Tasks {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				task.ID, task.Status, task.TaskType, age(now, task.CreatedAt.Time), truncate(task.InputData, payloadWidth))
		}
		tw.Flush()
	}
	counts := projection.Counts
	fmt.Fprintf(w, "\n%d active, %d completed, %d failed, %d cancelled (%d total)\n",
		counts.Active, counts.Completed, counts.Failed, counts.Cancelled, counts.Total())
}

func age(now, created time.Time) string {
	elapsed := now.Sub(created)
	switch {
	case created.IsZero():
		return "-"
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds", max(0, int(elapsed.Seconds())))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd", int(elapsed.Hours()/24))
	}
}

func truncate(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-1]) + "…"
}

func nonNil(tasks []taskapi.Task) []taskapi.Task {
	if tasks == nil {
		return []taskapi.Task{}
	}
	return tasks
}

type showParams struct {
	app.Params
	cli.JSONOutput
}

// ShowCommand returns the "show" command.
func ShowCommand() *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one task in detail",
		Description: `Fetch a single task from the service and print its payload, timings
and, once it has completed, its result.`,
		Usage:  "mission show <id> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "id"); err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				task, err := a.Dashboard.Task(ctx, id)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(task); done {
					return err
				}
				writeTaskDetail(os.Stdout, *task, time.Now())
				return nil
			})
		},
	}
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Validation("task id must be a positive integer, got %q", arg)
	}
	return id, nil
}

func writeTaskDetail(w io.Writer, task taskapi.Task, now time.Time) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Task:\t#%d\n", task.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", task.Status)
	fmt.Fprintf(tw, "Type:\t%s\n", task.TaskType)
	if !task.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s (%s ago)\n", task.CreatedAt.Local().Format(time.DateTime), age(now, task.CreatedAt.Time))
	}
	fmt.Fprintf(tw, "Timings:\t%ds simulated, %ds limit\n", task.SimulatedDuration, task.MaxExecutionTime)
	if task.IsCancelled {
		fmt.Fprintln(tw, "Cancelled:\tyes")
	}
	tw.Flush()

	fmt.Fprintf(w, "\nPayload:\n  %s\n", task.InputData)
	if task.Status == taskapi.StatusCompleted && task.Result != nil {
		fmt.Fprintf(w, "\nResult:\n  %s\n", *task.Result)
	}
}

// CancelCommand returns the "cancel" command.
func CancelCommand() *cli.Command {
	var params app.Params
	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel one task",
		Description: `Ask the service to cancel a pending or processing task. Finished
tasks cannot be cancelled.`,
		Usage:  "mission cancel <id> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "id"); err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return app.WithSession(ctx, params, logger, func(a *app.App) error {
				message, err := a.Dashboard.Cancel(ctx, id)
				if err != nil {
					return err
				}
				fmt.Println(message)
				return nil
			})
		},
	}
}

type bulkParams struct {
	app.Params
	Yes bool `json:"-" flag:"yes,y" desc:"do not ask for confirmation"`
}

// PurgeCommand returns the "purge" command.
func PurgeCommand() *cli.Command {
	var params bulkParams
	return &cli.Command{
		Name:        "purge",
		Summary:     "Delete every task you own",
		Description: "Delete your whole task history. Quota usage drops accordingly.",
		Params:      func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				if err := cli.Confirm("delete all of your tasks", params.Yes); err != nil {
					return err
				}
				message, err := a.Dashboard.DeleteAll(ctx)
				if err != nil {
					return err
				}
				fmt.Println(message)
				return nil
			})
		},
	}
}

// KillAllCommand returns the "kill-all" command.
func KillAllCommand() *cli.Command {
	var params bulkParams
	return &cli.Command{
		Name:        "kill-all",
		Summary:     "Cancel every active task",
		Description: "Cancel all of your pending and processing tasks at once.",
		Params:      func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				if err := cli.Confirm("terminate all active tasks", params.Yes); err != nil {
					return err
				}
				message, err := a.Dashboard.KillAll(ctx)
				if err != nil {
					return err
				}
				fmt.Println(message)
				return nil
			})
		},
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
