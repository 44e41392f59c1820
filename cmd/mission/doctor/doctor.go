// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor checks that the client can work: configuration,
// local state, the sealing identity, the service and the session.
// Each check yields a [Result]; failures carry a hint for fixing them.
package doctor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/config"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Result is one line of the checklist.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	FixHint string `json:"fix_hint,omitempty"`
}

func pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

func fail(name, message, fixHint string) Result {
	return Result{Name: name, Status: StatusFail, Message: message, FixHint: fixHint}
}

func warn(name, message, fixHint string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message, FixHint: fixHint}
}

func skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message}
}

type params struct {
	app.Params
	cli.JSONOutput
	Timeout time.Duration `json:"-" flag:"timeout" desc:"deadline for the service checks" default:"5s"`
}

// Command returns the "doctor" command.
func Command() *cli.Command {
	var p params
	return &cli.Command{
		Name:    "doctor",
		Summary: "Check configuration, local state and connectivity",
		Description: `Run a series of checks and print a checklist. Exits with status 1 if
any check fails. Warnings do not fail the run.`,
		Params: func() any { return &p },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			results := Run(ctx, p.Params, p.Timeout, logger)
			if done, err := p.EmitJSON(results); done {
				if err != nil {
					return err
				}
				if anyFailed(results) {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}
			return PrintChecklist(os.Stdout, results)
		},
	}
}

// Run executes every check in order. Checks that depend on an earlier
// failure are skipped.
func Run(ctx context.Context, appParams app.Params, timeout time.Duration, logger *slog.Logger) []Result {
	var results []Result

	cfg, err := app.LoadConfig(appParams)
	if err != nil {
		return append(results,
			fail("configuration", err.Error(), "fix the file named by --config or $MISSION_CONFIG"),
			skip("state directory", "no configuration"),
			skip("identity", "no configuration"),
			skip("service", "no configuration"),
			skip("session", "no configuration"))
	}
	results = append(results, pass("configuration", fmt.Sprintf("%s environment, service %s", cfg.Environment, cfg.API.BaseURL)))

	stateResult := checkStateDirectory(cfg)
	results = append(results, stateResult, checkIdentity(cfg))
	if stateResult.Status == StatusFail {
		return append(results,
			skip("service", "local state unavailable"),
			skip("session", "local state unavailable"))
	}

	a, err := app.Open(ctx, appParams, logger)
	if err != nil {
		return append(results,
			fail("client", err.Error(), "remove the state database if it is corrupt; you will need to log in again"),
			skip("service", "client unavailable"),
			skip("session", "client unavailable"))
	}
	defer a.Close()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	health, err := a.Dashboard.Health(checkCtx)
	if err != nil {
		return append(results,
			fail("service", err.Error(), fmt.Sprintf("check that %s is running and reachable", cfg.API.BaseURL)),
			skip("session", "service unreachable"))
	}
	results = append(results, pass("service", fmt.Sprintf("%s is %s", health.Service, health.Status)))

	return append(results, checkSession(checkCtx, a))
}

func checkStateDirectory(cfg *config.Config) Result {
	const name = "state directory"
	if err := cfg.EnsurePaths(); err != nil {
		return fail(name, err.Error(), "set paths.state_dir to a writable directory")
	}
	probe, err := os.CreateTemp(cfg.Paths.StateDir, ".doctor-*")
	if err != nil {
		return fail(name, fmt.Sprintf("%s is not writable: %v", cfg.Paths.StateDir, err), "fix the directory permissions")
	}
	probe.Close()
	os.Remove(probe.Name())

	info, err := os.Stat(cfg.Paths.StateDir)
	if err == nil && info.Mode().Perm()&0o077 != 0 {
		return warn(name, fmt.Sprintf("%s is accessible by other users (%o)", cfg.Paths.StateDir, info.Mode().Perm()),
			fmt.Sprintf("chmod 700 %s", cfg.Paths.StateDir))
	}
	return pass(name, filepath.Clean(cfg.Paths.StateDir))
}

func checkIdentity(cfg *config.Config) Result {
	const name = "identity"
	path := cfg.Paths.IdentityFile
	if path == "" {
		return skip(name, "not configured; the session token is stored unsealed")
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return warn(name, fmt.Sprintf("%s does not exist yet", path), "it is created on the next login")
	}
	if err != nil {
		return fail(name, err.Error(), "fix paths.identity_file")
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fail(name, fmt.Sprintf("%s is readable by other users (%o)", path, info.Mode().Perm()), fmt.Sprintf("chmod 600 %s", path))
	}
	return pass(name, path)
}

func checkSession(ctx context.Context, a *app.App) Result {
	const name = "session"
	active, err := a.Dashboard.Resume(ctx)
	if err != nil {
		return fail(name, fmt.Sprintf("saved session unreadable: %v", err), "run 'mission logout' and log in again")
	}
	if !active {
		return warn(name, "not logged in", "run 'mission login <username>'")
	}
	current, _ := a.Dashboard.Session()
	if _, err := a.Dashboard.RefreshQuota(ctx); err != nil {
		if toolErr := cli.Classify(err); toolErr.Category == cli.CategoryUnauthenticated {
			return fail(name, fmt.Sprintf("the service rejected the session for %s", current.Username), "run 'mission login <username>'")
		}
		return fail(name, err.Error(), "")
	}
	return pass(name, fmt.Sprintf("logged in as %s", current.Username))
}

func anyFailed(results []Result) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

// PrintChecklist writes results as a checklist and returns an
// [cli.ExitError] if any check failed.
func PrintChecklist(w io.Writer, results []Result) error {
	warnings := 0
	for _, result := range results {
		fmt.Fprintf(w, "[%-4s]  %-16s  %s\n", strings.ToUpper(string(result.Status)), result.Name, result.Message)
		if result.FixHint != "" && result.Status != StatusPass {
			fmt.Fprintf(w, "        %-16s  fix: %s\n", "", result.FixHint)
		}
		if result.Status == StatusWarn {
			warnings++
		}
	}
	fmt.Fprintln(w)

	if anyFailed(results) {
		fmt.Fprintln(w, "Some checks failed.")
		return &cli.ExitError{Code: 1}
	}
	if warnings > 0 {
		fmt.Fprintf(w, "All checks passed with %d warning(s).\n", warnings)
		return nil
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}
