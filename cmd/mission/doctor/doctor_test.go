// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/internal/fakeservice"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
)

func configFor(t *testing.T, baseURL string) app.Params {
	t.Helper()
	directory := t.TempDir()
	content := "api:\n  base_url: " + baseURL + "\n" +
		"paths:\n  state_dir: " + filepath.Join(directory, "state") + "\n" +
		"  identity_file: " + filepath.Join(directory, "identity.txt") + "\n"
	path := filepath.Join(directory, "mission.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("MISSION_CONFIG", "")
	t.Setenv("MISSION_API_URL", "")
	t.Setenv("MISSION_ENVIRONMENT", "")
	return app.Params{ConfigPath: path}
}

func statuses(results []Result) map[string]Status {
	byName := make(map[string]Status, len(results))
	for _, result := range results {
		byName[result.Name] = result.Status
	}
	return byName
}

func TestRunLoggedOut(t *testing.T) {
	service := fakeservice.Start(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	defer service.Close()
	params := configFor(t, service.URL())

	results := Run(context.Background(), params, 5*time.Second, slog.New(slog.DiscardHandler))
	got := statuses(results)

	want := map[string]Status{
		"configuration":   StatusPass,
		"state directory": StatusPass,
		"identity":        StatusWarn,
		"service":         StatusPass,
		"session":         StatusWarn,
	}
	for name, status := range want {
		if got[name] != status {
			t.Errorf("%s = %q, want %q", name, got[name], status)
		}
	}

	var output bytes.Buffer
	if err := PrintChecklist(&output, results); err != nil {
		t.Errorf("PrintChecklist() = %v, want nil with only warnings", err)
	}
	if !strings.Contains(output.String(), "All checks passed with 2 warning(s).") {
		t.Errorf("output:\n%s", output.String())
	}
}

func TestRunLoggedIn(t *testing.T) {
	service := fakeservice.Start(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	defer service.Close()
	service.AddUser("ada", "lovelace", false, 10)
	params := configFor(t, service.URL())
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	err := app.With(ctx, params, logger, func(a *app.App) error {
		password, err := secret.NewFromString("lovelace")
		if err != nil {
			return err
		}
		defer password.Close()
		_, err = a.Dashboard.Login(ctx, "ada", password)
		return err
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	results := Run(ctx, params, 5*time.Second, logger)
	for _, result := range results {
		if result.Status == StatusFail {
			t.Errorf("%s failed: %s", result.Name, result.Message)
		}
	}
	last := results[len(results)-1]
	if last.Name != "session" || last.Status != StatusPass || last.Message != "logged in as ada" {
		t.Errorf("session result = %+v", last)
	}
	if got := statuses(results)["identity"]; got != StatusPass {
		t.Errorf("identity = %q after login created it", got)
	}

	service.RevokeTokens()
	results = Run(ctx, params, 5*time.Second, logger)
	if last := results[len(results)-1]; last.Status != StatusFail || !strings.Contains(last.Message, "rejected") {
		t.Errorf("session after revocation = %+v", last)
	}
}

func TestRunUnreachableService(t *testing.T) {
	service := fakeservice.Start(clock.Real())
	url := service.URL()
	service.Close()
	params := configFor(t, url)

	results := Run(context.Background(), params, 2*time.Second, slog.New(slog.DiscardHandler))
	got := statuses(results)
	if got["service"] != StatusFail || got["session"] != StatusSkip {
		t.Errorf("statuses = %v", got)
	}

	var output bytes.Buffer
	err := PrintChecklist(&output, results)
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("PrintChecklist() = %v, want exit code 1", err)
	}
	if !strings.Contains(output.String(), "[FAIL]  service") {
		t.Errorf("output:\n%s", output.String())
	}
}

func TestRunBadConfiguration(t *testing.T) {
	t.Setenv("MISSION_API_URL", "")
	t.Setenv("MISSION_ENVIRONMENT", "")
	results := Run(context.Background(), app.Params{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}, time.Second, slog.New(slog.DiscardHandler))
	if results[0].Status != StatusFail {
		t.Errorf("configuration = %+v", results[0])
	}
	for _, result := range results[1:] {
		if result.Status != StatusSkip {
			t.Errorf("%s = %q, want skip", result.Name, result.Status)
		}
	}
}
