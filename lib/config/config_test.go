// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.Polling.Interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", cfg.Polling.Interval)
	}
	if cfg.Polling.TaskLimit != 100 {
		t.Errorf("task_limit = %d, want 100", cfg.Polling.TaskLimit)
	}
	if cfg.Polling.Overlap != OverlapSkip {
		t.Errorf("overlap = %q, want skip", cfg.Polling.Overlap)
	}
	if cfg.Dispatch.MaxExecutionTime != 30 || cfg.Dispatch.SimulatedDuration != 5 || cfg.Dispatch.Replicas != 1 {
		t.Errorf("dispatch defaults = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.TaskType != "text_processing" {
		t.Errorf("task_type = %q", cfg.Dispatch.TaskType)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("MISSION_CONFIG", "")
	t.Setenv("MISSION_API_URL", "")
	t.Setenv("MISSION_ENVIRONMENT", "")
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if strings.Contains(cfg.Paths.StateDir, "${") {
		t.Errorf("state_dir not expanded: %q", cfg.Paths.StateDir)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "mission.yaml", `
environment: staging
api:
  base_url: https://tasks.example.com
  request_timeout: 10s
polling:
  interval: 2s
  task_limit: 50
  overlap: allow
paths:
  state_dir: /tmp/mission-state
`)
	t.Setenv("MISSION_API_URL", "")
	t.Setenv("MISSION_ENVIRONMENT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.API.BaseURL != "https://tasks.example.com" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.API.RequestTimeout)
	}
	if cfg.Polling.Interval != 2*time.Second || cfg.Polling.TaskLimit != 50 || cfg.Polling.Overlap != OverlapAllow {
		t.Errorf("polling = %+v", cfg.Polling)
	}
	if cfg.StateDatabase() != "/tmp/mission-state/state.db" {
		t.Errorf("StateDatabase = %q", cfg.StateDatabase())
	}
}

func TestLoadJSONCWithComments(t *testing.T) {
	path := writeConfig(t, "mission.jsonc", `{
  // local stack
  "api": {"base_url": "http://127.0.0.1:9000", "request_timeout": "5s"},
  "polling": {"interval": "1s",},
  "paths": {"state_dir": "/tmp/jsonc-state"}
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9000" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.Polling.Interval != time.Second {
		t.Errorf("interval = %v", cfg.Polling.Interval)
	}
	if cfg.Polling.TaskLimit != 100 {
		t.Errorf("task_limit should keep its default, got %d", cfg.Polling.TaskLimit)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "mission.yaml", `
environment: production
api:
  base_url: http://localhost:8080
paths:
  state_dir: /tmp/base
production:
  api:
    base_url: https://prod.example.com
  polling:
    interval: 15s
  telemetry:
    enabled: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.API.BaseURL != "https://prod.example.com" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.Polling.Interval != 15*time.Second {
		t.Errorf("interval = %v", cfg.Polling.Interval)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry should be enabled by the production section")
	}
	if cfg.Paths.StateDir != "/tmp/base" {
		t.Errorf("state_dir = %q, base value should survive", cfg.Paths.StateDir)
	}
}

func TestEnvironmentVariablesOverrideFile(t *testing.T) {
	path := writeConfig(t, "mission.yaml", `
api:
  base_url: http://from-file:8080
paths:
  state_dir: /tmp/env-test
`)
	t.Setenv("MISSION_API_URL", "http://from-env:8080")
	t.Setenv("MISSION_ENVIRONMENT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://from-env:8080" {
		t.Errorf("base_url = %q, want env value", cfg.API.BaseURL)
	}
}

func TestMissionConfigVariable(t *testing.T) {
	path := writeConfig(t, "mission.yaml", "paths:\n  state_dir: /tmp/from-variable\n")
	t.Setenv("MISSION_CONFIG", path)
	t.Setenv("MISSION_API_URL", "")
	t.Setenv("MISSION_ENVIRONMENT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.StateDir != "/tmp/from-variable" {
		t.Errorf("state_dir = %q", cfg.Paths.StateDir)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("MISSION_TEST_ROOT", "/srv/mission")
	path := writeConfig(t, "mission.yaml", `
paths:
  state_dir: ${MISSION_TEST_ROOT}/state
  identity_file: ${MISSION_UNSET_VARIABLE:-/etc/mission/identity.txt}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.StateDir != "/srv/mission/state" {
		t.Errorf("state_dir = %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.IdentityFile != "/etc/mission/identity.txt" {
		t.Errorf("identity_file = %q", cfg.Paths.IdentityFile)
	}
	if cfg.TelemetryOutput() != "/srv/mission/state/telemetry.jsonl" {
		t.Errorf("TelemetryOutput = %q", cfg.TelemetryOutput())
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Paths.StateDir = "/tmp/x"
	cfg.API.BaseURL = "ftp://nope"
	cfg.Polling.Overlap = "queue"
	cfg.Polling.TaskLimit = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{"api.base_url", "polling.overlap", "polling.task_limit"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not mention %s", err, fragment)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
