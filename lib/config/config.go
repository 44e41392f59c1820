// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the mission-control client configuration.
//
// The file is chosen by the --config flag or the MISSION_CONFIG
// environment variable. Without either, [Default] is used as is. YAML
// is the native format; files ending in .json or .jsonc are accepted
// too, with comments and trailing commas stripped before decoding.
//
// A .env file in the working directory is loaded into the process
// environment first (existing variables win), so MISSION_CONFIG,
// MISSION_API_URL and MISSION_ENVIRONMENT can be set there.
//
// The file may carry development, staging and production sections that
// override the base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment names a deployment flavor.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Overlap policies for refresh cycles that outlive the polling interval.
const (
	// OverlapSkip drops a tick while the previous cycle is in flight.
	OverlapSkip = "skip"
	// OverlapAllow starts a new cycle on every tick regardless.
	OverlapAllow = "allow"
)

// Config is the full client configuration.
type Config struct {
	Environment Environment     `yaml:"environment"`
	API         APIConfig       `yaml:"api"`
	Polling     PollingConfig   `yaml:"polling"`
	Dispatch    DispatchConfig  `yaml:"dispatch"`
	Paths       PathsConfig     `yaml:"paths"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides are the per-environment sections. Only non-zero fields
// replace base values.
type Overrides struct {
	API       *APIConfig       `yaml:"api,omitempty"`
	Polling   *PollingConfig   `yaml:"polling,omitempty"`
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// APIConfig locates the task service.
type APIConfig struct {
	// BaseURL of the service, e.g. http://localhost:8080.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds every individual HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollingConfig drives the background refresh loop.
type PollingConfig struct {
	Interval  time.Duration `yaml:"interval"`
	TaskLimit int           `yaml:"task_limit"`
	Overlap   string        `yaml:"overlap"`
}

// DispatchConfig holds the defaults applied to a new dispatch when the
// user leaves a field unset.
type DispatchConfig struct {
	TaskType          string `yaml:"task_type"`
	MaxExecutionTime  int    `yaml:"max_execution_time"`
	SimulatedDuration int    `yaml:"simulated_duration"`
	Replicas          int    `yaml:"replicas"`
}

// PathsConfig locates client state on disk.
type PathsConfig struct {
	// StateDir holds the state database.
	StateDir string `yaml:"state_dir"`

	// IdentityFile is an age identity. When set, the stored bearer
	// token is sealed to it.
	IdentityFile string `yaml:"identity_file"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Output is the file the stdout exporters write to. Empty means
	// <state_dir>/telemetry.jsonl.
	Output string `yaml:"output"`
}

// Default returns the built-in configuration. The values match what the
// web dashboard shipped with.
func Default() *Config {
	stateDir := "${HOME}/.config/mission-control"
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		stateDir = filepath.Join(base, "mission-control")
	}
	return &Config{
		Environment: Development,
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
		},
		Polling: PollingConfig{
			Interval:  5 * time.Second,
			TaskLimit: 100,
			Overlap:   OverlapSkip,
		},
		Dispatch: DispatchConfig{
			TaskType:          "text_processing",
			MaxExecutionTime:  30,
			SimulatedDuration: 5,
			Replicas:          1,
		},
		Paths: PathsConfig{
			StateDir: stateDir,
		},
	}
}

// Load resolves the configuration: path if non-empty, else
// MISSION_CONFIG, else defaults. Environment variables from .env and
// the process are applied on top.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("MISSION_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvironmentVariables()
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", describePath(path), err)
	}
	return cfg, nil
}

// LoadFile reads a specific file on top of the defaults, without
// consulting the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func describePath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	return path
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one decoder handles both once
		// comments are gone.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentVariables() {
	if value := os.Getenv("MISSION_API_URL"); value != "" {
		c.API.BaseURL = value
	}
	if value := os.Getenv("MISSION_ENVIRONMENT"); value != "" {
		c.Environment = Environment(value)
	}
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if api := overrides.API; api != nil {
		if api.BaseURL != "" {
			c.API.BaseURL = api.BaseURL
		}
		if api.RequestTimeout != 0 {
			c.API.RequestTimeout = api.RequestTimeout
		}
	}
	if polling := overrides.Polling; polling != nil {
		if polling.Interval != 0 {
			c.Polling.Interval = polling.Interval
		}
		if polling.TaskLimit != 0 {
			c.Polling.TaskLimit = polling.TaskLimit
		}
		if polling.Overlap != "" {
			c.Polling.Overlap = polling.Overlap
		}
	}
	if paths := overrides.Paths; paths != nil {
		if paths.StateDir != "" {
			c.Paths.StateDir = paths.StateDir
		}
		if paths.IdentityFile != "" {
			c.Paths.IdentityFile = paths.IdentityFile
		}
	}
	if telemetry := overrides.Telemetry; telemetry != nil {
		// A present telemetry section always decides Enabled.
		c.Telemetry.Enabled = telemetry.Enabled
		if telemetry.Output != "" {
			c.Telemetry.Output = telemetry.Output
		}
	}
}

var variablePattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables resolves ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	expand := func(value string) string {
		return variablePattern.ReplaceAllStringFunc(value, func(match string) string {
			parts := variablePattern.FindStringSubmatch(match)
			if resolved := os.Getenv(parts[1]); resolved != "" {
				return resolved
			}
			if parts[1] == "HOME" {
				if home, err := os.UserHomeDir(); err == nil {
					return home
				}
			}
			return parts[2]
		})
	}
	c.Paths.StateDir = expand(c.Paths.StateDir)
	c.Paths.IdentityFile = expand(c.Paths.IdentityFile)
	c.Telemetry.Output = expand(c.Telemetry.Output)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment %q", c.Environment))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	} else if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api.request_timeout must be positive"))
	}
	if c.Polling.Interval <= 0 {
		errs = append(errs, fmt.Errorf("polling.interval must be positive"))
	}
	if c.Polling.TaskLimit <= 0 {
		errs = append(errs, fmt.Errorf("polling.task_limit must be positive"))
	}
	if c.Polling.Overlap != OverlapSkip && c.Polling.Overlap != OverlapAllow {
		errs = append(errs, fmt.Errorf("polling.overlap must be %q or %q, got %q", OverlapSkip, OverlapAllow, c.Polling.Overlap))
	}
	if c.Dispatch.Replicas < 1 {
		errs = append(errs, fmt.Errorf("dispatch.replicas must be at least 1"))
	}
	if c.Dispatch.MaxExecutionTime <= 0 || c.Dispatch.SimulatedDuration <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_execution_time and dispatch.simulated_duration must be positive"))
	}
	if c.Paths.StateDir == "" {
		errs = append(errs, fmt.Errorf("paths.state_dir is required"))
	}

	return errors.Join(errs...)
}

// StateDatabase is the path of the client's state database.
func (c *Config) StateDatabase() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// TelemetryOutput is the resolved telemetry export file.
func (c *Config) TelemetryOutput() string {
	if c.Telemetry.Output != "" {
		return c.Telemetry.Output
	}
	return filepath.Join(c.Paths.StateDir, "telemetry.jsonl")
}

// EnsurePaths creates the state directory with owner-only permissions.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.StateDir, err)
	}
	return nil
}
