// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the client for a single command invocation:
// configuration, the state database, the optional sealing identity,
// telemetry, the HTTP client and the dashboard on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/dashboard"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/config"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/kvstore"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/sealed"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/version"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/tasks"
)

// Params are the connection flags every service-facing command
// embeds.
type Params struct {
	ConfigPath string `json:"-" flag:"config" desc:"configuration file (default: $MISSION_CONFIG)"`
	APIURL     string `json:"-" flag:"api-url" desc:"service base URL, overriding the configuration"`
}

// LoadConfig resolves the configuration named by params and applies
// the --api-url override.
func LoadConfig(params Params) (*config.Config, error) {
	cfg, err := config.Load(params.ConfigPath)
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	if params.APIURL != "" {
		cfg.API.BaseURL = params.APIURL
		if err := cfg.Validate(); err != nil {
			return nil, cli.Validation("--api-url: %w", err)
		}
	}
	return cfg, nil
}

// App is an assembled client. Close it when the command finishes.
type App struct {
	Config    *config.Config
	Client    *taskapi.Client
	Dashboard *dashboard.Dashboard
	Logger    *slog.Logger

	kv        *kvstore.Store
	identity  *sealed.Identity
	telemetry *telemetrySink
}

// Open builds an App from params. Open does not contact the service.
func Open(ctx context.Context, params Params, logger *slog.Logger) (*App, error) {
	cfg, err := LoadConfig(params)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, cli.Internal("%w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	if cfg.Telemetry.Enabled {
		sink, err := openTelemetry(ctx, cfg.TelemetryOutput())
		if err != nil {
			return err
		}
		a.telemetry = sink
		a.Logger = slog.New(telemetry.FanoutHandler{a.Logger.Handler(), telemetry.NewLogger().Handler()})
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return cli.Internal("creating instruments: %w", err)
	}

	if cfg.Paths.IdentityFile != "" {
		a.identity, err = sealed.LoadOrCreateIdentity(cfg.Paths.IdentityFile)
		if err != nil {
			return cli.Internal("loading identity %s: %w", cfg.Paths.IdentityFile, err)
		}
	}

	a.kv, err = kvstore.Open(kvstore.Config{
		Path:      cfg.StateDatabase(),
		Namespace: kvstore.Namespace(cfg.API.BaseURL),
		Logger:    a.Logger.With("component", "kvstore"),
	})
	if err != nil {
		return cli.Internal("opening state database: %w", err)
	}

	a.Client, err = taskapi.NewClient(taskapi.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		HTTPClient: &http.Client{
			Timeout:   cfg.API.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: a.Logger.With("component", "taskapi"),
	})
	if err != nil {
		return cli.Validation("%w", err)
	}

	a.Dashboard, err = dashboard.New(dashboard.Config{
		Client:   a.Client,
		KV:       a.kv,
		Identity: a.identity,
		Polling:  cfg.Polling,
		Dispatch: a.DispatchDefaults(),
		Clock:       clock.Real(),
		Logger:      a.Logger,
		Instruments: instruments,
	})
	if err != nil {
		return cli.Internal("%w", err)
	}
	return nil
}

// DispatchDefaults are the configured values for unset dispatch
// fields.
func (a *App) DispatchDefaults() tasks.Defaults {
	return tasks.Defaults{
		TaskType:          taskapi.TaskType(a.Config.Dispatch.TaskType),
		MaxExecutionTime:  a.Config.Dispatch.MaxExecutionTime,
		SimulatedDuration: a.Config.Dispatch.SimulatedDuration,
		Replicas:          a.Config.Dispatch.Replicas,
	}
}

// RequireSession resumes the persisted session and fails with an
// unauthenticated error when there is none.
func (a *App) RequireSession(ctx context.Context) error {
	active, err := a.Dashboard.Resume(ctx)
	if err != nil {
		return cli.Internal("restoring session: %w", err)
	}
	if !active {
		return cli.Unauthenticated("not logged in")
	}
	return nil
}

// Close releases everything Open acquired, in reverse order.
func (a *App) Close() error {
	var errs []error
	if a.Dashboard != nil {
		errs = append(errs, a.Dashboard.Close())
	}
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	if a.identity != nil {
		errs = append(errs, a.identity.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.close())
	}
	return errors.Join(errs...)
}

// telemetrySink owns the export file and the providers writing to it.
type telemetrySink struct {
	file     *os.File
	shutdown telemetry.ShutdownFunc
}

func openTelemetry(ctx context.Context, path string) (*telemetrySink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, cli.Internal("opening telemetry output: %w", err)
	}
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Output:         file,
		ServiceName:    "mission",
		ServiceVersion: version.Short(),
	})
	if err != nil {
		file.Close()
		return nil, cli.Internal("setting up telemetry: %w", err)
	}
	return &telemetrySink{file: file, shutdown: shutdown}, nil
}

func (s *telemetrySink) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.shutdown(ctx)
	return errors.Join(err, s.file.Close())
}

// Describe is a one-line summary of where the client points, for
// diagnostics.
func (a *App) Describe() string {
	return fmt.Sprintf("%s (%s)", a.Config.API.BaseURL, a.Config.Environment)
}

// With opens an App, runs fn and closes the App.
func With(ctx context.Context, params Params, logger *slog.Logger, fn func(*App) error) error {
	a, err := Open(ctx, params, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("closing client state", "error", closeErr)
		}
	}()
	return fn(a)
}

// WithSession is With for commands that need a logged-in session.
func WithSession(ctx context.Context, params Params, logger *slog.Logger, fn func(*App) error) error {
	return With(ctx, params, logger, func(a *App) error {
		if err := a.RequireSession(ctx); err != nil {
			return err
		}
		return fn(a)
	})
}
