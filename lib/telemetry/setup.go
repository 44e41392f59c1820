// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry for the client: stdout-format
// exporters for traces, metrics and logs written to one file, global
// providers, and the counters the engine records.
//
// Instruments are always created against the global meter. When Setup
// has not run they are no-ops, so the engine records unconditionally.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InstrumentationName scopes every tracer, meter and logger.
const InstrumentationName = "github.com/zaibaki/ResilientTask-Mission-Control"

// Config selects where telemetry goes.
type Config struct {
	// Output receives the exporters' JSON lines.
	Output io.Writer

	ServiceName    string
	ServiceVersion string

	// MetricInterval is the periodic reader's export interval.
	// Defaults to 10s.
	MetricInterval time.Duration
}

// ShutdownFunc flushes and stops every provider Setup installed.
type ShutdownFunc func(context.Context) error

// Setup installs global trace, meter and logger providers exporting to
// config.Output. The returned function must be called before exit.
func Setup(ctx context.Context, config Config) (ShutdownFunc, error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdowns {
			err = errors.Join(err, fn(ctx))
		}
		shutdowns = nil
		return err
	}
	fail := func(cause error) (ShutdownFunc, error) {
		return nil, errors.Join(cause, shutdown(ctx))
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", config.ServiceName),
		attribute.String("service.version", config.ServiceVersion),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(config.Output))
	if err != nil {
		return fail(err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(res),
	)
	shutdowns = append(shutdowns, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	interval := config.MetricInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(config.Output))
	if err != nil {
		return fail(err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	shutdowns = append(shutdowns, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(config.Output))
	if err != nil {
		return fail(err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	shutdowns = append(shutdowns, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

// NewLogger returns a slog.Logger that emits through the global OTel
// logger provider.
func NewLogger() *slog.Logger {
	return otelslog.NewLogger(InstrumentationName)
}

// FanoutHandler duplicates records to several handlers, so the CLI can
// keep its terminal log while also exporting through OTel.
type FanoutHandler []slog.Handler

func (f FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			err = errors.Join(err, handler.Handle(ctx, record.Clone()))
		}
	}
	return err
}

func (f FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(FanoutHandler, len(f))
	for index, handler := range f {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (f FanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(FanoutHandler, len(f))
	for index, handler := range f {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
