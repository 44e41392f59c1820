// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the engine's metrics. A nil *Instruments is valid and
// records nothing.
type Instruments struct {
	refreshCycles       metric.Int64Counter
	refreshSkipped      metric.Int64Counter
	refreshFailures     metric.Int64Counter
	submissions         metric.Int64Counter
	sessionTerminations metric.Int64Counter
	quotaUsed           metric.Int64Gauge
}

// NewInstruments creates the instruments on the global meter provider.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(InstrumentationName)
	var err error
	instruments := &Instruments{}

	if instruments.refreshCycles, err = meter.Int64Counter("mission.refresh.cycles",
		metric.WithDescription("Refresh cycles started by the polling scheduler"),
		metric.WithUnit("{cycle}")); err != nil {
		return nil, err
	}
	if instruments.refreshSkipped, err = meter.Int64Counter("mission.refresh.skipped",
		metric.WithDescription("Ticks skipped because the previous cycle was still in flight"),
		metric.WithUnit("{tick}")); err != nil {
		return nil, err
	}
	if instruments.refreshFailures, err = meter.Int64Counter("mission.refresh.failures",
		metric.WithDescription("Background refreshes that failed"),
		metric.WithUnit("{refresh}")); err != nil {
		return nil, err
	}
	if instruments.submissions, err = meter.Int64Counter("mission.submissions",
		metric.WithDescription("Dispatch requests by outcome"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if instruments.sessionTerminations, err = meter.Int64Counter("mission.session.terminations",
		metric.WithDescription("Sessions ended, by reason"),
		metric.WithUnit("{session}")); err != nil {
		return nil, err
	}
	if instruments.quotaUsed, err = meter.Int64Gauge("mission.quota.used",
		metric.WithDescription("Quota units consumed at the last refresh"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	return instruments, nil
}

// RefreshCycle counts one scheduler cycle.
func (i *Instruments) RefreshCycle(ctx context.Context) {
	if i == nil {
		return
	}
	i.refreshCycles.Add(ctx, 1)
}

// RefreshSkipped counts one tick dropped by the overlap policy.
func (i *Instruments) RefreshSkipped(ctx context.Context) {
	if i == nil {
		return
	}
	i.refreshSkipped.Add(ctx, 1)
}

// RefreshFailed counts a failed background refresh of resource
// ("tasks" or "quota").
func (i *Instruments) RefreshFailed(ctx context.Context, resource string) {
	if i == nil {
		return
	}
	i.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// Submission counts a dispatch with its replica count and outcome.
func (i *Instruments) Submission(ctx context.Context, replicas int, succeeded bool) {
	if i == nil {
		return
	}
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	i.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("replicas", replicas),
	))
}

// SessionTerminated counts a session end.
func (i *Instruments) SessionTerminated(ctx context.Context, reason string) {
	if i == nil {
		return
	}
	i.sessionTerminations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// QuotaUsed records the latest used value.
func (i *Instruments) QuotaUsed(ctx context.Context, used int64) {
	if i == nil {
		return
	}
	i.quotaUsed.Record(ctx, used)
}
