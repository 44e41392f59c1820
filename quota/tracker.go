// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota tracks the caller's dispatch quota.
//
// A [Tracker] keeps the latest [taskapi.QuotaSnapshot], a bounded
// history of the used counter (one sample per successful refresh) and
// the velocity between the last two samples.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// HistoryLimit is the number of used samples retained.
const HistoryLimit = 30

// ErrStale is returned by Refresh when its response arrived after the
// tracker was reset or after a later-issued refresh had been applied.
// The response is discarded.
var ErrStale = errors.New("quota: stale response discarded")

// Source fetches the current snapshot. *taskapi.Session satisfies it.
type Source interface {
	Quota(ctx context.Context) (taskapi.QuotaSnapshot, error)
}

// Level buckets usage for display.
type Level int

const (
	Normal Level = iota
	Elevated
	Critical
)

func (l Level) String() string {
	switch l {
	case Elevated:
		return "elevated"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Usage returns used/quota. A non-positive quota counts as no usage.
func Usage(snapshot taskapi.QuotaSnapshot) float64 {
	if snapshot.Quota <= 0 {
		return 0
	}
	return float64(snapshot.Used) / float64(snapshot.Quota)
}

// LevelOf classifies snapshot: at least 90% used is Critical, at least
// 70% is Elevated.
func LevelOf(snapshot taskapi.QuotaSnapshot) Level {
	usage := Usage(snapshot)
	switch {
	case usage >= 0.9:
		return Critical
	case usage >= 0.7:
		return Elevated
	default:
		return Normal
	}
}

// State is a consistent copy of the tracker.
type State struct {
	Snapshot  taskapi.QuotaSnapshot
	Velocity  int64
	History   []int64
	HasSample bool
}

// Level classifies the state's snapshot.
func (s State) Level() Level { return LevelOf(s.Snapshot) }

// Tracker is safe for concurrent use.
type Tracker struct {
	source      Source
	logger      *slog.Logger
	instruments *telemetry.Instruments

	mu         sync.Mutex
	snapshot   taskapi.QuotaSnapshot
	velocity   int64
	history    []int64
	hasSample  bool
	generation uint64
	issued     uint64
	applied    uint64
}

// NewTracker returns an empty tracker reading from source.
func NewTracker(source Source, logger *slog.Logger, instruments *telemetry.Instruments) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{source: source, logger: logger, instruments: instruments}
}

// Refresh fetches a snapshot and records it. On error the tracker is
// unchanged.
func (t *Tracker) Refresh(ctx context.Context) (taskapi.QuotaSnapshot, error) {
	t.mu.Lock()
	generation := t.generation
	t.issued++
	sequence := t.issued
	t.mu.Unlock()

	snapshot, err := t.source.Quota(ctx)
	if err != nil {
		return taskapi.QuotaSnapshot{}, fmt.Errorf("refreshing quota: %w", err)
	}

	t.mu.Lock()
	if generation != t.generation || sequence <= t.applied {
		t.mu.Unlock()
		t.logger.Debug("discarding stale quota response", "sequence", sequence)
		return snapshot, ErrStale
	}
	t.applied = sequence
	t.recordLocked(snapshot)
	t.mu.Unlock()

	t.instruments.QuotaUsed(ctx, snapshot.Used)
	return snapshot, nil
}

// recordLocked appends one sample. Caller holds t.mu.
func (t *Tracker) recordLocked(snapshot taskapi.QuotaSnapshot) {
	t.velocity = 0
	if t.hasSample && len(t.history) > 0 {
		t.velocity = snapshot.Used - t.history[len(t.history)-1]
	}
	t.snapshot = snapshot
	t.hasSample = true
	t.history = append(t.history, snapshot.Used)
	if excess := len(t.history) - HistoryLimit; excess > 0 {
		t.history = append(t.history[:0:0], t.history[excess:]...)
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Snapshot:  t.snapshot,
		Velocity:  t.velocity,
		History:   append([]int64(nil), t.history...),
		HasSample: t.hasSample,
	}
}

// Reset forgets everything and discards responses still in flight.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot = taskapi.QuotaSnapshot{}
	t.velocity = 0
	t.history = nil
	t.hasSample = false
	t.generation++
}
