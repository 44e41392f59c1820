// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package poller drives periodic refresh cycles while a session is
// active.
//
// A [Scheduler] is Idle until Start. Start runs one cycle immediately
// and then one per interval on a ticker from the injected clock. A
// cycle calls every [Target] concurrently and waits for all of them;
// failures are logged and reported to the OnError hook, never returned.
//
// With [config.OverlapSkip] a tick that arrives while the previous
// cycle is still running is dropped. With [config.OverlapAllow] every
// tick starts a cycle; targets must then tolerate concurrent calls
// (the task and quota stores discard out-of-order responses).
//
// Stop returns the scheduler to Idle. Cycles already running are not
// cancelled; their targets are expected to discard results that no
// longer apply.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/config"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 5 * time.Second

// State of the scheduler.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Target is one resource refreshed every cycle.
type Target struct {
	Name    string
	Refresh func(ctx context.Context) error
}

// Config configures a Scheduler.
type Config struct {
	Targets  []Target
	Interval time.Duration

	// Overlap is config.OverlapSkip (default) or config.OverlapAllow.
	Overlap string

	Clock clock.Clock

	// OnError, if set, is called for every failed target refresh, from
	// the goroutine that ran it.
	OnError func(target string, err error)

	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	targets      []Target
	interval     time.Duration
	allowOverlap bool
	clock        clock.Clock
	onError      func(string, error)
	logger       *slog.Logger
	instruments  *telemetry.Instruments

	mu      sync.Mutex
	state   State
	ticker  *clock.Ticker
	stopped chan struct{}

	cycles  atomic.Int64
	skipped atomic.Int64
	running sync.WaitGroup
}

// New validates config and returns an idle Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("poller: at least one target is required")
	}
	for _, target := range cfg.Targets {
		if target.Refresh == nil {
			return nil, fmt.Errorf("poller: target %q has no Refresh func", target.Name)
		}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	switch cfg.Overlap {
	case "", config.OverlapSkip, config.OverlapAllow:
	default:
		return nil, fmt.Errorf("poller: unknown overlap policy %q", cfg.Overlap)
	}
	schedulerClock := cfg.Clock
	if schedulerClock == nil {
		schedulerClock = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		targets:      append([]Target(nil), cfg.Targets...),
		interval:     interval,
		allowOverlap: cfg.Overlap == config.OverlapAllow,
		clock:        schedulerClock,
		onError:      cfg.OnError,
		logger:       logger,
		instruments:  cfg.Instruments,
	}, nil
}

// Start moves Idle to Active. Calling Start while Active does nothing.
// ctx is the context every cycle runs under; Stop does not cancel it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active {
		return
	}
	s.state = Active
	s.ticker = s.clock.NewTicker(s.interval)
	s.stopped = make(chan struct{})

	s.logger.Debug("polling started", "interval", s.interval, "allow_overlap", s.allowOverlap)
	s.running.Add(1)
	go s.loop(ctx, s.ticker, s.stopped, new(atomic.Bool))
}

// loop drives one Start/Stop run. inFlight is per run: a cycle left over
// from a previous run never causes this run's ticks to be skipped.
func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, stopped <-chan struct{}, inFlight *atomic.Bool) {
	defer s.running.Done()
	s.tick(ctx, stopped, inFlight)
	for {
		select {
		case <-stopped:
			return
		case <-ticker.C:
			s.tick(ctx, stopped, inFlight)
		}
	}
}

// tick starts a cycle in the background, or drops it under the skip
// policy when one is already running. Ticks belonging to a stopped run
// are ignored.
func (s *Scheduler) tick(ctx context.Context, stopped <-chan struct{}, inFlight *atomic.Bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stopped:
		return
	default:
	}

	if !s.allowOverlap && !inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.instruments.RefreshSkipped(ctx)
		s.logger.Debug("refresh tick skipped, previous cycle still running")
		return
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		if !s.allowOverlap {
			defer inFlight.Store(false)
		}
		s.runCycle(ctx)
	}()
}

// RunCycle runs one cycle synchronously, outside the ticker and the
// overlap policy.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.cycles.Add(1)
	s.instruments.RefreshCycle(ctx)

	var wg sync.WaitGroup
	for _, target := range s.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := target.Refresh(ctx); err != nil {
				s.instruments.RefreshFailed(ctx, target.Name)
				s.logger.Warn("background refresh failed", "target", target.Name, "error", err)
				if s.onError != nil {
					s.onError(target.Name, err)
				}
			}
		}()
	}
	wg.Wait()
}

// Stop moves Active to Idle and reports whether it did. No tick is
// processed after Stop returns.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return false
	}
	s.state = Idle
	close(s.stopped)
	s.ticker.Stop()
	s.logger.Debug("polling stopped")
	return true
}

// State reports Idle or Active.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the loop and every cycle it started have returned.
// Call after Stop.
func (s *Scheduler) Wait() {
	s.running.Wait()
}

// Cycles is the number of cycles started.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

// Skipped is the number of ticks dropped by the overlap policy.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }
