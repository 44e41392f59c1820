// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/config"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/testutil"
)

const interval = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// signalTarget reports each call on calls and then returns err.
func signalTarget(name string, calls chan<- string, err error) Target {
	return Target{Name: name, Refresh: func(context.Context) error {
		calls <- name
		return err
	}}
}

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	scheduler, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		scheduler.Stop()
		scheduler.Wait()
	})
	return scheduler
}

func TestStartRunsBothTargetsImmediately(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	scheduler := newScheduler(t, Config{
		Targets:  []Target{signalTarget("tasks", calls, nil), signalTarget("quota", calls, nil)},
		Interval: interval,
		Clock:    fake,
	})

	if scheduler.State() != Idle {
		t.Fatalf("initial state = %v", scheduler.State())
	}
	scheduler.Start(context.Background())
	if scheduler.State() != Active {
		t.Fatalf("state after Start = %v", scheduler.State())
	}

	seen := map[string]bool{}
	for range 2 {
		seen[testutil.RequireReceive(t, calls, 5*time.Second, "waiting for immediate cycle")] = true
	}
	if !seen["tasks"] || !seen["quota"] {
		t.Errorf("immediate cycle refreshed %v", seen)
	}
}

func TestTickerDrivesCycles(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	scheduler := newScheduler(t, Config{
		Targets:  []Target{signalTarget("tasks", calls, nil)},
		Interval: interval,
		Overlap:  config.OverlapAllow,
		Clock:    fake,
	})
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, calls, 5*time.Second, "immediate cycle")

	for i := range 3 {
		fake.Advance(interval)
		testutil.RequireReceive(t, calls, 5*time.Second, "cycle %d", i+1)
	}
	if got := scheduler.Cycles(); got != 4 {
		t.Errorf("Cycles = %d, want 4", got)
	}
}

func TestSkipPolicyDropsOverlappingTicks(t *testing.T) {
	fake := clock.Fake(epoch)
	gate := make(chan struct{})
	started := make(chan struct{}, 10)
	scheduler := newScheduler(t, Config{
		Targets: []Target{{Name: "tasks", Refresh: func(context.Context) error {
			started <- struct{}{}
			<-gate
			return nil
		}}},
		Interval: interval,
		Clock:    fake,
	})
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, started, 5*time.Second, "immediate cycle")

	fake.Advance(interval)
	waitFor(t, "skipped tick", func() bool { return scheduler.Skipped() == 1 })
	fake.Advance(interval)
	waitFor(t, "second skipped tick", func() bool { return scheduler.Skipped() == 2 })
	testutil.RequireSilent(t, started, 20*time.Millisecond, "checking no overlapping cycle started")

	close(gate)
	waitFor(t, "cycle to finish", func() bool { return !scheduler.inFlight.Load() })
	fake.Advance(interval)
	testutil.RequireReceive(t, started, 5*time.Second, "cycle after the slow one finished")
}

func TestAllowPolicyOverlaps(t *testing.T) {
	fake := clock.Fake(epoch)
	gate := make(chan struct{})
	started := make(chan struct{}, 10)
	scheduler := newScheduler(t, Config{
		Targets: []Target{{Name: "tasks", Refresh: func(context.Context) error {
			started <- struct{}{}
			<-gate
			return nil
		}}},
		Interval: interval,
		Overlap:  config.OverlapAllow,
		Clock:    fake,
	})
	defer close(gate)
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, started, 5*time.Second, "immediate cycle")

	fake.Advance(interval)
	testutil.RequireReceive(t, started, 5*time.Second, "overlapping cycle")
	if scheduler.Skipped() != 0 {
		t.Errorf("Skipped = %d under allow policy", scheduler.Skipped())
	}
}

func TestStopHaltsTicks(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	scheduler := newScheduler(t, Config{
		Targets:  []Target{signalTarget("tasks", calls, nil)},
		Interval: interval,
		Overlap:  config.OverlapAllow,
		Clock:    fake,
	})
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, calls, 5*time.Second, "immediate cycle")

	if !scheduler.Stop() {
		t.Fatal("Stop on an active scheduler reported no transition")
	}
	if scheduler.Stop() {
		t.Error("second Stop reported a transition")
	}
	if scheduler.State() != Idle {
		t.Errorf("state after Stop = %v", scheduler.State())
	}

	fake.Advance(3 * interval)
	testutil.RequireSilent(t, calls, 50*time.Millisecond, "checking no tick after Stop")
	if fake.PendingCount() != 0 {
		t.Errorf("ticker still registered after Stop: %d alarms", fake.PendingCount())
	}
}

func TestRestartAfterStop(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	scheduler := newScheduler(t, Config{
		Targets:  []Target{signalTarget("tasks", calls, nil)},
		Interval: interval,
		Clock:    fake,
	})
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, calls, 5*time.Second, "first start")
	scheduler.Stop()

	scheduler.Start(context.Background())
	testutil.RequireReceive(t, calls, 5*time.Second, "second start")
}

func TestRestartWhileCycleInFlightRunsImmediately(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan int, 10)
	release := make(chan struct{})
	var count atomic.Int32
	scheduler := newScheduler(t, Config{
		Targets: []Target{{Name: "tasks", Refresh: func(context.Context) error {
			n := int(count.Add(1))
			calls <- n
			if n == 1 {
				<-release
			}
			return nil
		}}},
		Interval: interval,
		Overlap:  config.OverlapSkip,
		Clock:    fake,
	})
	defer close(release)

	scheduler.Start(context.Background())
	if n := testutil.RequireReceive(t, calls, 5*time.Second, "first start"); n != 1 {
		t.Fatalf("first call = %d, want 1", n)
	}
	scheduler.Stop()

	// The first cycle is still blocked; the new run must not treat it as
	// its own in-flight cycle.
	scheduler.Start(context.Background())
	if n := testutil.RequireReceive(t, calls, 5*time.Second, "immediate cycle after restart"); n != 2 {
		t.Fatalf("second call = %d, want 2", n)
	}
	if skipped := scheduler.Skipped(); skipped != 0 {
		t.Errorf("Skipped = %d, want 0", skipped)
	}
}

func TestFailuresGoToOnError(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	failures := make(chan string, 10)
	refreshErr := errors.New("service unavailable")
	scheduler := newScheduler(t, Config{
		Targets:  []Target{signalTarget("quota", calls, refreshErr), signalTarget("tasks", calls, nil)},
		Interval: interval,
		Clock:    fake,
		OnError: func(target string, err error) {
			if !errors.Is(err, refreshErr) {
				t.Errorf("OnError got %v", err)
			}
			failures <- target
		},
	})
	scheduler.Start(context.Background())

	if got := testutil.RequireReceive(t, failures, 5*time.Second, "waiting for failure report"); got != "quota" {
		t.Errorf("failed target = %q, want quota", got)
	}
	if scheduler.State() != Active {
		t.Error("a refresh failure stopped the scheduler")
	}
}

func TestStopFromOnErrorDoesNotDeadlock(t *testing.T) {
	fake := clock.Fake(epoch)
	calls := make(chan string, 10)
	var scheduler *Scheduler
	scheduler = newScheduler(t, Config{
		Targets:  []Target{signalTarget("tasks", calls, errors.New("401"))},
		Interval: interval,
		Clock:    fake,
		OnError:  func(string, error) { scheduler.Stop() },
	})
	scheduler.Start(context.Background())
	testutil.RequireReceive(t, calls, 5*time.Second, "immediate cycle")
	waitFor(t, "scheduler to stop itself", func() bool { return scheduler.State() == Idle })

	fake.Advance(interval)
	testutil.RequireSilent(t, calls, 50*time.Millisecond, "checking no tick after self-stop")
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without targets")
	}
	if _, err := New(Config{Targets: []Target{{Name: "x"}}}); err == nil {
		t.Error("expected error for a target without Refresh")
	}
	noop := Target{Name: "x", Refresh: func(context.Context) error { return nil }}
	if _, err := New(Config{Targets: []Target{noop}, Overlap: "queue"}); err == nil {
		t.Error("expected error for an unknown overlap policy")
	}
}
