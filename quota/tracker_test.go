// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// scriptedSource returns one used value per call, then repeats the last.
type scriptedSource struct {
	mu    sync.Mutex
	quota int64
	used  []int64
	calls int
	err   error
}

func (s *scriptedSource) Quota(context.Context) (taskapi.QuotaSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return taskapi.QuotaSnapshot{}, s.err
	}
	index := min(s.calls, len(s.used)-1)
	s.calls++
	used := s.used[index]
	return taskapi.QuotaSnapshot{Quota: s.quota, Used: used, Available: s.quota - used}, nil
}

func TestVelocitySequence(t *testing.T) {
	source := &scriptedSource{quota: 100, used: []int64{10, 25, 25, 40}}
	tracker := NewTracker(source, nil, nil)

	var velocities []int64
	for range 4 {
		if _, err := tracker.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		velocities = append(velocities, tracker.State().Velocity)
	}
	if want := []int64{0, 15, 0, 15}; !slices.Equal(velocities, want) {
		t.Errorf("velocities = %v, want %v", velocities, want)
	}
	if want := []int64{10, 25, 25, 40}; !slices.Equal(tracker.State().History, want) {
		t.Errorf("history = %v, want %v", tracker.State().History, want)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	used := make([]int64, 45)
	for i := range used {
		used[i] = int64(i)
	}
	tracker := NewTracker(&scriptedSource{quota: 100, used: used}, nil, nil)

	for refreshes := 1; refreshes <= len(used); refreshes++ {
		if _, err := tracker.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		history := tracker.State().History
		if len(history) != min(refreshes, HistoryLimit) {
			t.Fatalf("after %d refreshes len(history) = %d", refreshes, len(history))
		}
		if history[len(history)-1] != int64(refreshes-1) {
			t.Fatalf("newest sample = %d, want %d", history[len(history)-1], refreshes-1)
		}
	}
	if first := tracker.State().History[0]; first != 15 {
		t.Errorf("oldest retained sample = %d, want 15", first)
	}
}

func TestRefreshFailureLeavesState(t *testing.T) {
	source := &scriptedSource{quota: 100, used: []int64{10}}
	tracker := NewTracker(source, nil, nil)
	if _, err := tracker.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	source.err = errors.New("connection refused")
	if _, err := tracker.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	state := tracker.State()
	if len(state.History) != 1 || state.Snapshot.Used != 10 {
		t.Errorf("state changed on failure: %+v", state)
	}
}

func TestIdenticalRefreshIsIdempotentForSnapshot(t *testing.T) {
	tracker := NewTracker(&scriptedSource{quota: 50, used: []int64{20}}, nil, nil)
	first, err := tracker.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	second, err := tracker.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first != second || tracker.State().Velocity != 0 {
		t.Errorf("snapshots %+v vs %+v, velocity %d", first, second, tracker.State().Velocity)
	}
}

func TestResetClearsAndRestartsVelocity(t *testing.T) {
	tracker := NewTracker(&scriptedSource{quota: 100, used: []int64{10, 30, 50}}, nil, nil)
	ctx := context.Background()
	tracker.Refresh(ctx)
	tracker.Refresh(ctx)

	tracker.Reset()
	if state := tracker.State(); state.HasSample || len(state.History) != 0 {
		t.Fatalf("state after Reset = %+v", state)
	}
	tracker.Refresh(ctx)
	if velocity := tracker.State().Velocity; velocity != 0 {
		t.Errorf("first velocity after Reset = %d, want 0", velocity)
	}
}

// blockingSource parks every call until released.
type blockingSource struct {
	started chan struct{}
	release chan taskapi.QuotaSnapshot
}

func (b *blockingSource) Quota(ctx context.Context) (taskapi.QuotaSnapshot, error) {
	b.started <- struct{}{}
	return <-b.release, nil
}

func TestResponseAfterResetIsDiscarded(t *testing.T) {
	source := &blockingSource{started: make(chan struct{}), release: make(chan taskapi.QuotaSnapshot)}
	tracker := NewTracker(source, nil, nil)

	result := make(chan error, 1)
	go func() {
		_, err := tracker.Refresh(context.Background())
		result <- err
	}()
	<-source.started
	tracker.Reset()
	source.release <- taskapi.QuotaSnapshot{Quota: 10, Used: 5, Available: 5}

	if err := <-result; !errors.Is(err, ErrStale) {
		t.Fatalf("Refresh after Reset = %v, want ErrStale", err)
	}
	if tracker.State().HasSample {
		t.Error("stale response was recorded")
	}
}

func TestOlderResponseLosesToNewer(t *testing.T) {
	source := &blockingSource{started: make(chan struct{}), release: make(chan taskapi.QuotaSnapshot)}
	tracker := NewTracker(source, nil, nil)

	older := make(chan error, 1)
	go func() {
		_, err := tracker.Refresh(context.Background())
		older <- err
	}()
	<-source.started

	newer := make(chan error, 1)
	go func() {
		_, err := tracker.Refresh(context.Background())
		newer <- err
	}()
	<-source.started

	// Both are parked; whichever receives first is unknown, so release
	// the same payload twice and check only one sample was kept.
	snapshot := taskapi.QuotaSnapshot{Quota: 10, Used: 4, Available: 6}
	source.release <- snapshot
	source.release <- snapshot
	errs := []error{<-older, <-newer}

	applied := 0
	for _, err := range errs {
		switch {
		case err == nil:
			applied++
		case !errors.Is(err, ErrStale):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if applied < 1 {
		t.Fatal("no refresh was applied")
	}
	if applied == 1 && len(tracker.State().History) != 1 {
		t.Errorf("history = %v", tracker.State().History)
	}
}

func TestLevels(t *testing.T) {
	cases := []struct {
		quota, used int64
		want        Level
	}{
		{100, 0, Normal},
		{100, 69, Normal},
		{100, 70, Elevated},
		{100, 89, Elevated},
		{100, 90, Critical},
		{100, 120, Critical},
		{0, 50, Normal},
		{-5, 50, Normal},
	}
	for _, tc := range cases {
		got := LevelOf(taskapi.QuotaSnapshot{Quota: tc.quota, Used: tc.used})
		if got != tc.want {
			t.Errorf("LevelOf(quota=%d, used=%d) = %v, want %v", tc.quota, tc.used, got, tc.want)
		}
	}
}
