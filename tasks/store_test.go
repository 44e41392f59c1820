// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/testutil"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// stubLister serves a fixed list, or parks calls on gate when set.
type stubLister struct {
	mu     sync.Mutex
	tasks  []taskapi.Task
	err    error
	limits []int
	gate   chan struct{}
	parked chan struct{}
}

func (s *stubLister) ListTasks(_ context.Context, limit int) ([]taskapi.Task, error) {
	s.mu.Lock()
	s.limits = append(s.limits, limit)
	gate, parked := s.gate, s.parked
	s.mu.Unlock()

	if gate != nil {
		parked <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]taskapi.Task(nil), s.tasks...), nil
}

func serverTask(id int64, status taskapi.TaskStatus) taskapi.Task {
	return taskapi.Task{
		ID:                id,
		InputData:         "payload",
		Status:            status,
		CreatedAt:         taskapi.Timestamp{Time: time.Date(2026, 3, 1, 0, 0, int(id), 0, time.UTC)},
		MaxExecutionTime:  30,
		SimulatedDuration: 5,
		OwnerID:           7,
		TaskType:          taskapi.TypeTextProcessing,
	}
}

func TestRefreshReplacesList(t *testing.T) {
	lister := &stubLister{tasks: []taskapi.Task{serverTask(2, taskapi.StatusPending), serverTask(1, taskapi.StatusCompleted)}}
	store := NewStore(lister, 0, nil)

	store.InsertSpeculative([]taskapi.Task{{ID: -5, InputData: "ghost", Status: taskapi.StatusPending}})
	if store.Len() != 1 {
		t.Fatalf("Len after insert = %d", store.Len())
	}

	got, err := store.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Refresh returned %d tasks", len(got))
	}
	for _, task := range store.Snapshot() {
		if task.Speculative() {
			t.Errorf("speculative task %d survived a refresh that did not echo it", task.ID)
		}
	}
	if lister.limits[0] != DefaultLimit {
		t.Errorf("limit = %d, want %d", lister.limits[0], DefaultLimit)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	lister := &stubLister{tasks: []taskapi.Task{serverTask(3, taskapi.StatusProcessing), serverTask(1, taskapi.StatusFailed)}}
	store := NewStore(lister, 20, nil)

	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first := store.Snapshot()
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !reflect.DeepEqual(first, store.Snapshot()) {
		t.Error("second identical refresh changed the list")
	}
}

func TestRefreshErrorLeavesList(t *testing.T) {
	lister := &stubLister{tasks: []taskapi.Task{serverTask(1, taskapi.StatusPending)}}
	store := NewStore(lister, 0, nil)
	store.Refresh(context.Background())

	lister.err = errors.New("boom")
	if _, err := store.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d after failed refresh, want 1", store.Len())
	}
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	lister := &stubLister{tasks: []taskapi.Task{serverTask(1, taskapi.StatusPending)}}
	store := NewStore(lister, 0, nil)
	store.Refresh(context.Background())

	snapshot := store.Snapshot()
	snapshot[0].Status = taskapi.StatusFailed
	if store.Snapshot()[0].Status != taskapi.StatusPending {
		t.Error("mutating a snapshot changed the store")
	}
}

func TestResetDiscardsInFlightRefresh(t *testing.T) {
	lister := &stubLister{
		tasks:  []taskapi.Task{serverTask(1, taskapi.StatusPending)},
		gate:   make(chan struct{}),
		parked: make(chan struct{}, 1),
	}
	store := NewStore(lister, 0, nil)

	result := make(chan error, 1)
	go func() {
		_, err := store.Refresh(context.Background())
		result <- err
	}()
	testutil.RequireReceive(t, lister.parked, 5*time.Second, "waiting for refresh to start")

	store.Reset()
	close(lister.gate)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for refresh to return")
	if !errors.Is(err, ErrStale) {
		t.Fatalf("Refresh across Reset = %v, want ErrStale", err)
	}
	if store.Len() != 0 {
		t.Errorf("stale response was applied: %d tasks", store.Len())
	}
}

// scriptedLister answers the nth call with responses[n]. The first call
// parks on gate until released.
type scriptedLister struct {
	mu        sync.Mutex
	calls     int
	responses [][]taskapi.Task
	gate      chan struct{}
	parked    chan struct{}
}

func (s *scriptedLister) ListTasks(context.Context, int) ([]taskapi.Task, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.mu.Unlock()

	if n == 0 {
		s.parked <- struct{}{}
		<-s.gate
	}
	return append([]taskapi.Task(nil), s.responses[n]...), nil
}

func TestOlderRefreshLosesToNewer(t *testing.T) {
	older := []taskapi.Task{serverTask(1, taskapi.StatusPending)}
	newer := []taskapi.Task{serverTask(1, taskapi.StatusCompleted), serverTask(2, taskapi.StatusPending)}
	lister := &scriptedLister{
		responses: [][]taskapi.Task{older, newer},
		gate:      make(chan struct{}),
		parked:    make(chan struct{}, 1),
	}
	store := NewStore(lister, 0, nil)

	result := make(chan error, 1)
	go func() {
		_, err := store.Refresh(context.Background())
		result <- err
	}()
	testutil.RequireReceive(t, lister.parked, 5*time.Second, "waiting for the first refresh to start")

	got, err := store.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if !reflect.DeepEqual(got, newer) {
		t.Fatalf("second Refresh = %+v, want %+v", got, newer)
	}

	close(lister.gate)
	err = testutil.RequireReceive(t, result, 5*time.Second, "waiting for the first refresh to return")
	if !errors.Is(err, ErrStale) {
		t.Fatalf("earlier-issued Refresh = %v, want ErrStale", err)
	}
	if snapshot := store.Snapshot(); !reflect.DeepEqual(snapshot, newer) {
		t.Errorf("list after stale response = %+v, want the newer list", snapshot)
	}
}

func TestRemoveAllAndSubscribe(t *testing.T) {
	lister := &stubLister{tasks: []taskapi.Task{serverTask(1, taskapi.StatusPending)}}
	store := NewStore(lister, 0, nil)
	changes, cancel := store.Subscribe()
	defer cancel()

	store.Refresh(context.Background())
	testutil.RequireReceive(t, changes, time.Second, "refresh notification")

	store.RemoveAll()
	testutil.RequireReceive(t, changes, time.Second, "remove notification")
	if store.Len() != 0 {
		t.Errorf("Len after RemoveAll = %d", store.Len())
	}

	cancel()
	store.InsertSpeculative([]taskapi.Task{{ID: -1}})
	select {
	case <-changes:
		t.Error("notified after cancel")
	default:
	}
}
