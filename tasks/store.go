// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tasks holds the canonical task list and the optimistic
// dispatch path that writes into it.
//
// [Store] is replaced wholesale by every successful refresh; it never
// merges. Speculative entries inserted by [Submitter] therefore live
// only until the next refresh, which either echoes the confirmed tasks
// or rolls the speculative ones back.
//
// Refresh responses can arrive out of order, and after the session that
// issued them has ended. Each refresh records the store generation and
// an issue sequence when it starts; a response is applied only if the
// generation is unchanged and no later-issued refresh has been applied.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// ErrStale is returned by Refresh when its response was discarded.
var ErrStale = errors.New("tasks: stale response discarded")

// DefaultLimit is the page size requested when none is configured.
const DefaultLimit = 100

// Lister fetches the newest tasks. *taskapi.Session satisfies it.
type Lister interface {
	ListTasks(ctx context.Context, limit int) ([]taskapi.Task, error)
}

// Store is safe for concurrent use.
type Store struct {
	lister Lister
	limit  int
	logger *slog.Logger

	mu          sync.Mutex
	tasks       []taskapi.Task
	generation  uint64
	issued      uint64
	applied     uint64
	subscribers map[int]chan struct{}
	nextID      int
}

// NewStore returns an empty store. A limit <= 0 uses DefaultLimit.
func NewStore(lister Lister, limit int, logger *slog.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		lister:      lister,
		limit:       limit,
		logger:      logger,
		subscribers: make(map[int]chan struct{}),
	}
}

// Refresh fetches the authoritative list and replaces the local one.
// On error the list is untouched. The returned slice is a copy.
func (s *Store) Refresh(ctx context.Context) ([]taskapi.Task, error) {
	s.mu.Lock()
	generation := s.generation
	s.issued++
	sequence := s.issued
	s.mu.Unlock()

	fetched, err := s.lister.ListTasks(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("refreshing tasks: %w", err)
	}

	s.mu.Lock()
	if generation != s.generation || sequence <= s.applied {
		s.mu.Unlock()
		s.logger.Debug("discarding stale task list", "sequence", sequence, "task_count", len(fetched))
		return nil, ErrStale
	}
	s.applied = sequence
	s.tasks = append([]taskapi.Task(nil), fetched...)
	result := append([]taskapi.Task(nil), s.tasks...)
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Debug("task list refreshed", "task_count", len(result))
	return result, nil
}

// InsertSpeculative prepends entries ahead of the current list.
func (s *Store) InsertSpeculative(entries []taskapi.Task) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]taskapi.Task, 0, len(entries)+len(s.tasks))
	merged = append(merged, entries...)
	merged = append(merged, s.tasks...)
	s.tasks = merged
	s.notifyLocked()
}

// RemoveAll empties the list after a confirmed bulk delete.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.notifyLocked()
}

// Reset empties the list and starts a new generation, so refreshes
// still in flight are discarded when they return.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.generation++
	s.notifyLocked()
}

// Snapshot returns a copy of the canonical list.
func (s *Store) Snapshot() []taskapi.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]taskapi.Task(nil), s.tasks...)
}

// Len returns the number of visible tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Subscribe returns a channel that receives a value after mutations.
// Notifications coalesce: a slow reader sees one pending value, not
// one per mutation. Call cancel to unsubscribe.
func (s *Store) Subscribe() (changes <-chan struct{}, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	channel := make(chan struct{}, 1)
	s.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notifyLocked() {
	for _, channel := range s.subscribers {
		select {
		case channel <- struct{}{}:
		default:
		}
	}
}
