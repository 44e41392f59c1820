// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// GenericFailure is the message used when a failed dispatch carries no
// reason from the service.
const GenericFailure = "network error: could not reach the API"

// Dispatcher sends a dispatch request. *taskapi.Session satisfies it.
type Dispatcher interface {
	SubmitTasks(ctx context.Context, request taskapi.DispatchRequest) ([]taskapi.Task, error)
}

// QuotaRefresher is the part of quota.Tracker the submitter drives.
type QuotaRefresher interface {
	Refresh(ctx context.Context) (taskapi.QuotaSnapshot, error)
}

// Defaults fill zero fields of a dispatch request.
type Defaults struct {
	TaskType          taskapi.TaskType
	MaxExecutionTime  int
	SimulatedDuration int
	Replicas          int
}

// StandardDefaults are the values the web dashboard pre-filled.
var StandardDefaults = Defaults{
	TaskType:          taskapi.TypeTextProcessing,
	MaxExecutionTime:  30,
	SimulatedDuration: 5,
	Replicas:          1,
}

// ValidationError rejects a request before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SubmissionError is a failed POST /tasks. Detail is the service's
// reason, or GenericFailure when it gave none.
type SubmissionError struct {
	Detail string
	Err    error
}

func (e *SubmissionError) Error() string { return "dispatch failed: " + e.Detail }

func (e *SubmissionError) Unwrap() error { return e.Err }

// SubmitterConfig wires a Submitter.
type SubmitterConfig struct {
	Store      *Store
	Dispatcher Dispatcher

	// Quota is refreshed after a successful dispatch. Optional.
	Quota QuotaRefresher

	Defaults    Defaults
	Clock       clock.Clock
	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// Submitter materializes dispatches optimistically and reconciles them
// with a refresh.
type Submitter struct {
	store       *Store
	dispatcher  Dispatcher
	quota       QuotaRefresher
	defaults    Defaults
	clock       clock.Clock
	logger      *slog.Logger
	instruments *telemetry.Instruments

	mu            sync.Mutex
	lastMagnitude int64
}

// NewSubmitter returns a Submitter. Zero Defaults fields fall back to
// StandardDefaults.
func NewSubmitter(config SubmitterConfig) (*Submitter, error) {
	if config.Store == nil || config.Dispatcher == nil {
		return nil, fmt.Errorf("tasks: Store and Dispatcher are required")
	}
	defaults := config.Defaults
	if defaults.TaskType == "" {
		defaults.TaskType = StandardDefaults.TaskType
	}
	if defaults.MaxExecutionTime <= 0 {
		defaults.MaxExecutionTime = StandardDefaults.MaxExecutionTime
	}
	if defaults.SimulatedDuration <= 0 {
		defaults.SimulatedDuration = StandardDefaults.SimulatedDuration
	}
	if defaults.Replicas <= 0 {
		defaults.Replicas = StandardDefaults.Replicas
	}
	submitterClock := config.Clock
	if submitterClock == nil {
		submitterClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Submitter{
		store:       config.Store,
		dispatcher:  config.Dispatcher,
		quota:       config.Quota,
		defaults:    defaults,
		clock:       submitterClock,
		logger:      logger,
		instruments: config.Instruments,
	}, nil
}

// Normalize applies defaults to zero fields and validates the result.
func (s *Submitter) Normalize(request taskapi.DispatchRequest) (taskapi.DispatchRequest, error) {
	if strings.TrimSpace(request.InputData) == "" {
		return request, &ValidationError{Field: "input_data", Message: "must not be empty"}
	}
	if request.TaskType == "" {
		request.TaskType = s.defaults.TaskType
	}
	if !request.TaskType.Valid() {
		return request, &ValidationError{Field: "task_type", Message: fmt.Sprintf("unknown type %q", request.TaskType)}
	}
	if request.MaxExecutionTime == 0 {
		request.MaxExecutionTime = s.defaults.MaxExecutionTime
	}
	if request.MaxExecutionTime < 0 {
		return request, &ValidationError{Field: "max_execution_time", Message: "must be positive"}
	}
	if request.SimulatedDuration == 0 {
		request.SimulatedDuration = s.defaults.SimulatedDuration
	}
	if request.SimulatedDuration < 0 {
		return request, &ValidationError{Field: "simulated_duration", Message: "must be positive"}
	}
	if request.Replicas == 0 {
		request.Replicas = s.defaults.Replicas
	}
	if request.Replicas < 1 {
		return request, &ValidationError{Field: "replicas", Message: "must be at least 1"}
	}
	return request, nil
}

// Submit inserts one speculative task per replica, sends a single
// dispatch request and then refreshes. On success it returns the tasks
// the service created; on failure the refresh removes the speculative
// entries and a *SubmissionError is returned. Validation failures
// return a *ValidationError with nothing changed.
func (s *Submitter) Submit(ctx context.Context, request taskapi.DispatchRequest) ([]taskapi.Task, error) {
	request, err := s.Normalize(request)
	if err != nil {
		return nil, err
	}

	s.store.InsertSpeculative(s.speculative(request))

	created, err := s.dispatcher.SubmitTasks(ctx, request)
	if err != nil {
		s.instruments.Submission(ctx, request.Replicas, false)
		s.logger.Warn("dispatch failed", "replicas", request.Replicas, "task_type", request.TaskType, "error", err)
		if _, refreshErr := s.store.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrStale) {
			s.logger.Warn("rollback refresh failed", "error", refreshErr)
		}
		detail := taskapi.Detail(err)
		if detail == "" {
			detail = GenericFailure
		}
		return nil, &SubmissionError{Detail: detail, Err: err}
	}

	s.instruments.Submission(ctx, request.Replicas, true)
	s.logger.Info("dispatched", "replicas", request.Replicas, "task_type", request.TaskType, "created", len(created))

	if _, err := s.store.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		s.logger.Warn("post-dispatch task refresh failed", "error", err)
	}
	if s.quota != nil {
		if _, err := s.quota.Refresh(ctx); err != nil {
			s.logger.Debug("post-dispatch quota refresh failed", "error", err)
		}
	}
	return created, nil
}

// speculative builds the placeholder entries for request.
func (s *Submitter) speculative(request taskapi.DispatchRequest) []taskapi.Task {
	now := s.clock.Now()
	entries := make([]taskapi.Task, request.Replicas)
	for k := range request.Replicas {
		input := request.InputData
		if request.Replicas > 1 {
			input = fmt.Sprintf("%s (Replica #%d)", request.InputData, k+1)
		}
		entries[k] = taskapi.Task{
			ID:                s.placeholderID(now.UnixMilli(), k+1),
			InputData:         input,
			Status:            taskapi.StatusPending,
			CreatedAt:         taskapi.Timestamp{Time: now},
			MaxExecutionTime:  request.MaxExecutionTime,
			SimulatedDuration: request.SimulatedDuration,
			TaskType:          request.TaskType,
		}
	}
	return entries
}

// placeholderID returns -(millis*1000 + k), nudged further from zero if
// needed so ids stay unique across dispatches in the same millisecond.
func (s *Submitter) placeholderID(millis int64, k int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	magnitude := millis*1000 + int64(k)
	if magnitude <= s.lastMagnitude {
		magnitude = s.lastMagnitude + 1
	}
	s.lastMagnitude = magnitude
	return -magnitude
}
