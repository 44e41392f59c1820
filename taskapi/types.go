// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package taskapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state reported by the service.
type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusProcessing TaskStatus = "Processing"
	StatusCompleted  TaskStatus = "Completed"
	StatusFailed     TaskStatus = "Failed"
	StatusCancelled  TaskStatus = "Cancelled"
)

// Statuses lists every status in display order.
var Statuses = []TaskStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the task is queued or running.
func (s TaskStatus) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// TaskType selects the simulated workload.
type TaskType string

const (
	TypeTextProcessing TaskType = "text_processing"
	TypeImageGen       TaskType = "image_gen"
	TypeVideoGen       TaskType = "video_gen"
	TypeCodeAnalysis   TaskType = "code_analysis"
)

// TaskTypes lists every known type.
var TaskTypes = []TaskType{TypeTextProcessing, TypeImageGen, TypeVideoGen, TypeCodeAnalysis}

// Valid reports whether t is one of TaskTypes.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Task is one unit of work as the service reports it.
//
// Server-assigned IDs are positive. Records created locally before the
// service confirms them carry a negative ID and OwnerID 0.
type Task struct {
	ID                int64      `json:"id"`
	InputData         string     `json:"input_data"`
	Status            TaskStatus `json:"status"`
	Result            *string    `json:"result,omitempty"`
	CreatedAt         Timestamp  `json:"created_at"`
	MaxExecutionTime  int        `json:"max_execution_time"`
	SimulatedDuration int        `json:"simulated_duration"`
	IsCancelled       bool       `json:"is_cancelled"`
	OwnerID           int64      `json:"owner_id"`
	TaskType          TaskType   `json:"task_type"`
}

// Speculative reports whether the record has not been confirmed by the
// service yet.
func (t Task) Speculative() bool { return t.ID < 0 }

// DispatchRequest is the body of POST /tasks. One request creates
// Replicas identical tasks.
type DispatchRequest struct {
	InputData         string   `json:"input_data"`
	MaxExecutionTime  int      `json:"max_execution_time"`
	TaskType          TaskType `json:"task_type"`
	SimulatedDuration int      `json:"simulated_duration"`
	Replicas          int      `json:"replicas"`
}

// QuotaSnapshot is GET /users/me/quota. Quota == Used + Available is
// expected but not guaranteed.
type QuotaSnapshot struct {
	Quota     int64 `json:"quota"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// LoginResponse is the body of a successful POST /login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IsAdmin     bool   `json:"is_admin"`
}

// UserSummary is one row of GET /admin/users.
type UserSummary struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	IsAdmin         bool   `json:"is_admin"`
	TaskQuota       int64  `json:"task_quota"`
	TasksDispatched int64  `json:"tasks_dispatched"`
}

// ProfileResult is the body of a successful PUT /users/me.
type ProfileResult struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// Health is GET /health.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// message is the {"message": "..."} body most mutations return.
type message struct {
	Message string `json:"message"`
}

// Timestamp decodes the service's timestamps, which are ISO 8601 with
// or without a zone designator. Zoneless values are taken as UTC.
type Timestamp struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range zonelessLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
