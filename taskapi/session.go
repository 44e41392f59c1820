// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package taskapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
)

// Session issues authenticated requests. Safe for concurrent use.
type Session struct {
	client     *Client
	httpClient *http.Client
}

func (s *Session) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return s.client.do(ctx, s.httpClient, method, path, query, body, out)
}

// ListTasks returns at most limit tasks, newest first as the service
// orders them.
func (s *Session) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var tasks []Task
	if err := s.do(ctx, http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (s *Session) GetTask(ctx context.Context, id int64) (*Task, error) {
	var task Task
	if err := s.do(ctx, http.MethodGet, "/tasks/"+strconv.FormatInt(id, 10), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SubmitTasks creates request.Replicas tasks in one request and returns
// the created records.
func (s *Session) SubmitTasks(ctx context.Context, request DispatchRequest) ([]Task, error) {
	var created []Task
	if err := s.do(ctx, http.MethodPost, "/tasks", nil, request, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// CancelTask asks the service to cancel one task. The returned message
// distinguishes "Task cancelled" from "Task already finished".
func (s *Session) CancelTask(ctx context.Context, id int64) (string, error) {
	var response message
	if err := s.do(ctx, http.MethodPost, "/tasks/"+strconv.FormatInt(id, 10)+"/cancel", nil, nil, &response); err != nil {
		return "", err
	}
	return response.Message, nil
}

// DeleteTasks removes every task the caller owns.
func (s *Session) DeleteTasks(ctx context.Context) (string, error) {
	var response message
	if err := s.do(ctx, http.MethodDelete, "/tasks", nil, nil, &response); err != nil {
		return "", err
	}
	return response.Message, nil
}

// KillAll cancels every Pending or Processing task the caller owns.
func (s *Session) KillAll(ctx context.Context) (string, error) {
	var response message
	if err := s.do(ctx, http.MethodPost, "/tasks/kill-all", nil, nil, &response); err != nil {
		return "", err
	}
	return response.Message, nil
}

// Quota returns the caller's quota snapshot.
func (s *Session) Quota(ctx context.Context) (QuotaSnapshot, error) {
	var snapshot QuotaSnapshot
	err := s.do(ctx, http.MethodGet, "/users/me/quota", nil, nil, &snapshot)
	return snapshot, err
}

// ProfileUpdate changes the caller's username, password or both. Empty
// fields are left alone.
type ProfileUpdate struct {
	Username string
	Password *secret.Buffer
}

// UpdateProfile applies update. The password buffer is read, not closed.
func (s *Session) UpdateProfile(ctx context.Context, update ProfileUpdate) (*ProfileResult, error) {
	body := map[string]string{}
	if update.Username != "" {
		body["username"] = update.Username
	}
	if update.Password != nil {
		body["password"] = update.Password.String()
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("taskapi: profile update has no fields")
	}
	var result ProfileResult
	if err := s.do(ctx, http.MethodPut, "/users/me", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AdminUsers lists every account. Requires an administrator token.
func (s *Session) AdminUsers(ctx context.Context) ([]UserSummary, error) {
	var users []UserSummary
	if err := s.do(ctx, http.MethodGet, "/admin/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ResetSystem deletes every task of every user. Requires an
// administrator token.
func (s *Session) ResetSystem(ctx context.Context) (string, error) {
	var response message
	if err := s.do(ctx, http.MethodPost, "/admin/reset-system", nil, nil, &response); err != nil {
		return "", err
	}
	return response.Message, nil
}
