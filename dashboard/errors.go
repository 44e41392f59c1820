// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zaibaki/ResilientTask-Mission-Control/session"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/tasks"
)

// Kind classifies a failed dashboard operation.
type Kind int

const (
	// KindAuthExpired: the service rejected the bearer token, or there
	// is no session. The session has been ended; log in again.
	KindAuthExpired Kind = iota + 1

	// KindCredentials: login rejected the username or password.
	KindCredentials

	// KindValidation: local input was rejected before any request.
	KindValidation

	// KindSubmission: a dispatch failed and was rolled back.
	KindSubmission

	// KindRefresh: fetching tasks or quota failed.
	KindRefresh

	// KindMutation: cancel, purge, kill-all, profile or admin operation
	// failed.
	KindMutation
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindCredentials:
		return "credentials"
	case KindValidation:
		return "validation"
	case KindSubmission:
		return "submission_failure"
	case KindRefresh:
		return "refresh_failure"
	case KindMutation:
		return "mutation_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every Dashboard operation that fails.
//
//	if errors.Is(err, dashboard.ErrAuthExpired) { ... }
//	var dashErr *dashboard.Error
//	if errors.As(err, &dashErr) { fmt.Println(dashErr.Detail) }
type Error struct {
	Kind Kind

	// Op names the operation, e.g. "submit" or "cancel".
	Op string

	// Detail is a message fit for the user: the service's reason when
	// it gave one.
	Detail string

	Err error
}

// Kind sentinels for errors.Is.
var (
	ErrAuthExpired = &Error{Kind: KindAuthExpired}
	ErrCredentials = &Error{Kind: KindCredentials}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrSubmission  = &Error{Kind: KindSubmission}
	ErrRefresh     = &Error{Kind: KindRefresh}
	ErrMutation    = &Error{Kind: KindMutation}
)

func (e *Error) Error() string {
	switch {
	case e.Op == "":
		return e.Kind.String()
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*Error)
	return ok && sentinel.Op == "" && sentinel.Kind == e.Kind
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var dashErr *Error
	if errors.As(err, &dashErr) {
		return dashErr.Kind
	}
	return 0
}

// unauthenticated reports errors that mean the caller holds no usable
// credential.
func unauthenticated(err error) bool {
	return taskapi.IsUnauthorized(err) || errors.Is(err, session.ErrNoSession)
}

// classify maps an operation failure onto the taxonomy. fallback is
// used for service errors that are not authorization failures.
func classify(op string, fallback Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if unauthenticated(err) {
		detail := "session expired; log in again"
		if errors.Is(err, session.ErrNoSession) {
			detail = "not logged in"
		}
		return &Error{Kind: KindAuthExpired, Op: op, Detail: detail, Err: err}
	}

	var validation *tasks.ValidationError
	if errors.As(err, &validation) {
		return &Error{Kind: KindValidation, Op: op, Detail: validation.Error(), Err: err}
	}
	var submission *tasks.SubmissionError
	if errors.As(err, &submission) {
		return &Error{Kind: KindSubmission, Op: op, Detail: submission.Detail, Err: err}
	}

	return &Error{Kind: fallback, Op: op, Detail: describe(err), Err: err}
}

// describe picks the user-facing message for err.
func describe(err error) string {
	var apiErr *taskapi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return http.StatusText(apiErr.StatusCode)
	}
	var transportErr *url.Error
	if errors.As(err, &transportErr) {
		return tasks.GenericFailure
	}
	return err.Error()
}
