// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zaibaki/ResilientTask-Mission-Control/dashboard"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// ErrorCategory classifies a command failure for the user and for
// --json consumers.
type ErrorCategory string

const (
	// CategoryValidation: the input was wrong. Retrying the same
	// command will fail the same way.
	CategoryValidation ErrorCategory = "validation"

	// CategoryUnauthenticated: no session, an expired session, or
	// rejected credentials. Logging in fixes it.
	CategoryUnauthenticated ErrorCategory = "unauthenticated"

	CategoryNotFound  ErrorCategory = "not_found"
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryConflict: the service refused because of current state,
	// e.g. a task that already finished or an exhausted quota.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: the service was unreachable or failed
	// internally. Retrying may succeed.
	CategoryTransient ErrorCategory = "transient"

	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized command failure.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Hint is the follow-up shown under the error, if any.
func (e *ToolError) Hint() string {
	switch e.Category {
	case CategoryUnauthenticated:
		return "run 'mission login <username>' to start a session"
	case CategoryTransient:
		return "check that the service is reachable ('mission doctor')"
	default:
		return ""
	}
}

func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

func Unauthenticated(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryUnauthenticated, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err in a [ToolError]. Dashboard failures are mapped by
// kind and, for service errors, by HTTP status. A ToolError anywhere in
// the chain is returned as is.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	switch dashboard.KindOf(err) {
	case dashboard.KindAuthExpired, dashboard.KindCredentials:
		return &ToolError{Category: CategoryUnauthenticated, Err: err}
	case dashboard.KindValidation:
		return &ToolError{Category: CategoryValidation, Err: err}
	}

	var apiErr *taskapi.APIError
	if errors.As(err, &apiErr) {
		return &ToolError{Category: categoryForStatus(apiErr.StatusCode), Err: err}
	}
	var transportErr *url.Error
	if errors.As(err, &transportErr) {
		return &ToolError{Category: CategoryTransient, Err: err}
	}
	return &ToolError{Category: CategoryInternal, Err: err}
}

func categoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryUnauthenticated
	case status == http.StatusForbidden:
		return CategoryForbidden
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusConflict || status == http.StatusTooManyRequests:
		return CategoryConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CategoryValidation
	case status >= 500:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}
