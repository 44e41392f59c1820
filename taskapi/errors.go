// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package taskapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the service. Callers extract it
// with errors.As:
//
//	var apiErr *taskapi.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden { ... }
type APIError struct {
	StatusCode int
	// Detail is the service's human-readable reason, taken from the
	// {"detail": ...} body. Empty if the body had none.
	Detail    string
	Method    string
	Path      string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("taskapi: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("taskapi: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// newAPIError decodes an error body. Validation failures carry detail
// as a list of objects with a "msg" field; those are joined.
func newAPIError(statusCode int, method, path, requestID string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Method: method, Path: path, RequestID: requestID}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(body))
		return apiErr
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		apiErr.Detail = text
		return apiErr
	}

	var items []struct {
		Message string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		messages := make([]string, 0, len(items))
		for _, item := range items {
			messages = append(messages, item.Message)
		}
		apiErr.Detail = strings.Join(messages, "; ")
		return apiErr
	}

	apiErr.Detail = string(envelope.Detail)
	return apiErr
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// IsUnauthorized reports a 401: the bearer credential is missing,
// malformed or expired.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// Detail returns the service's reason for err, or "" if err did not
// come from a service response.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}
