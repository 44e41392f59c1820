// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskapi is the HTTP client for the task-execution service.
//
// [Client] is unauthenticated and serves /health, /signup and /login.
// [Client.Session] layers a bearer credential on top of it through an
// oauth2.Transport, so every authenticated call reads the token from a
// single TokenSource at request time. A Session never caches the token
// itself: when the source stops handing one out, requests fail before
// they reach the network.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/version"
)

// maxResponseSize bounds every response body read.
const maxResponseSize = 16 << 20

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the service, e.g. "http://localhost:8080". Required.
	BaseURL string

	// HTTPClient carries every request. Its Transport is reused as the
	// base of authenticated sessions. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to one service deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("taskapi: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("taskapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("taskapi: BaseURL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Signup creates an account. It does not log in.
func (c *Client) Signup(ctx context.Context, username string, password *secret.Buffer) error {
	if username == "" {
		return fmt.Errorf("taskapi: username is required")
	}
	if password == nil {
		return fmt.Errorf("taskapi: password is required")
	}
	body := map[string]string{"username": username, "password": password.String()}
	var response message
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/signup", nil, body, &response); err != nil {
		return err
	}
	c.logger.Info("account created", "username", username)
	return nil
}

// Login exchanges credentials for a bearer token. The password buffer
// is read, not closed.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*LoginResponse, error) {
	if username == "" {
		return nil, fmt.Errorf("taskapi: username is required")
	}
	if password == nil {
		return nil, fmt.Errorf("taskapi: password is required")
	}
	body := map[string]string{"username": username, "password": password.String()}
	var response LoginResponse
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/login", nil, body, &response); err != nil {
		return nil, err
	}
	if response.AccessToken == "" {
		return nil, fmt.Errorf("taskapi: login response has no access_token")
	}
	return &response, nil
}

// Session returns an authenticated view of the client whose requests
// carry the token produced by source.
func (c *Client) Session(source oauth2.TokenSource) *Session {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authenticated := &http.Client{
		Transport:     &oauth2.Transport{Source: source, Base: base},
		Timeout:       c.httpClient.Timeout,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}
	return &Session{client: c, httpClient: authenticated}
}

// do performs one JSON round trip. A nil out discards the body.
func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path string, query url.Values, requestBody, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("taskapi: encoding %s %s body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("taskapi: building %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	request.Header.Set("X-Request-ID", requestID)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	response, err := httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("taskapi: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("taskapi: reading %s %s response: %w", method, path, err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"request_id", requestID,
		"duration", time.Since(started),
	)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newAPIError(response.StatusCode, method, path, requestID, responseBody)
	}
	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("taskapi: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
