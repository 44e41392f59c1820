// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the authenticated identity of the client.
//
// A [Store] holds at most one session: a bearer token, the username and
// the admin flag. The session is persisted under three keys in a
// [kvstore.Store] so a restarted client resumes where it left off; the
// token can additionally be sealed to an age identity at rest.
//
// Ending a session is idempotent. However many in-flight requests see
// a 401 at once, the persisted values are cleared once and the
// teardown hooks run once per session. Each session carries an epoch
// number; [Store.EndEpoch] ignores requests to end a session that has
// already been replaced by a newer login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/kvstore"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/sealed"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
)

// Persisted keys.
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyIsAdmin  = "is_admin"
)

// sealedPrefix marks a token value encrypted with age.
const sealedPrefix = "age:"

// ErrNoSession is returned by Token while no session is active.
var ErrNoSession = errors.New("session: not logged in")

// Reason says why a session ended.
type Reason string

const (
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
	ReasonInvalid Reason = "invalid"
)

// Session is the non-secret part of an active session.
type Session struct {
	Username string
	IsAdmin  bool
	Epoch    uint64
}

// Config configures a Store.
type Config struct {
	// KV persists the session. Required.
	KV *kvstore.Store

	// Identity, when set, seals the token before it is written.
	Identity *sealed.Identity

	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// Store is safe for concurrent use.
type Store struct {
	kv          *kvstore.Store
	identity    *sealed.Identity
	logger      *slog.Logger
	instruments *telemetry.Instruments

	mu       sync.Mutex
	token    *secret.Buffer
	username string
	isAdmin  bool
	epoch    uint64
	hooks    []func(Reason)
}

// New returns an idle Store. Call Load to resume a persisted session.
func New(config Config) (*Store, error) {
	if config.KV == nil {
		return nil, fmt.Errorf("session: KV is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		kv:          config.KV,
		identity:    config.Identity,
		logger:      logger,
		instruments: config.Instruments,
	}, nil
}

// Load restores the persisted session, if any. A token that cannot be
// unsealed is treated as absent and the persisted values are cleared.
// Reports whether a session is now active.
func (s *Store) Load(ctx context.Context) (bool, error) {
	values, err := s.kv.GetMany(ctx, KeyToken, KeyUsername, KeyIsAdmin)
	if err != nil {
		return false, fmt.Errorf("session: loading: %w", err)
	}
	stored, ok := values[KeyToken]
	if !ok || stored == "" {
		return false, nil
	}

	token, err := s.unseal(stored)
	if err != nil {
		s.logger.Warn("discarding unreadable stored token", "error", err)
		if deleteErr := s.kv.Delete(ctx, KeyToken, KeyUsername, KeyIsAdmin); deleteErr != nil {
			return false, fmt.Errorf("session: clearing unreadable token: %w", deleteErr)
		}
		return false, nil
	}
	isAdmin, _ := strconv.ParseBool(values[KeyIsAdmin])

	s.mu.Lock()
	s.replaceLocked(token, values[KeyUsername], isAdmin)
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.Info("session resumed", "username", values[KeyUsername], "epoch", epoch)
	return true, nil
}

// Begin persists a new session and makes it current, replacing any
// session already active. Persistence happens first: if it fails the
// previous state is left untouched.
func (s *Store) Begin(ctx context.Context, accessToken, username string, isAdmin bool) (Session, error) {
	if accessToken == "" {
		return Session{}, fmt.Errorf("session: empty access token")
	}
	stored, err := s.seal(accessToken)
	if err != nil {
		return Session{}, err
	}
	if err := s.kv.Put(ctx, map[string]string{
		KeyToken:    stored,
		KeyUsername: username,
		KeyIsAdmin:  strconv.FormatBool(isAdmin),
	}); err != nil {
		return Session{}, fmt.Errorf("session: persisting: %w", err)
	}

	token, err := secret.NewFromString(accessToken)
	if err != nil {
		return Session{}, fmt.Errorf("session: protecting token: %w", err)
	}

	s.mu.Lock()
	s.replaceLocked(token, username, isAdmin)
	current := Session{Username: username, IsAdmin: isAdmin, Epoch: s.epoch}
	s.mu.Unlock()

	s.logger.Info("session started", "username", username, "admin", isAdmin, "epoch", current.Epoch)
	return current, nil
}

// replaceLocked installs a new token. Caller holds s.mu.
func (s *Store) replaceLocked(token *secret.Buffer, username string, isAdmin bool) {
	if s.token != nil {
		s.token.Close()
	}
	s.token = token
	s.username = username
	s.isAdmin = isAdmin
	s.epoch++
}

// Current returns the active session.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Session{}, false
	}
	return Session{Username: s.username, IsAdmin: s.isAdmin, Epoch: s.epoch}, true
}

// Active reports whether a session is active.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Epoch returns the number of the latest session, active or not.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// OnEnd registers a hook that runs after a session ends. Hooks run
// outside the store's lock, in registration order.
func (s *Store) OnEnd(hook func(Reason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// End tears down the active session. It reports whether this call
// ended one; calls with no active session do nothing.
func (s *Store) End(ctx context.Context, reason Reason) (bool, error) {
	return s.end(ctx, 0, reason)
}

// EndEpoch is End restricted to the session numbered epoch. A 401
// produced by a request that was issued under an older session must
// not end the newer one.
func (s *Store) EndEpoch(ctx context.Context, epoch uint64, reason Reason) (bool, error) {
	if epoch == 0 {
		return false, nil
	}
	return s.end(ctx, epoch, reason)
}

func (s *Store) end(ctx context.Context, epoch uint64, reason Reason) (bool, error) {
	s.mu.Lock()
	if s.token == nil || (epoch != 0 && epoch != s.epoch) {
		s.mu.Unlock()
		return false, nil
	}
	s.token.Close()
	s.token = nil
	username := s.username
	ended := s.epoch
	s.username = ""
	s.isAdmin = false
	hooks := append(([]func(Reason))(nil), s.hooks...)
	s.mu.Unlock()

	// Memory is already clear, so a failed delete still leaves the
	// client logged out for this process.
	err := s.kv.Delete(ctx, KeyToken, KeyUsername, KeyIsAdmin)
	if err != nil {
		err = fmt.Errorf("session: clearing persisted session: %w", err)
	}

	s.instruments.SessionTerminated(ctx, string(reason))
	s.logger.Info("session ended", "username", username, "reason", reason, "epoch", ended)
	for _, hook := range hooks {
		hook(reason)
	}
	return true, err
}

// SetUsername replaces the stored username after a profile rename.
func (s *Store) SetUsername(ctx context.Context, username string) error {
	s.mu.Lock()
	if s.token == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	s.mu.Unlock()

	if err := s.kv.Put(ctx, map[string]string{KeyUsername: username}); err != nil {
		return fmt.Errorf("session: persisting username: %w", err)
	}
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	return nil
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, ErrNoSession
	}
	return &oauth2.Token{AccessToken: s.token.String(), TokenType: "Bearer"}, nil
}

// Close releases the in-memory token without touching persisted state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	err := s.token.Close()
	s.token = nil
	return err
}

func (s *Store) seal(accessToken string) (string, error) {
	if s.identity == nil {
		return accessToken, nil
	}
	ciphertext, err := sealed.Seal([]byte(accessToken), s.identity.Recipient)
	if err != nil {
		return "", fmt.Errorf("session: sealing token: %w", err)
	}
	return sealedPrefix + ciphertext, nil
}

func (s *Store) unseal(stored string) (*secret.Buffer, error) {
	ciphertext, isSealed := strings.CutPrefix(stored, sealedPrefix)
	if !isSealed {
		return secret.NewFromString(stored)
	}
	if s.identity == nil {
		return nil, fmt.Errorf("token is sealed but no identity is configured")
	}
	return s.identity.Open(ciphertext)
}
