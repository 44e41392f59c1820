// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is the client's durable key-value area: a single
// SQLite table behind a small zombiezen connection pool. Writes and
// deletes of several keys happen in one IMMEDIATE transaction, so a
// reader never sees half of a session.
//
// Keys live inside a namespace. The session store derives the namespace
// from the service URL with [Namespace], which keeps credentials for
// different deployments apart in the same database file.
package kvstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
) WITHOUT ROWID;
`

// Config describes where the store lives.
type Config struct {
	// Path is the database file. Its parent directory must exist.
	Path string

	// Namespace scopes every key. Required.
	Namespace string

	// PoolSize defaults to 2: one writer plus one concurrent reader is
	// all a single client process needs.
	PoolSize int

	// Clock stamps updated_at. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool      *sqlitex.Pool
	namespace string
	clock     clock.Clock
	logger    *slog.Logger
	path      string
}

// Open creates the pool and the kv table.
func Open(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("kvstore: Path is required")
	}
	if config.Namespace == "" {
		return nil, fmt.Errorf("kvstore: Namespace is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	storeClock := config.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening %s: %w", config.Path, err)
	}

	logger.Debug("state store opened", "path", config.Path, "namespace", config.Namespace)
	return &Store{
		pool:      pool,
		namespace: config.Namespace,
		clock:     storeClock,
		logger:    logger,
		path:      config.Path,
	}, nil
}

// prepareConnection runs once per pooled connection.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("kvstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("kvstore: creating schema: %w", err)
	}
	return nil
}

// Get returns the value stored under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := s.GetMany(ctx, key)
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// GetMany returns the subset of keys that exist. All reads happen on
// one connection inside one statement, so the result is consistent
// with respect to concurrent Put and Delete calls.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("kvstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	arguments := make([]any, 0, len(keys)+1)
	arguments = append(arguments, s.namespace)
	for _, key := range keys {
		arguments = append(arguments, key)
	}

	query := "SELECT key, value FROM kv WHERE namespace = ? AND key IN (" + placeholders + ")"
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: arguments,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result[stmt.ColumnText(0)] = stmt.ColumnText(1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %d keys: %w", len(keys), err)
	}
	return result, nil
}

// Put writes every entry of values in a single transaction.
func (s *Store) Put(ctx context.Context, values map[string]string) (err error) {
	if len(values) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("kvstore: begin: %w", err)
	}
	defer endTransaction(&err)

	now := s.clock.Now().UnixMilli()
	for key, value := range values {
		err = sqlitex.Execute(conn, `
			INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{s.namespace, key, value, now}})
		if err != nil {
			return fmt.Errorf("kvstore: writing %q: %w", key, err)
		}
	}
	return nil
}

// Delete removes keys in a single transaction. Missing keys are not an
// error.
func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("kvstore: begin: %w", err)
	}
	defer endTransaction(&err)

	for _, key := range keys {
		err = sqlitex.Execute(conn, "DELETE FROM kv WHERE namespace = ? AND key = ?",
			&sqlitex.ExecOptions{Args: []any{s.namespace, key}})
		if err != nil {
			return fmt.Errorf("kvstore: deleting %q: %w", key, err)
		}
	}
	return nil
}

// Close waits for borrowed connections and closes the pool.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("state store close failed", "path", s.path, "error", err)
		return fmt.Errorf("kvstore: closing %s: %w", s.path, err)
	}
	return nil
}

// Namespace fingerprints a service base URL. Trailing slashes and case
// in the scheme and host do not change the result.
func Namespace(baseURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if scheme, rest, ok := strings.Cut(normalized, "://"); ok {
		host, path, _ := strings.Cut(rest, "/")
		normalized = strings.ToLower(scheme) + "://" + strings.ToLower(host)
		if path != "" {
			normalized += "/" + path
		}
	}
	digest := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(digest[:16])
}
