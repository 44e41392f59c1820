// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

func TestSetupExportsMetricsOnShutdown(t *testing.T) {
	ctx := context.Background()
	output := &lockedBuffer{}

	shutdown, err := Setup(ctx, Config{Output: output, ServiceName: "mission-test", ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	instruments, err := NewInstruments()
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	instruments.RefreshCycle(ctx)
	instruments.Submission(ctx, 3, true)
	instruments.QuotaUsed(ctx, 42)

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	exported := output.String()
	for _, name := range []string{"mission.refresh.cycles", "mission.submissions", "mission.quota.used"} {
		if !strings.Contains(exported, name) {
			t.Errorf("export does not mention %s", name)
		}
	}
}

func TestNilInstrumentsAreNoOps(t *testing.T) {
	var instruments *Instruments
	ctx := context.Background()
	instruments.RefreshCycle(ctx)
	instruments.RefreshSkipped(ctx)
	instruments.RefreshFailed(ctx, "tasks")
	instruments.Submission(ctx, 1, false)
	instruments.SessionTerminated(ctx, "logout")
	instruments.QuotaUsed(ctx, 1)
}

func TestFanoutHandlerDuplicatesRecords(t *testing.T) {
	var first, second bytes.Buffer
	logger := slog.New(FanoutHandler{
		slog.NewTextHandler(&first, nil),
		slog.NewJSONHandler(&second, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})

	logger.With("component", "poller").Info("cycle complete")
	logger.Warn("refresh failed")

	if !strings.Contains(first.String(), "cycle complete") || !strings.Contains(first.String(), "component=poller") {
		t.Errorf("text handler output = %q", first.String())
	}
	if strings.Contains(second.String(), "cycle complete") {
		t.Error("JSON handler received a record below its level")
	}
	if !strings.Contains(second.String(), "refresh failed") {
		t.Errorf("JSON handler output = %q", second.String())
	}
}
