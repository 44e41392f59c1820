// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

func TestWriteUserTable(t *testing.T) {
	var buffer bytes.Buffer
	writeUserTable(&buffer, []taskapi.UserSummary{
		{ID: 1, Username: "root", IsAdmin: true, TaskQuota: 1000, TasksDispatched: 12},
		{ID: 2, Username: "ada", TaskQuota: 100, TasksDispatched: 40},
	})

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buffer.String())
	}
	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "1 root admin 1000 12" {
		t.Errorf("admin row = %q", lines[1])
	}
	if fields := strings.Fields(lines[2]); strings.Join(fields, " ") != "2 ada user 100 40" {
		t.Errorf("user row = %q", lines[2])
	}
}
