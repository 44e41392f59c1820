// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-03-01T12:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "false"
	if strings.Contains(Info(), "-dirty") {
		t.Errorf("Info() = %q, clean build marked dirty", Info())
	}
	if !strings.Contains(Full(), runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q lacks the platform", Full())
	}
	if Commit() != "abc1234" || Short() != Version {
		t.Errorf("Commit() = %q, Short() = %q", Commit(), Short())
	}
}

func TestUserAgent(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit = saved })

	GitCommit = "abc1234"
	if got, want := UserAgent(), "mission/"+Version+" (abc1234)"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
