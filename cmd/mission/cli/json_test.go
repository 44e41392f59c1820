// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestEmitJSON_Disabled(t *testing.T) {
	var output JSONOutput
	done, err := output.EmitJSON([]int{1})
	if done || err != nil {
		t.Errorf("EmitJSON() = %v, %v; want false, nil", done, err)
	}
}

func TestNormalizeNilSlice(t *testing.T) {
	var tasks []string
	var buffer bytes.Buffer
	if err := EncodeJSON(&buffer, normalizeNilSlice(tasks)); err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}

	if value := normalizeNilSlice("text"); value != "text" {
		t.Errorf("non-slice changed: %v", value)
	}
}
