// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirm asks a yes/no question on the terminal. assumeYes skips the
// question. Without a terminal and without assumeYes it refuses, so
// scripts must opt in with --yes.
func Confirm(question string, assumeYes bool) error {
	if assumeYes {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return Validation("refusing to %s without confirmation (pass --yes)", question)
	}
	return confirmFrom(os.Stdin, os.Stderr, question)
}

func confirmFrom(in io.Reader, out io.Writer, question string) error {
	fmt.Fprintf(out, "Really %s? [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return Validation("%s: no answer", question)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return Validation("%s: cancelled", question)
}
