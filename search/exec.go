// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Exec searches files by running the grep tool of the variant as
//
//	<tool> <flags> -n -e <pattern>... -- <path>
//
// and parsing its "line:text" output.
type Exec struct {
	// Patterns are passed with -e
	Patterns []string

	// Flags are passed to the tool unchanged
	Flags []string

	// Tools overrides the executable per variant
	Tools map[Variant]string
}

// Search implements [Backend]. Exit status 1 of the tool means no match.
func (e *Exec) Search(ctx context.Context, path string, v Variant) ([]Match, error) {
	tool := v.Tool()
	if t, ok := e.Tools[v]; ok {
		tool = t
	}

	args := append([]string{}, e.Flags...)
	args = append(args, "-n")
	for _, p := range e.Patterns {
		args = append(args, "-e", p)
	}
	args = append(args, "--", path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", tool, err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(path, &stdout), nil
}

// parseOutput parses "line:text" records. Lines without a line number are kept
// with line 0.
func parseOutput(path string, out *bytes.Buffer) []Match {
	var matches []Match
	s := bufio.NewScanner(out)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if len(line) == 0 {
			continue
		}
		m := Match{Path: path, Text: line}
		if num, text, ok := strings.Cut(line, ":"); ok {
			if n, err := strconv.Atoi(num); err == nil {
				m.Line = n
				m.Text = text
			}
		}
		matches = append(matches, m)
	}
	return matches
}
