// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package output renders search results, listings and diagnostics for the CLI.
package output

import (
	"io"
	"os"

	"github.com/hashicorp/go-argrep/search"
	"github.com/mattn/go-isatty"
)

// Entry is a walked file printed in list mode.
type Entry struct {
	Path        string `json:"path"`
	IsArchive   bool   `json:"is_archive"`
	Format      string `json:"format,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Warning     string `json:"warning,omitempty"`
}

// Sink receives the results of a run. Implementations are safe for concurrent use.
type Sink interface {
	// Match prints a match. displayPath replaces the path of the extracted file.
	Match(displayPath string, m search.Match) error

	// Entry prints a walked file in list mode.
	Entry(e Entry) error

	// Warn prints a non fatal problem.
	Warn(msg string) error

	// Error prints a problem that skipped a file or a root.
	Error(msg string) error
}

// New returns the sink selected by the CLI. Colors are used for text output when
// stdout is a terminal.
func New(jsonOutput bool, runID string, stdout, stderr io.Writer) Sink {
	if jsonOutput {
		return NewJSON(stdout, stderr, runID)
	}
	colorize := false
	if f, ok := stdout.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return NewText(stdout, stderr, colorize)
}
