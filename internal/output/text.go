// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package output

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-argrep/search"
)

// Text prints matches as "path#line: match" and diagnostics prefixed with
// [WRN] or [ERR].
type Text struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	path    *color.Color
	line    *color.Color
	archive *color.Color
	warn    *color.Color
	err     *color.Color
}

// NewText creates a text sink. colorize enables ANSI colors independent of the
// global color settings.
func NewText(out, errOut io.Writer, colorize bool) *Text {
	t := &Text{
		out:     out,
		errOut:  errOut,
		path:    color.New(color.FgMagenta),
		line:    color.New(color.FgGreen),
		archive: color.New(color.FgCyan, color.Bold),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed),
	}
	for _, c := range []*color.Color{t.path, t.line, t.archive, t.warn, t.err} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Match implements [Sink].
func (t *Text) Match(displayPath string, m search.Match) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "%s#%s: %s\n", t.path.Sprint(displayPath), t.line.Sprint(strconv.Itoa(m.Line)), m.Text)
	return err
}

// Entry implements [Sink]. Archives are suffixed with their format.
func (t *Text) Entry(e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	line := e.Path
	if e.IsArchive {
		line = t.archive.Sprint(e.Path) + " [" + e.Format + "]"
	}
	if len(e.Warning) > 0 {
		line += " " + t.warn.Sprint("("+e.Warning+")")
	}
	_, err := fmt.Fprintln(t.out, line)
	return err
}

// Warn implements [Sink].
func (t *Text) Warn(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.errOut, t.warn.Sprint("[WRN]"), msg)
	return err
}

// Error implements [Sink].
func (t *Text) Error(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.errOut, t.err.Sprint("[ERR]"), msg)
	return err
}
