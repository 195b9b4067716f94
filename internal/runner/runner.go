// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package runner searches a set of root paths. Roots are files or directory
// trees, archives among them are walked recursively and every terminal file that
// passes the filter is searched.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-argrep"
	"github.com/hashicorp/go-argrep/filter"
	"github.com/hashicorp/go-argrep/internal/output"
	"github.com/hashicorp/go-argrep/search"
	"golang.org/x/sync/errgroup"
)

// runDirPrefix prefixes the directory that holds the extracted files of a run.
const runDirPrefix = "argrep-"

// Exit codes follow grep.
const (
	ExitMatch   = 0
	ExitNoMatch = 1
	ExitError   = 2
)

// Searcher searches a single file. It is satisfied by [search.Dispatcher].
type Searcher interface {
	Search(ctx context.Context, path string, contentType string) ([]search.Match, error)
}

// Options configure a [Runner].
type Options struct {
	// Roots are the files and directories to search
	Roots []string

	// TempDir is the parent of the run directory, os.TempDir() if empty
	TempDir string

	// RunID names the run directory, a random uuid if empty
	RunID string

	// Keep retains the run directory after the run
	Keep bool

	// List prints every walked file instead of searching
	List bool

	// Parallel is the number of roots processed concurrently, at least 1
	Parallel int

	// Config configures extraction and walking
	Config *argrep.Config

	Filter     *filter.Filter
	Searcher   Searcher
	Classifier argrep.Classifier
	Sink       output.Sink
	Logger     *slog.Logger
}

// Result summarizes a run.
type Result struct {
	Files   int64
	Matches int64
	Errors  int64
}

// ExitCode maps the result of a run to a process exit code. Errors win over
// matches.
func (r Result) ExitCode(list bool) int {
	switch {
	case r.Errors > 0:
		return ExitError
	case list && r.Files > 0, r.Matches > 0:
		return ExitMatch
	default:
		return ExitNoMatch
	}
}

// Runner executes a single run.
type Runner struct {
	opts      Options
	extractor *argrep.Extractor
	walker    *argrep.Walker

	files   atomic.Int64
	matches atomic.Int64
	errs    atomic.Int64
}

// New creates a runner. Searcher and Sink are required unless Options.List is
// set, in which case only Sink is.
func New(opts Options) (*Runner, error) {
	if opts.Sink == nil {
		return nil, errors.New("no output sink")
	}
	if opts.Searcher == nil && !opts.List {
		return nil, errors.New("no searcher")
	}
	if opts.Config == nil {
		opts.Config = argrep.NewConfig()
	}
	if opts.Classifier == nil {
		opts.Classifier = argrep.NewMIMEClassifier()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if len(opts.TempDir) == 0 {
		opts.TempDir = os.TempDir()
	}
	if len(opts.RunID) == 0 {
		opts.RunID = uuid.NewString()
	}
	e := argrep.NewExtractor(argrep.WithConfig(opts.Config))
	return &Runner{
		opts:      opts,
		extractor: e,
		walker:    argrep.NewWalker(e, opts.Classifier, opts.Config),
	}, nil
}

// RunDir returns the directory that holds the extracted files of the run.
func (r *Runner) RunDir() string {
	return filepath.Join(r.opts.TempDir, runDirPrefix+r.opts.RunID)
}

// Run processes all roots. The returned error is only set if the run could not
// start, problems with single roots and files are reported to the sink and
// counted in the result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runDir := r.RunDir()
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return Result{}, fmt.Errorf("cannot create run directory: %w", err)
	}
	r.opts.Logger.Debug("using run directory", "dir", runDir)
	defer func() {
		if r.opts.Keep {
			r.opts.Logger.Info("keeping extracted files", "dir", runDir)
			return
		}
		if err := os.RemoveAll(runDir); err != nil {
			r.errorf("could not delete temporary dir %s: %v", runDir, err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for i, root := range r.opts.Roots {
		dir := filepath.Join(runDir, strconv.Itoa(i))
		g.Go(func() error {
			r.root(gctx, root, dir)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Files: r.files.Load(), Matches: r.matches.Load(), Errors: r.errs.Load()}
	if res.Matches == 0 && !r.opts.List {
		r.opts.Logger.Warn("no matches found")
	}
	return res, ctx.Err()
}

// root processes a file or a directory tree. dir is private to the root.
func (r *Runner) root(ctx context.Context, root string, dir string) {
	fi, err := os.Stat(root)
	if err != nil {
		r.errorf("couldn't stat root path '%s' - could not read the contents: %v", root, err)
		return
	}
	if !fi.IsDir() {
		r.file(ctx, root, filepath.Join(dir, filepath.Base(root)))
		return
	}

	n := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			r.errorf("cannot read %s: %v", p, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		r.file(ctx, p, filepath.Join(dir, strconv.Itoa(n), d.Name()))
		n++
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		r.errorf("cannot walk %s: %v", root, err)
	}
}

// file searches a file on disk or walks it if it is an archive. out is the
// output directory of the walk.
func (r *Runner) file(ctx context.Context, p string, out string) {
	if ctx.Err() != nil {
		return
	}
	display := filepath.ToSlash(p)
	format, err := r.extractor.Probe(ctx, p)
	if err != nil || r.opts.Config.IsSkippableFormat(format) {
		ct, _ := r.opts.Classifier.Classify(p)
		r.terminal(ctx, display, p, ct, "", 0)
		return
	}

	if r.opts.List {
		r.list(output.Entry{Path: display, IsArchive: true, Format: format.String()})
	}

	walk := r.walker.Walk(ctx, p, out)
	for entry, err := range walk.All() {
		if err != nil {
			r.errorf("error while walking through the %q file: %v", p, err)
			return
		}
		r.entry(ctx, display, entry)
	}
}

// entry handles a walked entry of the archive displayed as root.
func (r *Runner) entry(ctx context.Context, root string, e *argrep.WalkEntry) {
	display := path.Join(root, e.VirtualPath)
	if e.IsDirectory {
		return
	}
	if e.Err != nil {
		if errors.Is(e.Err, argrep.ErrNoPayload) {
			r.opts.Logger.Debug("skipping entry without payload", "entry", display)
			return
		}
		if e.IsArchive {
			// the walk moved past an archive it could not finish
			r.errorf("%s: %v", display, e.Err)
			return
		}
		r.warnf("%s: %v", display, e.Err)
		return
	}
	var warning string
	if e.Warning != nil {
		warning = e.Warning.Error()
		if !r.opts.List {
			r.warnf("%s: %s", display, warning)
		}
	}
	if e.IsArchive {
		if r.opts.List {
			r.list(output.Entry{Path: display, IsArchive: true, Format: e.Format.String(), ContentType: e.ContentType, Size: e.Size, Warning: warning})
		}
		return
	}
	r.terminal(ctx, display, e.ExtractedPath, e.ContentType, warning, e.Size)
}

// terminal filters and searches a file that is not walked any further.
func (r *Runner) terminal(ctx context.Context, display, p, contentType, warning string, size int64) {
	if !r.opts.Filter.Match(display) {
		r.opts.Logger.Debug("skipping filtered file", "file", display)
		return
	}
	r.files.Add(1)
	if r.opts.List {
		if size == 0 {
			if fi, err := os.Stat(p); err == nil {
				size = fi.Size()
			}
		}
		r.list(output.Entry{Path: display, ContentType: contentType, Size: size, Warning: warning})
		return
	}

	matches, err := r.opts.Searcher.Search(ctx, p, contentType)
	if err != nil {
		r.errorf("%s: %v", display, err)
	}
	for _, m := range matches {
		r.matches.Add(1)
		if err := r.opts.Sink.Match(display, m); err != nil {
			r.opts.Logger.Error("cannot write match", "error", err)
		}
	}
}

func (r *Runner) list(e output.Entry) {
	if err := r.opts.Sink.Entry(e); err != nil {
		r.opts.Logger.Error("cannot write entry", "error", err)
	}
}

func (r *Runner) warnf(format string, args ...interface{}) {
	if err := r.opts.Sink.Warn(fmt.Sprintf(format, args...)); err != nil {
		r.opts.Logger.Error("cannot write warning", "error", err)
	}
}

func (r *Runner) errorf(format string, args ...interface{}) {
	r.errs.Add(1)
	if err := r.opts.Sink.Error(fmt.Sprintf(format, args...)); err != nil {
		r.opts.Logger.Error("cannot write error", "error", err)
	}
}
