// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
)

// childDirSuffix is appended to the extracted path of a nested archive to name the
// directory its entries are extracted to.
const childDirSuffix = "-dir"

// WalkEntry is an entry yielded by a [Walk]. Archives are yielded with IsArchive set
// before their own entries. A nested archive that fails to open or read is yielded
// again with IsArchive and Err set, and the walk continues with its parent.
type WalkEntry struct {
	ContentsEntry

	// IsArchive is true if the entry is an archive the walk descends into
	IsArchive bool

	// Format is the probed archive format, FormatUnknown for plain files
	Format Format

	// ContentType is the MIME type reported by the [Classifier]
	ContentType string

	// Depth is the nesting level of the archive containing the entry, 0 for the root
	Depth int

	// VirtualPath is the slash separated path of the entry through the chain of
	// containing archives, e.g. "inner.zip/b.txt"
	VirtualPath string
}

// Walker walks archives recursively. A Walker holds no state of its own and can
// start any number of walks.
type Walker struct {
	service    ExtractionService
	classifier Classifier
	cfg        *Config
}

// NewWalker creates a [Walker]. Missing arguments are replaced with an [Extractor]
// on cfg, a [MIMEClassifier] and the default [Config].
func NewWalker(service ExtractionService, classifier Classifier, cfg *Config) *Walker {
	if cfg == nil {
		cfg = NewConfig()
	}
	if service == nil {
		service = NewExtractor(WithConfig(cfg))
	}
	if classifier == nil {
		classifier = NewMIMEClassifier()
	}
	return &Walker{
		service:    service,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Walk returns a lazy walk over the archive at archivePath, extracting into
// outputDir. Nothing is opened before the first call to [Walk.Next].
func (w *Walker) Walk(ctx context.Context, archivePath string, outputDir string) *Walk {
	return &Walk{
		ctx:       ctx,
		walker:    w,
		root:      archivePath,
		outputDir: outputDir,
	}
}

// frame is an archive on the current recursion chain.
type frame struct {
	// entry is the archive entry of a nested frame, nil for the root
	entry *WalkEntry

	it          EntryIterator
	dir         string
	virtualPath string
	digest      uint64
	depth       int
}

// Walk is a single pull based walk. It is not safe for concurrent use.
type Walk struct {
	ctx       context.Context
	walker    *Walker
	root      string
	outputDir string

	started bool
	stack   []*frame
	lock    *flock.Flock

	// descend is the last yielded archive, entered on the next call to Next
	descend *WalkEntry
	skip    bool

	done bool
	err  error
}

// Next returns the next entry in pre-order. It returns io.EOF when the walk is
// exhausted. A failure of the root archive ends the walk, as does a cycle or
// cancellation, and the error is returned by every later call.
func (w *Walk) Next() (*WalkEntry, error) {
	if w.done {
		return nil, w.err
	}
	if !w.started {
		w.started = true
		if err := w.start(); err != nil {
			return w.fail(err)
		}
	}

	if d := w.descend; d != nil {
		w.descend = nil
		skip := w.skip
		w.skip = false
		if !skip {
			if err := w.enter(d); err != nil {
				if !nestedRecoverable(err) {
					return w.fail(err)
				}
				return w.nestedFailed(d, err), nil
			}
		}
	}

	for len(w.stack) > 0 {
		if err := w.ctx.Err(); err != nil {
			return w.fail(err)
		}
		top := w.stack[len(w.stack)-1]
		ce, err := top.it.Next()
		if errors.Is(err, io.EOF) {
			w.pop()
			continue
		}
		if err != nil {
			if top.entry == nil || !nestedRecoverable(err) {
				return w.fail(err)
			}
			w.pop()
			return w.nestedFailed(top.entry, err), nil
		}

		entry, enter := w.classify(top, ce)
		if enter {
			w.descend = entry
		}
		return entry, nil
	}

	return w.fail(io.EOF)
}

// SkipArchive prevents the walk from descending into the archive returned by the
// last call to Next.
func (w *Walk) SkipArchive() {
	if w.descend != nil {
		w.skip = true
	}
}

// Close releases every open archive and the output directory lock. It is safe to
// call Close more than once.
func (w *Walk) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.err = io.EOF
	return w.release()
}

// All adapts the walk to a range loop. The walk is closed when the loop ends.
func (w *Walk) All() iter.Seq2[*WalkEntry, error] {
	return func(yield func(*WalkEntry, error) bool) {
		defer w.Close()
		for {
			entry, err := w.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// start locks the output directory and opens the root archive.
func (w *Walk) start() error {
	cfg := w.walker.cfg
	if err := os.MkdirAll(w.outputDir, cfg.CustomCreateDirMode().Perm()|0700); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}

	if cfg.OutputLock() {
		fl := flock.New(filepath.Clean(w.outputDir) + ".lock")
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("cannot lock output directory %s: %w", w.outputDir, err)
		}
		if !locked {
			return fmt.Errorf("%s: %w", w.outputDir, ErrOutputDirLocked)
		}
		w.lock = fl
	}

	digest, err := fileDigest(w.root)
	if err != nil {
		return &OpenError{Path: w.root, Err: err}
	}
	it, err := w.walker.service.Iterate(w.ctx, w.root, w.outputDir)
	if err != nil {
		return err
	}
	w.stack = append(w.stack, &frame{
		it:     it,
		dir:    w.outputDir,
		digest: digest,
		depth:  0,
	})
	cfg.Logger().Debug("walk started", "archive", w.root, "output", w.outputDir)
	return nil
}

// classify annotates ce and reports whether the walk descends into it.
func (w *Walk) classify(top *frame, ce *ContentsEntry) (*WalkEntry, bool) {
	cfg := w.walker.cfg
	entry := &WalkEntry{
		ContentsEntry: *ce,
		Depth:         top.depth,
		VirtualPath:   path.Join(top.virtualPath, filepath.ToSlash(ce.ArchivePath)),
	}
	if ce.Err != nil || ce.IsDirectory || !ce.Extracted {
		return entry, false
	}

	ct, err := w.walker.classifier.Classify(ce.ExtractedPath)
	if err != nil {
		cfg.Logger().Warn("cannot classify entry", "entry", entry.VirtualPath, "error", err)
		return entry, false
	}
	entry.ContentType = ct

	format, err := w.walker.service.Probe(w.ctx, ce.ExtractedPath)
	if err != nil {
		cfg.Logger().Debug("entry is not an archive", "entry", entry.VirtualPath, "error", err)
		return entry, false
	}
	entry.Format = format
	if cfg.IsSkippableFormat(format) {
		cfg.Logger().Debug("skipping archive format", "entry", entry.VirtualPath, "format", format)
		return entry, false
	}
	entry.IsArchive = true

	if err := cfg.CheckMaxDepth(top.depth + 1); err != nil {
		cfg.Logger().Warn("not descending into archive", "entry", entry.VirtualPath, "error", err)
		if entry.Warning == nil {
			entry.Warning = &ExtractionWarning{Name: ce.ArchivePath, Err: err}
		}
		return entry, false
	}
	return entry, true
}

// enter pushes the archive entry onto the recursion chain.
func (w *Walk) enter(entry *WalkEntry) error {
	digest, err := fileDigest(entry.ExtractedPath)
	if err != nil {
		return &OpenError{Path: entry.ExtractedPath, Err: err}
	}
	for _, f := range w.stack {
		if f.digest == digest {
			ancestor := f.virtualPath
			if len(ancestor) == 0 {
				ancestor = w.root
			}
			return &CycleDetectedError{Path: entry.VirtualPath, Ancestor: ancestor}
		}
	}

	dir := entry.ExtractedPath + childDirSuffix
	if err := os.MkdirAll(dir, w.walker.cfg.CustomCreateDirMode().Perm()|0700); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", entry.VirtualPath, err)
	}
	it, err := w.walker.service.Iterate(w.ctx, entry.ExtractedPath, dir)
	if err != nil {
		w.removeDir(dir)
		return err
	}
	w.stack = append(w.stack, &frame{
		entry:       entry,
		it:          it,
		dir:         dir,
		virtualPath: entry.VirtualPath,
		digest:      digest,
		depth:       entry.Depth + 1,
	})
	return nil
}

// nestedFailed reports the failure of a nested archive as a copy of its archive
// entry carrying err. The walk continues with the containing archive.
func (w *Walk) nestedFailed(archive *WalkEntry, err error) *WalkEntry {
	w.walker.cfg.Logger().Warn("aborting nested archive", "archive", archive.VirtualPath, "error", err)
	failed := *archive
	failed.Err = err
	return &failed
}

// nestedRecoverable reports whether a failure inside a nested archive only ends
// that archive. Cycles and cancellation end the walk.
func nestedRecoverable(err error) bool {
	var cycle *CycleDetectedError
	return !errors.As(err, &cycle) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// pop closes the innermost archive.
func (w *Walk) pop() {
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.closeFrame(top)
}

// closeFrame closes the iterator of f and removes its directory if extracted
// entries are not kept. The output directory of the root is left to the caller.
func (w *Walk) closeFrame(f *frame) error {
	err := f.it.Close()
	if f.depth > 0 {
		w.removeDir(f.dir)
	}
	return err
}

func (w *Walk) removeDir(dir string) {
	if w.walker.cfg.KeepExtracted() {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		w.walker.cfg.Logger().Warn("cannot remove extraction directory", "dir", dir, "error", err)
	}
}

// fail ends the walk with err.
func (w *Walk) fail(err error) (*WalkEntry, error) {
	w.done = true
	w.err = err
	if !errors.Is(err, io.EOF) {
		w.walker.cfg.Logger().Error("walk failed", "archive", w.root, "error", err)
	}
	if rerr := w.release(); rerr != nil {
		w.walker.cfg.Logger().Warn("cannot release walk", "archive", w.root, "error", rerr)
	}
	return nil, err
}

// release closes all frames from the innermost outwards and unlocks the output
// directory.
func (w *Walk) release() error {
	w.descend = nil
	var errs []error
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if err := w.closeFrame(top); err != nil {
			errs = append(errs, err)
		}
	}
	if w.lock != nil {
		if err := w.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
		w.lock = nil
	}
	return errors.Join(errs...)
}

// fileDigest returns the xxhash digest of the content at path.
func fileDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
