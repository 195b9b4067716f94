// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// ContentsEntry describes one entry of an archive after it has been written to disk.
// It is not modified after it has been returned.
type ContentsEntry struct {
	// ArchivePath is the name of the entry inside the archive
	ArchivePath string

	// ExtractedPath is the location of the entry below the destination directory
	ExtractedPath string

	// Extracted is true if the entry was written completely, or with a recoverable
	// degradation reported in Warning
	Extracted bool

	// IsDirectory is true for directory entries
	IsDirectory bool

	// Size is the declared size of the entry, or the number of written bytes if
	// the archive does not declare it
	Size int64

	// Warning holds a recoverable problem of an extracted entry, an [*ExtractionWarning]
	Warning error

	// Err holds the reason why the entry was not extracted, an [*ExtractionError]
	Err error
}

// Contents iterates the entries of an [Archive] and writes each of them below a
// destination directory. It implements [EntryIterator].
//
// Entry level problems are reported on the returned [ContentsEntry] and the
// iteration continues. Unreadable headers and exceeded limits are fatal: Next
// returns the error and every later call returns it again. The archive is released
// when the iteration ends or Close is called, whichever happens first, and the
// telemetry hook is called at that moment.
type Contents struct {
	ctx     context.Context
	archive *Archive
	dst     string
	cfg     *Config
	target  Target
	td      *TelemetryData
	start   time.Time

	entries        int64
	extractedBytes int64

	// pending is the last written file, removed on the next call if
	// extracted entries are not kept
	pending string

	done     bool
	err      error
	released bool
}

// Contents returns an iterator that extracts the entries of a into dst. Ownership
// of a moves to the iterator, closing the iterator closes the archive.
func (a *Archive) Contents(ctx context.Context, dst string) (*Contents, error) {
	if err := createDir(a.target, dst, ".", a.cfg.CustomCreateDirMode(), a.cfg); err != nil {
		a.Close()
		return nil, &OpenError{Path: a.path, Err: err}
	}
	a.cfg.reportUnappliedFlags()

	return &Contents{
		ctx:     ctx,
		archive: a,
		dst:     dst,
		cfg:     a.cfg,
		target:  a.target,
		td: &TelemetryData{
			ArchivePath:   a.path,
			ExtractedType: a.kind,
			InputSize:     a.inputSize,
		},
		start: time.Now(),
	}, nil
}

// Archive returns the archive that is iterated.
func (c *Contents) Archive() *Archive {
	return c.archive
}

// Next extracts the next entry. It returns io.EOF after the last entry.
func (c *Contents) Next() (*ContentsEntry, error) {
	if c.done {
		return nil, c.err
	}
	c.removePending()

	if err := c.ctx.Err(); err != nil {
		return c.fail(err)
	}

	ae, err := c.archive.next()
	if errors.Is(err, io.EOF) {
		return c.fail(io.EOF)
	}
	if err != nil {
		var w HeaderReadWarning
		if !errors.As(err, &w) || ae == nil {
			return c.fail(&HeaderReadError{Path: c.archive.path, Err: err})
		}
		w.Path = c.archive.path
		c.cfg.Logger().Warn("header read warning", "archive", w.Path, "entry", ae.Name(), "error", w.Err)
		c.td.ExtractionWarnings++
	}

	c.entries++
	if err := c.cfg.CheckMaxFiles(c.entries); err != nil {
		return c.fail(fmt.Errorf("%s: %w", c.archive.path, err))
	}

	entry, err := c.extract(ae)
	if err != nil {
		return c.fail(err)
	}
	return entry, nil
}

// Close ends the iteration and releases the archive. It is safe to call Close
// more than once.
func (c *Contents) Close() error {
	if !c.done {
		c.done = true
		c.err = io.EOF
	}
	return c.release()
}

// fail ends the iteration with err.
func (c *Contents) fail(err error) (*ContentsEntry, error) {
	c.done = true
	c.err = err
	if !errors.Is(err, io.EOF) {
		c.td.recordError(err)
		c.cfg.Logger().Error("archive iteration failed", "archive", c.archive.path, "error", err)
	}
	if rerr := c.release(); rerr != nil {
		c.cfg.Logger().Warn("cannot release archive", "archive", c.archive.path, "error", rerr)
	}
	return nil, err
}

// release closes the archive and emits the telemetry data.
func (c *Contents) release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.removePending()
	err := c.archive.Close()
	captureExtractionDuration(c.td, c.start)
	c.cfg.TelemetryHook()(c.ctx, c.td)
	return err
}

// removePending deletes the previously returned file.
func (c *Contents) removePending() {
	if len(c.pending) == 0 {
		return
	}
	path := c.pending
	c.pending = ""
	if c.cfg.KeepExtracted() {
		return
	}
	if err := c.target.Remove(path); err != nil {
		c.cfg.Logger().Warn("cannot remove extracted entry", "path", path, "error", err)
	}
}

// extract writes ae below the destination. A returned error is fatal for the archive.
func (c *Contents) extract(ae archiveEntry) (*ContentsEntry, error) {
	name := ae.Name()
	entry := &ContentsEntry{
		ArchivePath:   name,
		ExtractedPath: filepath.Join(c.dst, toPlatformPath(name)),
		Size:          ae.Size(),
	}

	switch {
	case ae.IsDir():
		entry.IsDirectory = true
		entry.Size = 0
		if err := createDir(c.target, c.dst, name, c.dirMode(ae), c.cfg); err != nil {
			c.entryError(entry, err)
			return entry, nil
		}
		c.td.ExtractedDirs++
		return entry, nil

	case ae.IsSymlink():
		path, err := createSymlink(c.target, c.dst, name, ae.Linkname(), c.cfg)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFile) {
				c.unsupported(name)
			}
			c.entryError(entry, err)
			return entry, nil
		}
		c.pending = path
		c.td.ExtractedSymlinks++
		if c.cfg.ExtractionFlags().Has(ExtractTime) {
			if err := c.target.Lchtimes(path, ae.AccessTime(), ae.ModTime()); err != nil {
				c.cfg.Logger().Debug("cannot restore symlink times", "path", path, "error", err)
			}
		}
		c.noPayload(entry)
		return entry, nil

	case ae.IsRegular():
		return c.extractFile(entry, ae)

	default:
		c.unsupported(name)
		c.entryError(entry, fmt.Errorf("%w: %s", ErrUnsupportedFile, ae.Mode().Type()))
		return entry, nil
	}
}

// extractFile writes the payload of a regular file entry.
func (c *Contents) extractFile(entry *ContentsEntry, ae archiveEntry) (*ContentsEntry, error) {
	name := entry.ArchivePath
	size := ae.Size()

	// check declared size against the budget before writing
	if size > 0 {
		if err := c.cfg.CheckExtractionSize(c.extractedBytes + size); err != nil {
			return nil, fmt.Errorf("%s: %w", c.archive.path, err)
		}
	}

	path, err := prepareFile(c.target, c.dst, name, c.cfg)
	if err != nil {
		c.entryError(entry, err)
		return entry, nil
	}

	rc, err := ae.Open()
	if err != nil {
		c.entryError(entry, fmt.Errorf("cannot open entry: %w", err))
		return entry, nil
	}
	defer rc.Close()

	// entries without payload are still written to keep the tree complete
	if size == 0 || (size < 0 && size != sizeUnknown) {
		if _, err := c.target.CreateFile(path, bytes.NewReader(nil), c.fileMode(ae), c.cfg.Overwrite(), 0); err != nil {
			c.entryError(entry, err)
			return entry, nil
		}
		c.pending = path
		c.noPayload(entry)
		return entry, nil
	}

	limit := int64(-1)
	if max := c.cfg.MaxExtractionSize(); max != -1 {
		limit = max - c.extractedBytes
	}
	n, err := c.target.CreateFile(path, rc, c.fileMode(ae), c.cfg.Overwrite(), limit)
	c.extractedBytes += n
	c.td.ExtractionSize = c.extractedBytes
	if _, statErr := c.target.Lstat(path); statErr == nil {
		c.pending = path
	}

	if err != nil {
		if errors.Is(err, io.ErrShortWrite) {
			return nil, fmt.Errorf("%s: %s: %w", c.archive.path, name, ErrMaxExtractionSizeExceeded)
		}
		if n == 0 || !recoverableCopyError(err) {
			c.entryError(entry, err)
			return entry, nil
		}
		c.warn(entry, err)
	}

	if size == sizeUnknown {
		entry.Size = n
		if n == 0 {
			c.noPayload(entry)
			return entry, nil
		}
	} else if n < size && entry.Warning == nil {
		c.warn(entry, fmt.Errorf("short payload: %d of %d bytes", n, size))
	}

	entry.Extracted = true
	c.td.ExtractedFiles++
	c.restoreAttributes(entry, path, ae)
	return entry, nil
}

// restoreAttributes applies the configured extraction flags. Failures degrade the
// entry to a warning.
func (c *Contents) restoreAttributes(entry *ContentsEntry, path string, ae archiveEntry) {
	flags := c.cfg.ExtractionFlags()
	var errs []error

	if flags.Has(ExtractPerm) {
		if err := c.target.Chmod(path, readablePerm(ae.Mode())); err != nil {
			errs = append(errs, err)
		}
	}
	if flags.Has(ExtractOwner) {
		if err := c.target.Chown(path, ae.Uid(), ae.Gid()); err != nil {
			errs = append(errs, err)
		}
	}
	if flags.Has(ExtractTime) && !ae.ModTime().IsZero() {
		if err := c.target.Chtimes(path, ae.AccessTime(), ae.ModTime()); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 && entry.Warning == nil {
		c.warn(entry, fmt.Errorf("cannot restore attributes: %w", errors.Join(errs...)))
	}
}

// fileMode returns the creation mode of a file entry.
func (c *Contents) fileMode(ae archiveEntry) fs.FileMode {
	if c.cfg.ExtractionFlags().Has(ExtractPerm) {
		return readablePerm(ae.Mode())
	}
	return c.cfg.CustomDecompressFileMode()
}

// dirMode returns the creation mode of a directory entry. The owner always keeps
// full access, the children still need to be written.
func (c *Contents) dirMode(ae archiveEntry) fs.FileMode {
	if c.cfg.ExtractionFlags().Has(ExtractPerm) {
		return ae.Mode().Perm() | 0700
	}
	return c.cfg.CustomCreateDirMode()
}

// readablePerm returns the permission bits of mode, readable by the owner.
func readablePerm(mode fs.FileMode) fs.FileMode {
	return mode.Perm() | 0400
}

// entryError marks entry as not extracted.
func (c *Contents) entryError(entry *ContentsEntry, err error) {
	entry.Err = &ExtractionError{Name: entry.ArchivePath, Err: err}
	c.td.recordError(entry.Err)
	c.cfg.Logger().Debug("entry not extracted", "archive", c.archive.path, "entry", entry.ArchivePath, "error", err)
}

// noPayload marks entry as written without content.
func (c *Contents) noPayload(entry *ContentsEntry) {
	entry.Err = &ExtractionError{Name: entry.ArchivePath, Err: ErrNoPayload}
	c.td.EmptyEntries++
}

// warn attaches a recoverable problem to entry.
func (c *Contents) warn(entry *ContentsEntry, err error) {
	entry.Warning = &ExtractionWarning{Name: entry.ArchivePath, Err: err}
	c.td.ExtractionWarnings++
	c.cfg.Logger().Debug("entry extracted with warning", "archive", c.archive.path, "entry", entry.ArchivePath, "error", err)
}

// unsupported counts a skipped entry type.
func (c *Contents) unsupported(name string) {
	c.td.UnsupportedFiles++
	c.td.LastUnsupportedFile = name
}

// recoverableCopyError reports whether a payload copy failed in a way that leaves
// usable content, e.g. a checksum mismatch or a truncated payload.
func recoverableCopyError(err error) bool {
	if errors.Is(err, zip.ErrChecksum) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "checksum")
}
