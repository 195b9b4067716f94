// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ExtractionService opens archives and streams their entries to disk. [Extractor]
// is the implementation backed by the format walkers of this package.
type ExtractionService interface {
	// Probe opens path, reads the first entry header and reports the format.
	// An error means that path is not a readable archive.
	Probe(ctx context.Context, path string) (Format, error)

	// Iterate opens path and returns an iterator that extracts one entry per
	// call into dst.
	Iterate(ctx context.Context, path string, dst string) (EntryIterator, error)
}

// EntryIterator yields the entries of one archive in archive order. Next returns
// io.EOF once the archive is exhausted, any other error is fatal and ends the
// iteration. Close releases the archive and may be called at any time, more than
// once.
type EntryIterator interface {
	Next() (*ContentsEntry, error)
	Close() error
}

// ExtractorOption is a function pointer to implement the option pattern
type ExtractorOption func(*Extractor)

// WithConfig sets the configuration of the [Extractor].
func WithConfig(cfg *Config) ExtractorOption {
	return func(e *Extractor) {
		e.cfg = cfg
	}
}

// WithTarget sets the [Target] entries are written to.
func WithTarget(t Target) ExtractorOption {
	return func(e *Extractor) {
		e.target = t
	}
}

// Extractor is the [ExtractionService] of this package. It detects archive formats
// by their magic bytes and writes entries through a [Target].
type Extractor struct {
	cfg    *Config
	target Target
}

// NewExtractor creates an [Extractor] with the default configuration writing to
// disk, adjusted by opts.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		cfg:    NewConfig(),
		target: NewTargetDisk(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the configuration of the extractor.
func (e *Extractor) Config() *Config {
	return e.cfg
}

// Open opens the archive at path and detects its format. The returned [Archive]
// must be closed by the caller. Any failure is reported as [*OpenError].
func (e *Extractor) Open(ctx context.Context, path string) (*Archive, error) {
	a, err := e.open(ctx, path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	return a, nil
}

func (e *Extractor) open(ctx context.Context, path string) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: not a regular file", ErrUnsupportedFormat)
	}
	if e.cfg.MaxInputSize() != -1 && stat.Size() > e.cfg.MaxInputSize() {
		f.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrMaxInputSizeExceeded, stat.Size())
	}

	a := &Archive{
		path:      path,
		cfg:       e.cfg,
		target:    e.target,
		inputSize: stat.Size(),
		modTime:   stat.ModTime(),
		closers:   []io.Closer{f},
	}
	if err := a.detect(f); err != nil {
		a.Close()
		return nil, err
	}
	e.cfg.Logger().Debug("opened archive", "path", path, "type", a.kind)
	return a, nil
}

// Probe opens path, reads the first entry header and closes the archive again. An
// empty archive is still reported with its format.
func (e *Extractor) Probe(ctx context.Context, path string) (Format, error) {
	a, err := e.Open(ctx, path)
	if err != nil {
		return FormatUnknown, err
	}
	defer a.Close()

	if err := a.peek(); err != nil && !errors.Is(err, io.EOF) {
		var w HeaderReadWarning
		if !errors.As(err, &w) {
			return FormatUnknown, &HeaderReadError{Path: path, Err: err}
		}
	}
	return a.Format(), nil
}

// Iterate opens the archive at path and returns a [Contents] iterator extracting
// its entries into dst.
func (e *Extractor) Iterate(ctx context.Context, path string, dst string) (EntryIterator, error) {
	a, err := e.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	c, err := a.Contents(ctx, dst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Archive is an opened archive. It is exclusively owned by the code that opened it
// and must be closed exactly once; additional calls to Close are no-ops.
type Archive struct {
	path      string
	cfg       *Config
	target    Target
	format    Format
	kind      string
	inputSize int64
	modTime   time.Time

	walker  archiveWalker
	closers []io.Closer
	closed  bool

	// first entry read by peek, handed out by the next call to next
	peeked    archiveEntry
	peekedErr error
	hasPeeked bool
}

// Path returns the path of the archive on disk.
func (a *Archive) Path() string {
	return a.path
}

// Format returns the detected container format.
func (a *Archive) Format() Format {
	return a.format
}

// Type returns the detected archive type as file extension, e.g. "zip" or "tar.gz".
func (a *Archive) Type() string {
	return a.kind
}

// Close releases the read handle and all decoders of the archive.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// detect identifies the format by the magic bytes at the start of f and creates the
// matching walker. Compressed streams are decompressed and checked for tar content.
func (a *Archive) detect(f *os.File) error {
	hr, err := newHeaderReader(f, maxHeaderLength)
	if err != nil {
		return err
	}
	header := hr.PeekHeader()

	for _, af := range availableFormats {
		if af.HeaderCheck(header) {
			return a.openFormat(af, f, hr)
		}
	}
	for _, ac := range availableCompressions {
		if ac.HeaderCheck(header) {
			return a.openCompressed(ac, hr)
		}
	}

	// fall back to the configured type
	if ext := a.cfg.ExtractType(); len(ext) > 0 {
		if af, ok := lookupFormat(ext); ok {
			return a.openFormat(af, f, hr)
		}
		if ac, ok := lookupCompression(ext); ok {
			return a.openCompressed(ac, hr)
		}
		return fmt.Errorf("%w: extraction type %q", ErrUnsupportedFormat, ext)
	}

	return ErrUnsupportedFormat
}

// openFormat creates the walker of container format af. Formats with random access
// read f directly, all others stream from hr.
func (a *Archive) openFormat(af availableFormat, f *os.File, hr *headerReader) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("cannot seek to start of archive: %w", err)
	}
	in := &archiveInput{
		name:     filepath.Base(a.path),
		stream:   newLimitErrorReader(f, a.cfg.MaxInputSize()),
		readerAt: f,
		size:     a.inputSize,
	}
	w, err := af.Open(in)
	if err != nil {
		return err
	}
	a.walker = w
	a.format = af.Format
	a.kind = af.Extension
	return nil
}

// openCompressed decompresses the stream of hr. A tar archive inside the stream is
// walked as tar, any other content becomes a single raw entry.
func (a *Archive) openCompressed(ac availableCompression, hr *headerReader) error {
	stream, err := ac.Decompress(newLimitErrorReader(hr, a.cfg.MaxInputSize()))
	if err != nil {
		return fmt.Errorf("cannot start decompression: %w", err)
	}
	if c, ok := stream.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// reading the header validates the compressed stream
	dhr, err := newHeaderReader(stream, maxHeaderLength)
	if err != nil {
		return fmt.Errorf("cannot read decompressed header: %w", err)
	}

	if !a.cfg.NoUntarAfterDecompression() && isTar(dhr.PeekHeader()) {
		w, err := openTar(&archiveInput{name: filepath.Base(a.path), stream: dhr, size: sizeUnknown})
		if err != nil {
			return err
		}
		a.walker = w
		a.format = FormatTar
		a.kind = fmt.Sprintf("%s.%s", fileExtensionTar, ac.Extension)
		return nil
	}

	a.walker = &rawWalker{
		name:    decompressedName(stream, filepath.Base(a.path), ac.Extension),
		r:       dhr,
		mode:    a.cfg.CustomDecompressFileMode(),
		modTime: a.modTime,
	}
	a.format = FormatRaw
	a.kind = ac.Extension
	return nil
}

// peek reads the first entry header without consuming it.
func (a *Archive) peek() error {
	if !a.hasPeeked {
		a.peeked, a.peekedErr = a.walker.Next()
		a.hasPeeked = true
	}
	return a.peekedErr
}

// next returns the next entry header, starting with a peeked one.
func (a *Archive) next() (archiveEntry, error) {
	if a.closed {
		return nil, fmt.Errorf("archive %s is closed", a.path)
	}
	if a.hasPeeked {
		ae, err := a.peeked, a.peekedErr
		a.peeked, a.peekedErr, a.hasPeeked = nil, nil, false
		if errors.Is(err, io.EOF) {
			// keep reporting the end of the archive
			a.hasPeeked, a.peekedErr = true, io.EOF
		}
		return ae, err
	}
	return a.walker.Next()
}
