// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"slices"
	"sync"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for opening, extracting and
// walking archives. The configuration options can be adjusted using the option pattern style.
//
// The default configuration is designed to be secure by default and prevent exhaustion,
// path traversal and symlink attacks.
type Config struct {
	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// customDecompressFileMode is the file mode for a decompressed file (respecting umask)
	customDecompressFileMode fs.FileMode

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// extractionFlags selects the restored entry attributes
	extractionFlags ExtractionFlags

	// extractionType is the format assumed for input without known magic bytes
	extractionType string

	// keepExtracted keeps extracted entries on disk after they have been consumed
	keepExtracted bool

	// logger stream for extraction and walking
	logger logger

	// maxDepth is the maximum nesting depth of archives. Set value to -1 to disable the check.
	maxDepth int

	// maxExtractionSize is the maximum size over all extracted files of one archive.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of entries (including folder and symlinks) in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of an archive.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// noUntarAfterDecompression offers the option to enable/disable combined tar.gz extraction
	noUntarAfterDecompression bool

	// outputLock locks the output directory of a walk
	outputLock bool

	// Define if files should be overwritten in the destination
	overwrite bool

	// skippableFormats are never descended into
	skippableFormats []Format

	// telemetryHook is a function to consume telemetry data after an archive session ended
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool

	// unappliedFlagsOnce reports requested but unsupported extraction flags once
	unappliedFlagsOnce sync.Once
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if fileSize exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// CheckMaxDepth checks if depth exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxDepthExceeded] error is returned.
func (c *Config) CheckMaxDepth(depth int) error {
	if c.MaxDepth() == -1 {
		return nil
	}
	if depth > c.MaxDepth() {
		return ErrMaxDepthExceeded
	}
	return nil
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomDecompressFileMode returns the file mode for a decompressed file.
// (respecting umask)
func (c *Config) CustomDecompressFileMode() fs.FileMode {
	return c.customDecompressFileMode
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// ExtractionFlags returns the entry attributes that are restored on disk.
func (c *Config) ExtractionFlags() ExtractionFlags {
	return c.extractionFlags
}

// ExtractType returns the format extension that is assumed for input whose
// magic bytes match no known format.
func (c *Config) ExtractType() string {
	return c.extractionType
}

// reportUnappliedFlags logs the requested extraction flags that have no effect, once per
// configuration.
func (c *Config) reportUnappliedFlags() {
	c.unappliedFlagsOnce.Do(func() {
		if f := c.extractionFlags.unappliedFlags(); f != 0 {
			c.Logger().Debug("extraction flags are not applied on this platform", "flags", f.String())
		}
	})
}

// IsSkippableFormat returns true if archives of format f are not descended into.
func (c *Config) IsSkippableFormat(f Format) bool {
	return slices.Contains(c.skippableFormats, f)
}

// KeepExtracted returns true if extracted entries stay on disk after they have
// been consumed.
func (c *Config) KeepExtracted() bool {
	return c.keepExtracted
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxDepth returns the maximum nesting depth of archives.
func (c *Config) MaxDepth() int {
	return c.maxDepth
}

// MaxExtractionSize returns the maximum size over all extracted files of one archive.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of entries (including folder and symlinks) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of an archive.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// NoUntarAfterDecompression returns true if tar.gz should NOT be untared after decompression.
func (c *Config) NoUntarAfterDecompression() bool {
	return c.noUntarAfterDecompression
}

// OutputLock returns true if a walk locks its output directory.
func (c *Config) OutputLock() bool {
	return c.outputLock
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// SkippableFormats returns a copy of the formats that are never descended into.
func (c *Config) SkippableFormats() []Format {
	return slices.Clone(c.skippableFormats)
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

const (
	defaultCreateDestination         = false                   // don't create destination directory
	defaultCustomCreateDirMode       = 0750                    // default directory permissions rwxr-x---
	defaultCustomDecompressFileMode  = 0640                    // default decompression permissions rw-r-----
	defaultDenySymlinkExtraction     = false                   // allow symlink extraction
	defaultExtractionFlags           = DefaultExtractionFlags  // perm, time, acl, fflags
	defaultExtractionType            = ""                      // detect by magic bytes only
	defaultKeepExtracted             = true                    // leave extracted entries on disk
	defaultMaxDepth                  = -1                      // unbounded nesting
	defaultMaxFiles                  = 100000                  // 100k files
	defaultMaxExtractionSize         = 1 << (10 * 3)           // 1 Gb
	defaultMaxInputSize              = 1 << (10 * 3)           // 1 Gb
	defaultNoUntarAfterDecompression = false                   // untar after decompression
	defaultOutputLock                = true                    // lock the output directory of a walk
	defaultOverwrite                 = false                   // don't overwrite existing files
	defaultTraverseSymlinks          = false                   // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}

	// mtree is plain text and matches a lot of regular text files
	defaultSkippableFormats = []Format{FormatMtree}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		createDestination:         defaultCreateDestination,
		customCreateDirMode:       defaultCustomCreateDirMode,
		customDecompressFileMode:  defaultCustomDecompressFileMode,
		denySymlinkExtraction:     defaultDenySymlinkExtraction,
		extractionFlags:           defaultExtractionFlags,
		extractionType:            defaultExtractionType,
		keepExtracted:             defaultKeepExtracted,
		logger:                    defaultLogger,
		maxDepth:                  defaultMaxDepth,
		maxFiles:                  defaultMaxFiles,
		maxExtractionSize:         defaultMaxExtractionSize,
		maxInputSize:              defaultMaxInputSize,
		noUntarAfterDecompression: defaultNoUntarAfterDecompression,
		outputLock:                defaultOutputLock,
		overwrite:                 defaultOverwrite,
		skippableFormats:          slices.Clone(defaultSkippableFormats),
		telemetryHook:             defaultTelemetryHook,
		traverseSymlinks:          defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomDecompressFileMode options pattern function to set the file mode for a
// decompressed file. (respecting umask)
func WithCustomDecompressFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customDecompressFileMode = mode
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithExtractionFlags options pattern function to select the restored entry attributes.
func WithExtractionFlags(flags ExtractionFlags) ConfigOption {
	return func(c *Config) {
		c.extractionFlags = flags
	}
}

// WithExtractType options pattern function to set the format extension (e.g. "br") that is
// assumed for input whose magic bytes match no known format.
func WithExtractType(extractionType string) ConfigOption {
	return func(c *Config) {
		if len(extractionType) > 0 {
			c.extractionType = extractionType
		}
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithKeepExtracted options pattern function to keep extracted entries on disk. If set
// to false, an entry is removed as soon as the consumer moves on to the next one.
func WithKeepExtracted(keep bool) ConfigOption {
	return func(c *Config) {
		c.keepExtracted = keep
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxDepth options pattern function to set the maximum nesting depth of archives.
// The root archive has depth 0. (-1 to disable check)
func WithMaxDepth(maxDepth int) ConfigOption {
	return func(c *Config) {
		c.maxDepth = maxDepth
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// extracted files of one archive. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted, files, directories
// and symlinks of one archive. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum size of an archive. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithNoUntarAfterDecompression options pattern function to enable/disable combined tar.gz extraction.
func WithNoUntarAfterDecompression(disable bool) ConfigOption {
	return func(c *Config) {
		c.noUntarAfterDecompression = disable
	}
}

// WithOutputLock options pattern function to lock the output directory of a walk.
func WithOutputLock(lock bool) ConfigOption {
	return func(c *Config) {
		c.outputLock = lock
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithSkippableFormats options pattern function to replace the set of formats that are
// never descended into. Without arguments, every detected archive is descended into.
func WithSkippableFormats(formats ...Format) ConfigOption {
	return func(c *Config) {
		c.skippableFormats = slices.Clone(formats)
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after
// an archive session ended.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
