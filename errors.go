// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxFilesExceeded indicates that the maximum number of entries in an archive is exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the maximum size of all extracted entries is exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded indicates that an archive is larger than the configured maximum input size.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")

	// ErrMaxDepthExceeded indicates that an archive is nested deeper than the configured maximum depth.
	ErrMaxDepthExceeded = errors.New("maximum archive depth exceeded")

	// ErrUnsupportedFormat indicates that the content of a file is not a supported archive format.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrUnsupportedFile indicates an entry type that is not extracted, e.g. a FIFO or a device,
	// or a symlink when symlink extraction is denied.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrNoPayload indicates an entry without content, e.g. an empty file or a symlink.
	ErrNoPayload = errors.New("entry has no payload")

	// ErrOutputDirLocked indicates that another walk owns the output directory.
	ErrOutputDirLocked = errors.New("output directory is locked by another walk")
)

// OpenError is returned when an archive cannot be opened or its format is not recognized.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open archive %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// HeaderReadError is an unrecoverable failure while reading the next entry header. It ends
// the iteration over the archive.
type HeaderReadError struct {
	Path string
	Err  error
}

func (e *HeaderReadError) Error() string {
	return fmt.Sprintf("cannot read header in %s: %v", e.Path, e.Err)
}

func (e *HeaderReadError) Unwrap() error {
	return e.Err
}

// HeaderReadWarning is a recoverable notice raised while reading an entry header. The entry
// is still processed.
type HeaderReadWarning struct {
	Path string
	Err  error
}

func (e HeaderReadWarning) Error() string {
	return fmt.Sprintf("header warning in %s: %v", e.Path, e.Err)
}

func (e HeaderReadWarning) Unwrap() error {
	return e.Err
}

// ExtractionError is attached to an entry that could not be extracted. Iteration continues
// with the next entry.
type ExtractionError struct {
	Name string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract %s: %v", e.Name, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractionWarning is attached to an entry that was extracted in a degraded way, e.g. a
// checksum mismatch or file attributes that could not be restored.
type ExtractionWarning struct {
	Name string
	Err  error
}

func (e *ExtractionWarning) Error() string {
	return fmt.Sprintf("extracted %s with warning: %v", e.Name, e.Err)
}

func (e *ExtractionWarning) Unwrap() error {
	return e.Err
}

// ClassificationError is returned by a [Classifier] that cannot determine the content type.
type ClassificationError struct {
	Path string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify %s: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// CycleDetectedError is returned when a nested archive has the same content as one of the
// archives it is contained in.
type CycleDetectedError struct {
	// Path is the virtual path of the nested archive.
	Path string

	// Ancestor is the virtual path of the archive with identical content.
	Ancestor string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("archive cycle detected: %s has the same content as %s", e.Path, e.Ancestor)
}
