// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// fileExtensionZip is the file extension for zip files.
const fileExtensionZip = "zip"

// magicBytesZip contains the magic bytes for a zip archive and for an empty zip
// archive, which starts with the end of central directory record.
// reference: https://golang.org/pkg/archive/zip/
var magicBytesZip = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06},
}

// isZip checks if data is a zip archive.
func isZip(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesZip)
}

// openZip reads the central directory of a zip archive. Zip needs random access,
// a zip file inside a compressed stream is exposed as raw entry instead.
func openZip(in *archiveInput) (archiveWalker, error) {
	if in.readerAt == nil {
		return nil, fmt.Errorf("zip requires random access to %s", in.name)
	}

	// archive/zip reports insecure names with a usable reader, the names
	// are checked per entry
	reader, err := zip.NewReader(in.readerAt, in.size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("cannot create zip reader: %w", err)
	}
	return &zipWalker{zr: reader}, nil
}

// zipWalker is a walker for zip files
type zipWalker struct {
	zr *zip.Reader
	fp int
}

// Next returns the next entry in the zip archive. Entries with names that are not
// local paths are returned together with a [HeaderReadWarning].
func (z *zipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.zr.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	ze := &zipEntry{z.zr.File[z.fp]}
	if !filepath.IsLocal(toPlatformPath(ze.Name())) {
		return ze, HeaderReadWarning{Err: fmt.Errorf("%w: %s", zip.ErrInsecurePath, ze.Name())}
	}
	return ze, nil
}

// zipEntry is an entry in a zip archive
type zipEntry struct {
	zf *zip.File
}

// Name returns the name of the entry
func (z *zipEntry) Name() string {
	return z.zf.FileHeader.Name
}

// Size returns the size of the entry
func (z *zipEntry) Size() int64 {
	return int64(z.zf.FileHeader.UncompressedSize64)
}

// Mode returns the mode of the entry
func (z *zipEntry) Mode() os.FileMode {
	return z.zf.FileHeader.Mode()
}

// Linkname returns the linkname of the entry, which is stored as content
func (z *zipEntry) Linkname() string {
	rc, err := z.zf.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, _ := io.ReadAll(io.LimitReader(rc, 4096))
	return string(data)
}

// IsRegular returns true if the entry is a regular file
func (z *zipEntry) IsRegular() bool {
	return z.zf.FileHeader.Mode().Type() == 0
}

// IsDir returns true if the entry is a directory
func (z *zipEntry) IsDir() bool {
	return z.zf.FileHeader.Mode().Type() == os.ModeDir
}

// IsSymlink returns true if the entry is a symlink
func (z *zipEntry) IsSymlink() bool {
	return z.zf.FileHeader.Mode().Type() == os.ModeSymlink
}

// Open returns a reader for the entry
func (z *zipEntry) Open() (io.ReadCloser, error) {
	return z.zf.Open()
}

// AccessTime returns the access time of the entry
func (z *zipEntry) AccessTime() time.Time {
	return z.zf.FileHeader.Modified
}

// ModTime returns the modification time of the entry
func (z *zipEntry) ModTime() time.Time {
	return z.zf.FileHeader.Modified
}

// Gid returns the group ID of the current process, zip does not store owners
func (z *zipEntry) Gid() int {
	return os.Getgid()
}

// Uid returns the user ID of the current process, zip does not store owners
func (z *zipEntry) Uid() int {
	return os.Getuid()
}
