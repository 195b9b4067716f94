// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"io"
	"os"
	"time"

	"github.com/cavaliergopher/cpio"
)

// fileExtensionCpio is the file extension for cpio files
const fileExtensionCpio = "cpio"

// magicBytesCpio are the magic bytes of the SVR4 (newc) cpio encodings, with and
// without checksum
var magicBytesCpio = [][]byte{
	[]byte("070701"),
	[]byte("070702"),
}

// isCpio checks if the header matches the magic bytes for cpio files
func isCpio(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesCpio)
}

// openCpio creates a streaming walker over a cpio archive
func openCpio(in *archiveInput) (archiveWalker, error) {
	return &cpioWalker{r: cpio.NewReader(in.stream)}, nil
}

// cpioWalker is a walker for cpio files
type cpioWalker struct {
	r *cpio.Reader
}

// Next returns the next entry in the cpio archive. The trailer entry ends the
// archive with io.EOF.
func (c *cpioWalker) Next() (archiveEntry, error) {
	hdr, err := c.r.Next()
	if err != nil {
		return nil, err
	}
	return &cpioEntry{hdr: hdr, r: c.r}, nil
}

// cpioEntry is an entry in a cpio archive
type cpioEntry struct {
	hdr *cpio.Header
	r   *cpio.Reader
}

// Name returns the name of the entry
func (c *cpioEntry) Name() string {
	return c.hdr.Name
}

// Size returns the size of the entry
func (c *cpioEntry) Size() int64 {
	return c.hdr.Size
}

// Mode returns the mode of the entry
func (c *cpioEntry) Mode() os.FileMode {
	return c.hdr.FileInfo().Mode()
}

// Linkname returns the target of a symlink entry
func (c *cpioEntry) Linkname() string {
	return c.hdr.Linkname
}

// IsRegular returns true if the entry is a regular file
func (c *cpioEntry) IsRegular() bool {
	return c.Mode().IsRegular()
}

// IsDir returns true if the entry is a directory
func (c *cpioEntry) IsDir() bool {
	return c.Mode().IsDir()
}

// IsSymlink returns true if the entry is a symlink
func (c *cpioEntry) IsSymlink() bool {
	return c.Mode()&os.ModeSymlink != 0
}

// Open returns a reader for the entry
func (c *cpioEntry) Open() (io.ReadCloser, error) {
	return &noopReaderCloser{c.r}, nil
}

// AccessTime returns the modification time, cpio does not record access times
func (c *cpioEntry) AccessTime() time.Time {
	return c.hdr.ModTime
}

// ModTime returns the modification time of the entry
func (c *cpioEntry) ModTime() time.Time {
	return c.hdr.ModTime
}

// Gid returns the group ID of the entry
func (c *cpioEntry) Gid() int {
	return c.hdr.Guid
}

// Uid returns the user ID of the entry
func (c *cpioEntry) Uid() int {
	return c.hdr.Uid
}
