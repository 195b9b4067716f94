// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"io"
	"io/fs"
	"time"
)

// sizeUnknown is reported by entries whose size is only known after the
// payload has been read, e.g. a decompressed stream.
const sizeUnknown int64 = -1

// archiveWalker is an interface that represents a file walker in an archive
type archiveWalker interface {
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	AccessTime() time.Time
	Gid() int
	IsRegular() bool
	IsDir() bool
	IsSymlink() bool
	Linkname() string
	Mode() fs.FileMode
	ModTime() time.Time
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
	Uid() int
}
