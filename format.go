// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"fmt"
	"strings"
)

// Format is the container format of an opened archive.
type Format int

const (
	// FormatUnknown is reported before the format of an archive is known.
	FormatUnknown Format = iota

	// FormatTar is a tar archive, optionally wrapped in a compressed stream.
	FormatTar

	// FormatZip is a zip archive.
	FormatZip

	// FormatRar is a rar archive.
	FormatRar

	// Format7zip is a 7-Zip archive.
	Format7zip

	// FormatCpio is a cpio archive in the SVR4 (newc) encoding.
	FormatCpio

	// FormatMtree is an mtree file system specification. Plain text can look like mtree,
	// so it is part of the default skippable formats.
	FormatMtree

	// FormatRaw is a compressed stream that does not contain a tar archive. It is exposed
	// as an archive with a single entry holding the decompressed content.
	FormatRaw
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatTar:     "tar",
	FormatZip:     "zip",
	FormatRar:     "rar",
	Format7zip:    "7z",
	FormatCpio:    "cpio",
	FormatMtree:   "mtree",
	FormatRaw:     "raw",
}

// String returns the short name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat returns the [Format] for a short name as returned by [Format.String].
// The lookup is case-insensitive.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if f != FormatUnknown && n == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatNames returns the names of all formats that [ParseFormat] accepts.
func FormatNames() []string {
	return []string{
		FormatTar.String(),
		FormatZip.String(),
		FormatRar.String(),
		Format7zip.String(),
		FormatCpio.String(),
		FormatMtree.String(),
		FormatRaw.String(),
	}
}
