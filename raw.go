// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"
)

// rawWalker exposes a decompressed stream as an archive with a single entry.
type rawWalker struct {
	name    string
	r       io.Reader
	mode    fs.FileMode
	modTime time.Time
	done    bool
}

// Next returns the single entry and io.EOF afterwards.
func (w *rawWalker) Next() (archiveEntry, error) {
	if w.done {
		return nil, io.EOF
	}
	w.done = true
	return &rawEntry{w}, nil
}

// rawEntry is the decompressed content of a compressed stream
type rawEntry struct {
	w *rawWalker
}

// Name returns the name derived from the compressed file
func (r *rawEntry) Name() string {
	return r.w.name
}

// Size returns sizeUnknown, streams do not record the decompressed size
func (r *rawEntry) Size() int64 {
	return sizeUnknown
}

// Mode returns the configured decompression file mode
func (r *rawEntry) Mode() os.FileMode {
	return r.w.mode
}

// Linkname returns an empty string
func (r *rawEntry) Linkname() string {
	return ""
}

// IsRegular returns true
func (r *rawEntry) IsRegular() bool {
	return true
}

// IsDir returns false
func (r *rawEntry) IsDir() bool {
	return false
}

// IsSymlink returns false
func (r *rawEntry) IsSymlink() bool {
	return false
}

// Open returns the decompressed stream
func (r *rawEntry) Open() (io.ReadCloser, error) {
	return &noopReaderCloser{r.w.r}, nil
}

// AccessTime returns the modification time of the compressed file
func (r *rawEntry) AccessTime() time.Time {
	return r.w.modTime
}

// ModTime returns the modification time of the compressed file
func (r *rawEntry) ModTime() time.Time {
	return r.w.modTime
}

// Gid returns the group ID of the current process
func (r *rawEntry) Gid() int {
	return os.Getgid()
}

// Uid returns the user ID of the current process
func (r *rawEntry) Uid() int {
	return os.Getuid()
}

// init prepares the filename restriction regex
func init() {
	namingRestrictions = []nameRestriction{
		{"empty name", regexp.MustCompile(`^$`)},
		{"current directory", regexp.MustCompile(`^\.$`)},
		{"parent directory", regexp.MustCompile(`^\.\.$`)},
		{"maximum length 255", regexp.MustCompile(`^.{256,}$`)},
		{"limit to first 255 ascii characters", regexp.MustCompile(`[^\x00-\xFF]`)},
		{"exclude line break, feed and tab", regexp.MustCompile(`[\x0a\x0d\x09]`)},
	}

	if runtime.GOOS != "windows" {
		// invalid unix filesystem characters: null byte, slash, backslash
		namingRestrictions = append(namingRestrictions,
			nameRestriction{"invalid character in filename (unix): null byte, slash, backslash", regexp.MustCompile(`[\x00/\\]`)},
		)
		return
	}

	// invalid windows filesystem characters and reserved names, "(?i)" is case-insensitive
	// https://docs.microsoft.com/en-us/windows/win32/fileio/naming-a-file
	namingRestrictions = append(namingRestrictions,
		nameRestriction{"invalid characters (windows)", regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*]`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)CON$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)PRN$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)AUX$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)NUL$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)COM[0-9]+$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(?i)LPT[0-9]+$`)},
		nameRestriction{"reserved name", regexp.MustCompile(`^(\s|\.)+$`)},
	)
}

// nameRestriction is a struct that contains the name of the restriction and the regex to check for it
type nameRestriction struct {
	RestrictionName string
	Regex           *regexp.Regexp
}

// namingRestrictions is a list of restrictions for filenames, depending on the operating system
var namingRestrictions []nameRestriction

const (
	// defaultDecompressionName is the name of decompressed content without usable input name
	defaultDecompressionName = "argrep-decompressed-content"

	// defaultDecompressedSuffix is the suffix for the decompressed content if
	// the filename does not end with the file extension
	defaultDecompressedSuffix = "decompressed"
)

// validFileName reports whether name violates none of the naming restrictions.
func validFileName(name string) bool {
	if !utf8.ValidString(name) {
		return false
	}
	for _, restriction := range namingRestrictions {
		if restriction.Regex.FindStringIndex(name) != nil {
			return false
		}
	}
	return true
}

// decompressedName determines the entry name for the decompressed content of inputName.
// The name stored in a gzip header is preferred. Otherwise the compression extension is
// removed from inputName, or a suffix is added if it has no such extension.
func decompressedName(stream io.Reader, inputName string, fileExt string) string {
	if gz, ok := stream.(*gzip.Reader); ok && len(gz.Name) > 0 {
		if name := filepath.Base(gz.Name); validFileName(name) {
			return name
		}
	}

	if len(inputName) == 0 {
		return defaultDecompressionName
	}

	// remove file extension
	newName := inputName
	suffix := "." + fileExt
	if strings.HasSuffix(strings.ToLower(inputName), strings.ToLower(suffix)) {
		newName = newName[:len(newName)-len(suffix)]
	}

	// check if file extension has been removed, if not, add a suffix
	if newName == inputName {
		newName = fmt.Sprintf("%s.%s", inputName, defaultDecompressedSuffix)
	}

	if !validFileName(newName) {
		return defaultDecompressionName
	}
	return newName
}
