// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"bytes"
	"io"
)

// init calculates the maximum header length
func init() {
	for _, af := range availableFormats {
		updateMaxHeaderLength(af.Offset, af.MagicBytes)
	}
	for _, ac := range availableCompressions {
		updateMaxHeaderLength(0, ac.MagicBytes)
	}
}

func updateMaxHeaderLength(offset int, magicBytes [][]byte) {
	needs := offset
	for _, mb := range magicBytes {
		if len(mb)+offset > needs {
			needs = len(mb) + offset
		}
	}
	if needs > maxHeaderLength {
		maxHeaderLength = needs
	}
}

// archiveInput is the content handed to an openFunc.
type archiveInput struct {
	// name is the base name of the file on disk
	name string

	// stream reads the content from its first byte
	stream io.Reader

	// readerAt provides random access to the content. It is nil for
	// decompressed streams.
	readerAt io.ReaderAt

	// size of the content, -1 if unknown
	size int64
}

// openFunc creates a walker over the entries of in.
type openFunc func(in *archiveInput) (archiveWalker, error)

// headerCheck is a function that checks if the given header matches the expected magic bytes.
type headerCheck func([]byte) bool

// decompressionFunc wraps src with a decompressing reader.
type decompressionFunc func(io.Reader) (io.Reader, error)

type availableFormat struct {
	Extension   string
	Format      Format
	Open        openFunc
	HeaderCheck headerCheck
	MagicBytes  [][]byte
	Offset      int
}

type availableCompression struct {
	Extension   string
	Decompress  decompressionFunc
	HeaderCheck headerCheck
	MagicBytes  [][]byte
}

// availableFormats is the ordered collection of container formats with
// the required magic bytes and potential offset
var availableFormats = []availableFormat{
	{
		Extension:   fileExtension7zip,
		Format:      Format7zip,
		Open:        open7zip,
		HeaderCheck: is7zip,
		MagicBytes:  magicBytes7zip,
	},
	{
		Extension:   fileExtensionRar,
		Format:      FormatRar,
		Open:        openRar,
		HeaderCheck: isRar,
		MagicBytes:  magicBytesRar,
	},
	{
		Extension:   fileExtensionZip,
		Format:      FormatZip,
		Open:        openZip,
		HeaderCheck: isZip,
		MagicBytes:  magicBytesZip,
	},
	{
		Extension:   fileExtensionCpio,
		Format:      FormatCpio,
		Open:        openCpio,
		HeaderCheck: isCpio,
		MagicBytes:  magicBytesCpio,
	},
	{
		Extension:   fileExtensionTar,
		Format:      FormatTar,
		Open:        openTar,
		HeaderCheck: isTar,
		MagicBytes:  magicBytesTar,
		Offset:      offsetTar,
	},
	{
		Extension:   fileExtensionMtree,
		Format:      FormatMtree,
		Open:        openMtree,
		HeaderCheck: isMtree,
		MagicBytes:  magicBytesMtree,
	},
}

// availableCompressions is the ordered collection of compressed stream formats
var availableCompressions = []availableCompression{
	{
		Extension:   fileExtensionGZip,
		Decompress:  decompressGZipStream,
		HeaderCheck: isGZip,
		MagicBytes:  magicBytesGZip,
	},
	{
		Extension:   fileExtensionBzip2,
		Decompress:  decompressBz2Stream,
		HeaderCheck: isBzip2,
		MagicBytes:  magicBytesBzip2,
	},
	{
		Extension:   fileExtensionXz,
		Decompress:  decompressXzStream,
		HeaderCheck: isXz,
		MagicBytes:  magicBytesXz,
	},
	{
		Extension:   fileExtensionZstd,
		Decompress:  decompressZstdStream,
		HeaderCheck: isZstd,
		MagicBytes:  magicBytesZstd,
	},
	{
		Extension:   fileExtensionLZ4,
		Decompress:  decompressLZ4Stream,
		HeaderCheck: isLZ4,
		MagicBytes:  magicBytesLZ4,
	},
	{
		Extension:   fileExtensionSnappy,
		Decompress:  decompressSnappyStream,
		HeaderCheck: isSnappy,
		MagicBytes:  magicBytesSnappy,
	},
	{
		Extension:   fileExtensionZlib,
		Decompress:  decompressZlibStream,
		HeaderCheck: isZlib,
		MagicBytes:  magicBytesZlib,
	},
	{
		Extension:   fileExtensionBrotli,
		Decompress:  decompressBrotliStream,
		HeaderCheck: isBrotli,
	},
}

// maxHeaderLength is the maximum header length of all formats
var maxHeaderLength int

// lookupFormat returns the container format registered for ext.
func lookupFormat(ext string) (availableFormat, bool) {
	for _, af := range availableFormats {
		if af.Extension == ext {
			return af, true
		}
	}
	return availableFormat{}, false
}

// lookupCompression returns the compressed stream format registered for ext.
func lookupCompression(ext string) (availableCompression, bool) {
	for _, ac := range availableCompressions {
		if ac.Extension == ext {
			return ac, true
		}
	}
	return availableCompression{}, false
}

// matchesMagicBytes checks if the bytes in data are equal to magicBytes after a given offset
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	for _, mb := range magicBytes {
		if offset+len(mb) > len(data) {
			continue
		}
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}
	return false
}
