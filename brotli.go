// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"io"

	"github.com/andybalholm/brotli"
)

// fileExtensionBrotli is the file extension for brotli files.
const fileExtensionBrotli = "br"

// isBrotli returns always false, brotli streams have no magic bytes. Brotli input
// is only decoded when it is selected with [WithExtractType].
func isBrotli(header []byte) bool {
	return false
}

// decompressBrotliStream returns an io.Reader that decompresses src with the brotli algorithm.
func decompressBrotliStream(src io.Reader) (io.Reader, error) {
	return brotli.NewReader(src), nil
}
