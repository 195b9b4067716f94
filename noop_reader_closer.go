// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import "io"

// noopReaderCloser is a struct that implements the io.ReaderCloser interface with a no-op Close method.
// Entries of streaming formats share the reader of the archive, closing an entry must not close it.
type noopReaderCloser struct {
	io.Reader
}

// Close is a no-op method that satisfies the io.Closer interface.
func (n *noopReaderCloser) Close() error {
	return nil
}
