// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package search

import "strings"

// Variant selects how a file is searched. The set is closed, every variant has a
// grep tool that reads its encoding.
type Variant int

const (
	// Plain files are searched as they are.
	Plain Variant = iota

	// Xz streams are decoded before searching.
	Xz

	// Lzma streams are decoded before searching.
	Lzma

	// Zstd streams are decoded before searching.
	Zstd

	// Bzip2 streams are decoded before searching.
	Bzip2

	// Gzip streams are decoded before searching.
	Gzip
)

var variants = []struct {
	variant      Variant
	name         string
	tool         string
	contentTypes []string
}{
	{Xz, "xz", "xzgrep", []string{"application/x-xz"}},
	{Lzma, "lzma", "lzgrep", []string{"application/x-lzma"}},
	{Zstd, "zstd", "zstdgrep", []string{"application/zstd", "application/x-zstd"}},
	{Bzip2, "bzip2", "bzgrep", []string{"application/x-bzip2", "application/x-bzip"}},
	{Gzip, "gzip", "zgrep", []string{"application/gzip", "application/x-gzip"}},
}

// VariantFor returns the variant for a MIME type. Parameters of the type are
// ignored, unknown types are [Plain].
func VariantFor(contentType string) Variant {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	for _, v := range variants {
		for _, t := range v.contentTypes {
			if t == ct {
				return v.variant
			}
		}
	}
	return Plain
}

// Tool returns the name of the grep executable for the variant.
func (v Variant) Tool() string {
	for _, e := range variants {
		if e.variant == v {
			return e.tool
		}
	}
	return "grep"
}

// String returns the name of the variant.
func (v Variant) String() string {
	for _, e := range variants {
		if e.variant == v {
			return e.name
		}
	}
	return "plain"
}
