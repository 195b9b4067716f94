// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Builtin searches files with regular expressions in process. Compressed variants
// are decoded on the fly.
type Builtin struct {
	patterns []*regexp.Regexp
}

// NewBuiltin compiles patterns. With ignoreCase the patterns match case
// insensitively.
func NewBuiltin(patterns []string, ignoreCase bool) (*Builtin, error) {
	if len(patterns) == 0 {
		return nil, errors.New("no search pattern")
	}
	b := &Builtin{}
	for _, p := range patterns {
		if ignoreCase {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern %q: %w", p, err)
		}
		b.patterns = append(b.patterns, re)
	}
	return b, nil
}

// Search implements [Backend].
func (b *Builtin) Search(ctx context.Context, path string, v Variant) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decode(f, v)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s stream: %w", v, err)
	}
	defer closeFn()

	var matches []Match
	br := bufio.NewReader(r)
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			text = strings.TrimRight(text, "\r\n")
			if b.match(text) {
				matches = append(matches, Match{Path: path, Line: line, Text: text})
			}
		}
		if err == io.EOF {
			return matches, nil
		}
		if err != nil {
			return matches, err
		}
	}
}

func (b *Builtin) match(s string) bool {
	for _, re := range b.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// decode wraps r with the decoder of v.
func decode(r io.Reader, v Variant) (io.Reader, func(), error) {
	noop := func() {}
	switch v {
	case Xz:
		d, err := xz.NewReader(r)
		return d, noop, err
	case Lzma:
		d, err := lzma.NewReader(r)
		return d, noop, err
	case Zstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, noop, err
		}
		return d, d.Close, nil
	case Bzip2:
		d, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, noop, err
		}
		return d, func() { d.Close() }, nil
	case Gzip:
		d, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return d, func() { d.Close() }, nil
	default:
		return r, noop, nil
	}
}
