// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package search_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/hashicorp/go-argrep/search"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
	"go.uber.org/goleak"
)

const sampleText = "first line\nneedle here\r\nnothing\nNEEDLE upper\nlast needle"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("error writing file: %v", err)
	}
	return p
}

func compress(t *testing.T, v search.Variant, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w interface {
		Write([]byte) (int, error)
		Close() error
	}
	var err error
	switch v {
	case search.Xz:
		w, err = xz.NewWriter(&buf)
	case search.Lzma:
		w, err = lzma.NewWriter(&buf)
	case search.Zstd:
		w, err = zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
	case search.Bzip2:
		w, err = bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	case search.Gzip:
		w = gzip.NewWriter(&buf)
	default:
		return data
	}
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestVariantFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        search.Variant
		tool        string
	}{
		{"application/x-xz", search.Xz, "xzgrep"},
		{"application/x-lzma", search.Lzma, "lzgrep"},
		// lzip framing differs from lzma
		{"application/x-lzip", search.Plain, "grep"},
		{"application/zstd", search.Zstd, "zstdgrep"},
		{"application/x-bzip2", search.Bzip2, "bzgrep"},
		{"application/gzip", search.Gzip, "zgrep"},
		{"Application/X-GZIP", search.Gzip, "zgrep"},
		{"text/plain; charset=utf-8", search.Plain, "grep"},
		{"", search.Plain, "grep"},
	}
	for _, tc := range tests {
		t.Run(tc.contentType, func(t *testing.T) {
			v := search.VariantFor(tc.contentType)
			assert.Equal(t, tc.want, v)
			assert.Equal(t, tc.tool, v.Tool())
		})
	}
}

func TestBuiltin(t *testing.T) {
	defer goleak.VerifyNone(t)

	b, err := search.NewBuiltin([]string{"needle"}, false)
	require.NoError(t, err)

	for _, v := range []search.Variant{search.Plain, search.Xz, search.Lzma, search.Zstd, search.Bzip2, search.Gzip} {
		t.Run(v.String(), func(t *testing.T) {
			p := writeFile(t, "data", compress(t, v, []byte(sampleText)))
			matches, err := b.Search(context.Background(), p, v)
			require.NoError(t, err)
			assert.Equal(t, []search.Match{
				{Path: p, Line: 2, Text: "needle here"},
				{Path: p, Line: 5, Text: "last needle"},
			}, matches)
		})
	}
}

func TestBuiltinOptions(t *testing.T) {
	p := writeFile(t, "data.txt", []byte(sampleText))

	b, err := search.NewBuiltin([]string{"^first", "needle"}, true)
	require.NoError(t, err)
	matches, err := b.Search(context.Background(), p, search.Plain)
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, 4, matches[2].Line)

	_, err = search.NewBuiltin([]string{"("}, false)
	require.Error(t, err)

	_, err = search.NewBuiltin(nil, false)
	require.Error(t, err)
}

func TestBuiltinErrors(t *testing.T) {
	b, err := search.NewBuiltin([]string{"x"}, false)
	require.NoError(t, err)

	_, err = b.Search(context.Background(), filepath.Join(t.TempDir(), "missing"), search.Plain)
	require.ErrorIs(t, err, os.ErrNotExist)

	p := writeFile(t, "not-xz", []byte("plain text"))
	_, err = b.Search(context.Background(), p, search.Xz)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Search(ctx, writeFile(t, "a", []byte("x")), search.Plain)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExec(t *testing.T) {
	if _, err := exec.LookPath("grep"); err != nil {
		t.Skip("grep not available")
	}
	p := writeFile(t, "data.txt", []byte("a\nkey: value\nb\n"))
	ctx := context.Background()

	e := &search.Exec{Patterns: []string{"key"}}
	matches, err := e.Search(ctx, p, search.Plain)
	require.NoError(t, err)
	assert.Equal(t, []search.Match{{Path: p, Line: 2, Text: "key: value"}}, matches)

	e = &search.Exec{Patterns: []string{"KEY", "^b"}, Flags: []string{"-i"}}
	matches, err = e.Search(ctx, p, search.Plain)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	e = &search.Exec{Patterns: []string{"absent"}}
	matches, err = e.Search(ctx, p, search.Plain)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = e.Search(ctx, filepath.Join(t.TempDir(), "missing"), search.Plain)
	require.Error(t, err)

	e = &search.Exec{Patterns: []string{"key"}, Tools: map[search.Variant]string{search.Xz: "grep"}}
	matches, err = e.Search(ctx, p, search.Xz)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

type classifierFunc func(string) (string, error)

func (f classifierFunc) Classify(path string) (string, error) {
	return f(path)
}

type recordingBackend struct {
	variants []search.Variant
	err      error
}

func (r *recordingBackend) Search(ctx context.Context, path string, v search.Variant) ([]search.Match, error) {
	r.variants = append(r.variants, v)
	return nil, r.err
}

func TestDispatcher(t *testing.T) {
	classified := 0
	classifier := classifierFunc(func(string) (string, error) {
		classified++
		return "application/x-xz", nil
	})
	backend := &recordingBackend{}
	d := search.NewDispatcher(backend, classifier)

	_, err := d.Search(context.Background(), "a", "application/gzip")
	require.NoError(t, err)
	_, err = d.Search(context.Background(), "b", "")
	require.NoError(t, err)
	assert.Equal(t, []search.Variant{search.Gzip, search.Xz}, backend.variants)
	assert.Equal(t, 1, classified)

	d = search.NewDispatcher(backend, classifierFunc(func(string) (string, error) {
		return "", errors.New("unknown")
	}))
	_, err = d.Search(context.Background(), "c", "")
	require.NoError(t, err)
	assert.Equal(t, search.Plain, backend.variants[2])

	backend.err = errors.New("boom")
	_, err = d.Search(context.Background(), "d", "text/plain")
	require.ErrorContains(t, err, "cannot search d with grep")
}
