// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-argrep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// telemetryRecorder collects the telemetry data emitted by iterators
type telemetryRecorder struct {
	data []*argrep.TelemetryData
}

func (r *telemetryRecorder) hook(_ context.Context, td *argrep.TelemetryData) {
	r.data = append(r.data, td)
}

// iterate opens the archive at input with opts and extracts into a new directory
func iterate(t *testing.T, input string, opts ...argrep.ConfigOption) (argrep.EntryIterator, string) {
	t.Helper()
	dst := t.TempDir()
	e := argrep.NewExtractor(argrep.WithConfig(argrep.NewConfig(opts...)))
	it, err := e.Iterate(context.Background(), input, dst)
	require.NoError(t, err)
	t.Cleanup(func() { it.Close() })
	return it, dst
}

func TestContentsEntries(t *testing.T) {
	rec := &telemetryRecorder{}
	input := writeFile(t, t.TempDir(), "test.tar", packTar(t, []archiveContent{
		dir("sub/"),
		file("sub/a.txt", "alpha"),
		file("empty.txt", ""),
		symlink("link", "sub/a.txt"),
	}))
	it, dst := iterate(t, input, argrep.WithTelemetryHook(rec.hook))

	// directory
	entry, err := it.Next()
	require.NoError(t, err)
	assert.True(t, entry.IsDirectory)
	assert.False(t, entry.Extracted)
	assert.NoError(t, entry.Err)
	assert.DirExists(t, filepath.Join(dst, "sub"))

	// regular file
	entry, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "sub/a.txt", entry.ArchivePath)
	assert.Equal(t, filepath.Join(dst, "sub", "a.txt"), entry.ExtractedPath)
	assert.True(t, entry.Extracted)
	assert.NoError(t, entry.Err)
	assert.NoError(t, entry.Warning)
	assert.EqualValues(t, 5, entry.Size)
	data, err := os.ReadFile(entry.ExtractedPath)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	// empty file
	entry, err = it.Next()
	require.NoError(t, err)
	assert.False(t, entry.Extracted)
	assert.ErrorIs(t, entry.Err, argrep.ErrNoPayload)
	var extractionErr *argrep.ExtractionError
	assert.ErrorAs(t, entry.Err, &extractionErr)
	assert.FileExists(t, entry.ExtractedPath)

	// symlink
	entry, err = it.Next()
	require.NoError(t, err)
	assert.False(t, entry.Extracted)
	assert.ErrorIs(t, entry.Err, argrep.ErrNoPayload)
	fi, err := os.Lstat(entry.ExtractedPath)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	// end of archive is reported repeatedly
	_, err = it.Next()
	require.ErrorIs(t, err, io.EOF)
	_, err = it.Next()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, it.Close())

	require.Len(t, rec.data, 1)
	td := rec.data[0]
	assert.Equal(t, "tar", td.ExtractedType)
	assert.Equal(t, input, td.ArchivePath)
	assert.EqualValues(t, 1, td.ExtractedFiles)
	assert.EqualValues(t, 1, td.ExtractedDirs)
	assert.EqualValues(t, 1, td.ExtractedSymlinks)
	assert.EqualValues(t, 2, td.EmptyEntries)
	assert.EqualValues(t, 5, td.ExtractionSize)
	assert.EqualValues(t, 0, td.ExtractionErrors)
}

func TestContentsDeleteAfterYield(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.zip", packZip(t, []archiveContent{
		file("a.txt", "alpha"),
		file("b.txt", "beta"),
	}))
	it, _ := iterate(t, input, argrep.WithKeepExtracted(false))

	first, err := it.Next()
	require.NoError(t, err)
	assert.FileExists(t, first.ExtractedPath)

	second, err := it.Next()
	require.NoError(t, err)
	assert.NoFileExists(t, first.ExtractedPath)
	assert.FileExists(t, second.ExtractedPath)

	require.NoError(t, it.Close())
	assert.NoFileExists(t, second.ExtractedPath)
}

func TestContentsKeepExtracted(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.zip", packZip(t, []archiveContent{
		file("a.txt", "alpha"),
		file("b.txt", "beta"),
	}))
	it, dst := iterate(t, input)

	for {
		_, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	require.NoError(t, it.Close())
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "b.txt"))
}

func TestContentsLimits(t *testing.T) {
	tests := []struct {
		name      string
		input     func(t *testing.T, dir string) string
		opts      []argrep.ConfigOption
		okEntries int
		want      error
	}{
		{
			name: "max files",
			input: func(t *testing.T, dir string) string {
				return writeFile(t, dir, "test.zip", packZip(t, []archiveContent{file("a.txt", "alpha"), file("b.txt", "beta")}))
			},
			opts:      []argrep.ConfigOption{argrep.WithMaxFiles(1)},
			okEntries: 1,
			want:      argrep.ErrMaxFilesExceeded,
		},
		{
			name: "max extraction size by declared size",
			input: func(t *testing.T, dir string) string {
				return writeFile(t, dir, "test.tar", packTar(t, []archiveContent{file("a.txt", "alpha"), file("b.txt", "beta")}))
			},
			opts:      []argrep.ConfigOption{argrep.WithMaxExtractionSize(7)},
			okEntries: 1,
			want:      argrep.ErrMaxExtractionSizeExceeded,
		},
		{
			name: "max extraction size of a stream",
			input: func(t *testing.T, dir string) string {
				return writeFile(t, dir, "data.txt.gz", compressGzip(t, []byte("more than four bytes")))
			},
			opts:      []argrep.ConfigOption{argrep.WithMaxExtractionSize(4)},
			okEntries: 0,
			want:      argrep.ErrMaxExtractionSizeExceeded,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := &telemetryRecorder{}
			input := test.input(t, t.TempDir())
			it, _ := iterate(t, input, append(test.opts, argrep.WithTelemetryHook(rec.hook))...)

			for i := 0; i < test.okEntries; i++ {
				entry, err := it.Next()
				require.NoError(t, err)
				assert.True(t, entry.Extracted)
			}

			_, err := it.Next()
			require.ErrorIs(t, err, test.want)

			// the iterator stays failed
			_, again := it.Next()
			require.ErrorIs(t, again, test.want)

			require.NoError(t, it.Close())
			require.Len(t, rec.data, 1)
			assert.EqualValues(t, 1, rec.data[0].ExtractionErrors)
		})
	}
}

func TestContentsDenySymlink(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.tar", packTar(t, []archiveContent{
		symlink("link", "a.txt"),
		file("a.txt", "alpha"),
	}))
	it, _ := iterate(t, input, argrep.WithDenySymlinkExtraction(true))

	entry, err := it.Next()
	require.NoError(t, err)
	assert.ErrorIs(t, entry.Err, argrep.ErrUnsupportedFile)
	assert.NoFileExists(t, entry.ExtractedPath)

	entry, err = it.Next()
	require.NoError(t, err)
	assert.True(t, entry.Extracted)
}

func TestContentsPathTraversal(t *testing.T) {
	root := t.TempDir()
	input := writeFile(t, root, "test.zip", packZip(t, []archiveContent{
		file("../evil.txt", "evil"),
		file("good.txt", "good"),
	}))
	dst := filepath.Join(root, "out")
	require.NoError(t, os.Mkdir(dst, 0750))

	e := argrep.NewExtractor()
	it, err := e.Iterate(context.Background(), input, dst)
	require.NoError(t, err)
	defer it.Close()

	entry, err := it.Next()
	require.NoError(t, err)
	assert.False(t, entry.Extracted)
	assert.Error(t, entry.Err)
	assert.NoFileExists(t, filepath.Join(root, "evil.txt"))

	entry, err = it.Next()
	require.NoError(t, err)
	assert.True(t, entry.Extracted)
}

func TestContentsChecksumWarning(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "bad.txt",
		Method:             zip.Store,
		CRC32:              0xdeadbeef,
		CompressedSize64:   5,
		UncompressedSize64: 5,
	})
	require.NoError(t, err)
	_, err = w.Write([]byte("alpha"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	input := writeFile(t, t.TempDir(), "bad.zip", buf.Bytes())
	it, _ := iterate(t, input)

	entry, err := it.Next()
	require.NoError(t, err)
	assert.True(t, entry.Extracted)
	assert.NoError(t, entry.Err)
	var warning *argrep.ExtractionWarning
	require.ErrorAs(t, entry.Warning, &warning)
	assert.ErrorIs(t, entry.Warning, zip.ErrChecksum)
}

func TestContentsCloseEarly(t *testing.T) {
	rec := &telemetryRecorder{}
	input := writeFile(t, t.TempDir(), "test.zip", packZip(t, []archiveContent{
		file("a.txt", "alpha"),
		file("b.txt", "beta"),
	}))
	it, _ := iterate(t, input, argrep.WithTelemetryHook(rec.hook))

	_, err := it.Next()
	require.NoError(t, err)
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, rec.data, 1)
}

func TestContentsCanceledContext(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.zip", packZip(t, []archiveContent{file("a.txt", "alpha")}))
	ctx, cancel := context.WithCancel(context.Background())

	it, err := argrep.NewExtractor().Iterate(ctx, input, t.TempDir())
	require.NoError(t, err)
	defer it.Close()

	cancel()
	_, err = it.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentsDestination(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.zip", packZip(t, []archiveContent{file("a.txt", "alpha")}))
	dst := filepath.Join(t.TempDir(), "missing")

	_, err := argrep.NewExtractor().Iterate(context.Background(), input, dst)
	var openErr *argrep.OpenError
	require.ErrorAs(t, err, &openErr)

	cfg := argrep.NewConfig(argrep.WithCreateDestination(true))
	it, err := argrep.NewExtractor(argrep.WithConfig(cfg)).Iterate(context.Background(), input, dst)
	require.NoError(t, err)
	defer it.Close()
	assert.DirExists(t, dst)
}

func TestContentsRestoresPermissions(t *testing.T) {
	input := writeFile(t, t.TempDir(), "test.tar", packTar(t, []archiveContent{
		{Name: "script.sh", Content: []byte("#!/bin/sh\n"), Mode: 0750},
	}))

	it, _ := iterate(t, input)
	entry, err := it.Next()
	require.NoError(t, err)
	fi, err := os.Stat(entry.ExtractedPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), fi.Mode().Perm())

	it, _ = iterate(t, input, argrep.WithExtractionFlags(argrep.ExtractTime))
	entry, err = it.Next()
	require.NoError(t, err)
	fi, err = os.Stat(entry.ExtractedPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), fi.Mode().Perm())
}
