// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/cavaliergopher/cpio"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// testRarArchiveBase64 is a rar5 archive with the entries dir/foo, file, link and dir
var testRarArchiveBase64 = "UmFyIRoHAQAzkrXlCgEFBgAFAQGAgAADk1YoJQIDC50ABJ0ApIMClAgA9IAAAQdkaXIvZm9vCgMTQPjXZsjBSQhNaSAgNCBTZXAgMjAyNCAwODowMzo0NCBDRVNUCpQdu+oiAgMLnQAEnQCkgwI+z7uqgAABBGZpbGUKAxPEDddmxHsQDkRpICAzIFNlcCAyMDI0IDE1OjIzOjE2IENFU1QKe1xvKCwCAxcABAftwwIAAAAAgAABBGxpbmsKAxNM+NdmSCZHGAsFAQAHZGlyL2Zvb0A2hh0bAgMLAAEA7YMBgAABA2RpcgoDE0D412Z533kHHXdWUQMFBAA="

// test7zipArchiveHex is a 7z archive with the entry test/data containing "Hello World!"
var test7zipArchiveHex = "377abcaf271c00049af18e7973000000000000002000000000000000a7e80f9801000b48656c6c6f20576f726c6421000000813307ae0fcef2b20c07c8437f41b1fafddb88b6d7636b8bd58a0e24a2f717a5f156e37f41fd00833298421d5d088c0cf987b30c0473663599e4d2f21cb69620038f10458109662135c3024189f42799abe3227b174a853e824f808b2efaab000017061001096300070b01000123030101055d001000000c760a015bcfa0a70000"

// archiveContent describes an entry of a generated test archive
type archiveContent struct {
	Name     string
	Content  []byte
	Mode     fs.FileMode
	Linkname string
	Dir      bool
}

// file returns a regular file entry
func file(name string, content string) archiveContent {
	return archiveContent{Name: name, Content: []byte(content), Mode: 0640}
}

// dir returns a directory entry
func dir(name string) archiveContent {
	return archiveContent{Name: name, Mode: 0750, Dir: true}
}

// symlink returns a symlink entry
func symlink(name string, target string) archiveContent {
	return archiveContent{Name: name, Linkname: target, Mode: 0777}
}

// packZip creates a zip archive with the given content
func packZip(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, c := range content {
		hdr := &zip.FileHeader{Name: c.Name, Method: zip.Deflate}
		mode := c.Mode
		data := c.Content
		switch {
		case c.Dir:
			mode |= fs.ModeDir
			hdr.Method = zip.Store
		case len(c.Linkname) > 0:
			mode |= fs.ModeSymlink
			data = []byte(c.Linkname)
		}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("error creating zip entry %s: %v", c.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("error writing zip entry %s: %v", c.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("error closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// packTar creates a tar archive with the given content
func packTar(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, c := range content {
		hdr := &tar.Header{
			Name:     c.Name,
			Mode:     int64(c.Mode),
			Size:     int64(len(c.Content)),
			Typeflag: tar.TypeReg,
		}
		switch {
		case c.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		case len(c.Linkname) > 0:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = c.Linkname
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("error writing tar header: %v", err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write(c.Content); err != nil {
				t.Fatalf("error writing tar data: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("error closing tar writer: %v", err)
	}
	return buf.Bytes()
}

// packCpio creates a newc cpio archive with regular files only
func packCpio(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	var buf bytes.Buffer
	cw := cpio.NewWriter(&buf)
	for _, c := range content {
		hdr := &cpio.Header{
			Name: c.Name,
			Mode: cpio.TypeReg | cpio.FileMode(c.Mode.Perm()),
			Size: int64(len(c.Content)),
		}
		if err := cw.WriteHeader(hdr); err != nil {
			t.Fatalf("error writing cpio header: %v", err)
		}
		if _, err := cw.Write(c.Content); err != nil {
			t.Fatalf("error writing cpio data: %v", err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("error closing cpio writer: %v", err)
	}
	return buf.Bytes()
}

// decodeHex decodes a hex encoded test archive
func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("error decoding hex string: %v", err)
	}
	return b
}

// compressGzip compresses data with gzip
func compressGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to gzip writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

// compressXz compresses data with xz
func compressXz(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("error creating xz writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to xz writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing xz writer: %v", err)
	}
	return buf.Bytes()
}

// compressBzip2 compresses data with bzip2
func compressBzip2(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		t.Fatalf("error creating bzip2 writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to bzip2 writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing bzip2 writer: %v", err)
	}
	return buf.Bytes()
}

// compressZstd compresses data with zstd
func compressZstd(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
	if err != nil {
		t.Fatalf("error creating zstd writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to zstd writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing zstd writer: %v", err)
	}
	return buf.Bytes()
}

// compressLZ4 compresses data with lz4
func compressLZ4(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to lz4 writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing lz4 writer: %v", err)
	}
	return buf.Bytes()
}

// compressSnappy compresses data with the snappy framing format
func compressSnappy(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to snappy writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing snappy writer: %v", err)
	}
	return buf.Bytes()
}

// compressZlib compresses data with zlib
func compressZlib(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to zlib writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing zlib writer: %v", err)
	}
	return buf.Bytes()
}

// compressBrotli compresses data with brotli
func compressBrotli(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to brotli writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing brotli writer: %v", err)
	}
	return buf.Bytes()
}

// writeFile writes data to name below dir and returns the path
func writeFile(t *testing.T, dir string, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		t.Fatalf("error creating directory: %v", err)
	}
	if err := os.WriteFile(p, data, 0640); err != nil {
		t.Fatalf("error writing file: %v", err)
	}
	return p
}
