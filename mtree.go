// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// fileExtensionMtree is the file extension for mtree specifications
const fileExtensionMtree = "mtree"

// magicBytesMtree is the signature line of an mtree specification
var magicBytesMtree = [][]byte{
	[]byte("#mtree"),
}

// isMtree checks if the header starts with the mtree signature
func isMtree(data []byte) bool {
	return matchesMagicBytes(data, 0, magicBytesMtree)
}

// openMtree creates a walker over the entries of an mtree specification
func openMtree(in *archiveInput) (archiveWalker, error) {
	s := bufio.NewScanner(in.stream)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &mtreeWalker{s: s, defaults: map[string]string{}}, nil
}

// mtreeWalker parses mtree lines into entries. An mtree file only describes a
// file system, entries carry metadata but no payload.
type mtreeWalker struct {
	s        *bufio.Scanner
	defaults map[string]string
	cwd      []string
}

// Next returns the next described entry
func (m *mtreeWalker) Next() (archiveEntry, error) {
	for {
		line, err := m.nextLine()
		if err != nil {
			return nil, err
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/set":
			for k, v := range parseMtreeKeywords(fields[1:]) {
				m.defaults[k] = v
			}
			continue
		case "/unset":
			for _, k := range fields[1:] {
				if k == "all" {
					clear(m.defaults)
				}
				delete(m.defaults, k)
			}
			continue
		case "..":
			if len(m.cwd) > 0 {
				m.cwd = m.cwd[:len(m.cwd)-1]
			}
			continue
		}

		kw := make(map[string]string, len(m.defaults))
		for k, v := range m.defaults {
			kw[k] = v
		}
		for k, v := range parseMtreeKeywords(fields[1:]) {
			kw[k] = v
		}

		name, err := unvisMtree(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid mtree name %q: %w", fields[0], err)
		}

		// names without a slash are relative to the current directory of the
		// v1 format, directories are entered
		if !strings.Contains(name, "/") {
			name = path.Join(append(append([]string{}, m.cwd...), name)...)
			if kw["type"] == "dir" {
				m.cwd = append(m.cwd, path.Base(name))
			}
		}
		name = strings.TrimPrefix(path.Clean(name), "./")
		if name == "." {
			continue
		}
		return &mtreeEntry{name: name, kw: kw}, nil
	}
}

// nextLine returns the next line that is neither empty nor a comment. Lines ending
// with a backslash are joined with their successor.
func (m *mtreeWalker) nextLine() (string, error) {
	var sb strings.Builder
	for m.s.Scan() {
		line := strings.TrimSpace(m.s.Text())
		if strings.HasSuffix(line, "\\") {
			sb.WriteString(strings.TrimSuffix(line, "\\"))
			sb.WriteString(" ")
			continue
		}
		sb.WriteString(line)
		full := strings.TrimSpace(sb.String())
		sb.Reset()
		if len(full) == 0 || strings.HasPrefix(full, "#") {
			continue
		}
		return full, nil
	}
	if err := m.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// parseMtreeKeywords splits key=value pairs. Keywords without value are stored
// with an empty value.
func parseMtreeKeywords(fields []string) map[string]string {
	kw := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		kw[k] = v
	}
	return kw
}

// unvisMtree decodes the octal escapes (\ooo) and escaped backslashes used in mtree names.
func unvisMtree(s string) (string, error) {
	if !strings.Contains(s, "\\") {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			sb.WriteByte('\\')
			i++
			continue
		}
		if i+3 >= len(s) {
			return "", fmt.Errorf("truncated escape")
		}
		v, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte(v))
		i += 3
	}
	return sb.String(), nil
}

// mtreeEntry is an entry described by an mtree line
type mtreeEntry struct {
	name string
	kw   map[string]string
}

// Name returns the name of the entry
func (m *mtreeEntry) Name() string {
	return m.name
}

// Size returns 0, the described content is not part of the specification
func (m *mtreeEntry) Size() int64 {
	return 0
}

// Mode returns the permission bits and the type of the entry
func (m *mtreeEntry) Mode() os.FileMode {
	var mode fs.FileMode = 0644
	if v, err := strconv.ParseUint(m.kw["mode"], 8, 32); err == nil {
		mode = fs.FileMode(v).Perm()
	}
	switch m.kw["type"] {
	case "dir":
		mode |= fs.ModeDir
	case "link":
		mode |= fs.ModeSymlink
	case "block":
		mode |= fs.ModeDevice
	case "char":
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case "fifo":
		mode |= fs.ModeNamedPipe
	case "socket":
		mode |= fs.ModeSocket
	}
	return mode
}

// Linkname returns the link keyword
func (m *mtreeEntry) Linkname() string {
	name, err := unvisMtree(m.kw["link"])
	if err != nil {
		return ""
	}
	return name
}

// IsRegular returns true for file entries, which is also the default type
func (m *mtreeEntry) IsRegular() bool {
	t := m.kw["type"]
	return t == "" || t == "file"
}

// IsDir returns true for dir entries
func (m *mtreeEntry) IsDir() bool {
	return m.kw["type"] == "dir"
}

// IsSymlink returns true for link entries
func (m *mtreeEntry) IsSymlink() bool {
	return m.kw["type"] == "link"
}

// Open returns an empty reader
func (m *mtreeEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

// AccessTime returns the modification time
func (m *mtreeEntry) AccessTime() time.Time {
	return m.ModTime()
}

// ModTime returns the time keyword ("seconds.nanoseconds")
func (m *mtreeEntry) ModTime() time.Time {
	sec, nsec, _ := strings.Cut(m.kw["time"], ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ns, _ := strconv.ParseInt(nsec, 10, 64)
	return time.Unix(s, ns)
}

// Gid returns the gid keyword
func (m *mtreeEntry) Gid() int {
	gid, err := strconv.Atoi(m.kw["gid"])
	if err != nil {
		return os.Getgid()
	}
	return gid
}

// Uid returns the uid keyword
func (m *mtreeEntry) Uid() int {
	uid, err := strconv.Atoi(m.kw["uid"])
	if err != nil {
		return os.Getuid()
	}
	return uid
}
