// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSecurityCheck(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		cfg         *Config
		prep        func(t *testing.T, dst string)
		expectError bool
	}{
		{
			name: "plain file",
			path: "a/b/c.txt",
		},
		{
			name:        "parent traversal",
			path:        "../c.txt",
			expectError: true,
		},
		{
			name:        "hidden traversal",
			path:        "a/../../c.txt",
			expectError: true,
		},
		{
			name: "resolved traversal stays local",
			path: "a/../c.txt",
		},
		{
			name: "symlink in path",
			path: "link/c.txt",
			prep: func(t *testing.T, dst string) {
				if err := os.Symlink(t.TempDir(), filepath.Join(dst, "link")); err != nil {
					t.Fatalf("failed to create symlink: %s", err)
				}
			},
			expectError: true,
		},
		{
			name: "symlink in path, traversal allowed",
			path: "link/c.txt",
			cfg:  NewConfig(WithInsecureTraverseSymlinks(true)),
			prep: func(t *testing.T, dst string) {
				if err := os.Symlink(t.TempDir(), filepath.Join(dst, "link")); err != nil {
					t.Fatalf("failed to create symlink: %s", err)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if runtime.GOOS == "windows" && test.prep != nil {
				t.Skip("symlinks need privileges on windows")
			}
			dst := t.TempDir()
			if test.prep != nil {
				test.prep(t, dst)
			}
			cfg := test.cfg
			if cfg == nil {
				cfg = NewConfig()
			}
			err := securityCheck(NewTargetDisk(), dst, test.path, cfg)
			if (err != nil) != test.expectError {
				t.Errorf("securityCheck(%s) = %v; want error %v", test.path, err, test.expectError)
			}
		})
	}
}

func TestCreateFile(t *testing.T) {
	dst := t.TempDir()
	cfg := NewConfig()
	td := NewTargetDisk()

	n, err := createFile(td, dst, "sub/dir/file.txt", bytes.NewReader([]byte("hello")), 0640, -1, cfg)
	if err != nil {
		t.Fatalf("createFile() error = %v", err)
	}
	if n != 5 {
		t.Errorf("createFile() wrote %d bytes, want 5", n)
	}
	data, err := os.ReadFile(filepath.Join(dst, "sub", "dir", "file.txt"))
	if err != nil {
		t.Fatalf("cannot read created file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q, want %q", data, "hello")
	}

	// second write without overwrite fails
	if _, err := createFile(td, dst, "sub/dir/file.txt", bytes.NewReader([]byte("x")), 0640, -1, cfg); err == nil {
		t.Errorf("expected error when file exists and overwrite is disabled")
	}

	// overwrite allowed
	cfg = NewConfig(WithOverwrite(true))
	if _, err := createFile(td, dst, "sub/dir/file.txt", bytes.NewReader([]byte("x")), 0640, -1, cfg); err != nil {
		t.Errorf("unexpected error with overwrite enabled: %v", err)
	}

	// size limit
	if _, err := createFile(td, dst, "limited.txt", bytes.NewReader([]byte("1234567890")), 0640, 4, cfg); err == nil {
		t.Errorf("expected error when exceeding the size limit")
	}
}

func TestCreateDirDestination(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "missing")
	td := NewTargetDisk()

	if err := createDir(td, dst, ".", 0750, NewConfig()); err == nil {
		t.Fatalf("expected error for missing destination")
	}
	if err := createDir(td, dst, ".", 0750, NewConfig(WithCreateDestination(true))); err != nil {
		t.Fatalf("createDir() error = %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination was not created: %v", err)
	}
}

func TestCreateSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	tests := []struct {
		name        string
		link        string
		target      string
		cfg         *Config
		expectError bool
	}{
		{name: "relative target", link: "dir/link", target: "../file"},
		{name: "absolute target", link: "link", target: "/etc/passwd", expectError: true},
		{name: "target outside destination", link: "link", target: "../../file", expectError: true},
		{name: "denied", link: "link", target: "file", cfg: NewConfig(WithDenySymlinkExtraction(true)), expectError: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := test.cfg
			if cfg == nil {
				cfg = NewConfig()
			}
			dst := t.TempDir()
			path, err := createSymlink(NewTargetDisk(), dst, test.link, test.target, cfg)
			if (err != nil) != test.expectError {
				t.Fatalf("createSymlink() error = %v, want error %v", err, test.expectError)
			}
			if err != nil {
				return
			}
			stat, err := os.Lstat(path)
			if err != nil {
				t.Fatalf("cannot stat symlink: %v", err)
			}
			if stat.Mode()&os.ModeSymlink == 0 {
				t.Errorf("%s is not a symlink", path)
			}
		})
	}
}

func TestTargetDiskRemove(t *testing.T) {
	dst := t.TempDir()
	td := NewTargetDisk()
	file := filepath.Join(dst, "a", "b.txt")
	if _, err := createFile(td, dst, "a/b.txt", bytes.NewReader([]byte("b")), 0640, -1, NewConfig()); err != nil {
		t.Fatalf("createFile() error = %v", err)
	}

	if err := td.Remove(file); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := td.Remove(file); err != nil {
		t.Errorf("Remove() of missing file should not fail: %v", err)
	}
	if err := td.RemoveAll(filepath.Join(dst, "a")); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a")); !os.IsNotExist(err) {
		t.Errorf("directory still exists after RemoveAll()")
	}
}

// FuzzSecurityCheckDisk is a fuzzer for the securityCheck function
func FuzzSecurityCheckDisk(f *testing.F) {
	f.Add("name")
	f.Add("../name")
	d := NewTargetDisk()
	f.Fuzz(func(t *testing.T, name string) {
		tmp := t.TempDir()
		_ = securityCheck(d, tmp, name, NewConfig())
	})
}
