// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// SymlinkPrefix marks a WriteTree value as a symbolic link target.
const SymlinkPrefix = "-> "

// WriteTree creates a fresh directory and populates it from files, then
// returns its absolute path. Keys are slash-separated relative paths.
// A key ending in "/" is a directory. A value starting with
// SymlinkPrefix creates a symbolic link to the rest of the value. Any
// other value is written as file content. Parent directories are
// created as needed.
//
//	source := testutil.WriteTree(t, map[string]string{
//		"perm.yml":        "uid: 10\n",
//		"subdir/":         "",
//		"subdir/file.txt": "hello",
//		"link":            "-> subdir/file.txt",
//	})
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()

	// Sorted so directories named explicitly exist before their files.
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := files[name]
		target := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(name, "/")))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatalf("creating directory %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", name, err)
		}
		if link, ok := strings.CutPrefix(content, SymlinkPrefix); ok {
			if err := os.Symlink(link, target); err != nil {
				t.Fatalf("creating symlink %s: %v", name, err)
			}
			continue
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return root
}

// RequireFUSE skips the test unless a real FUSE mount can be attempted:
// /dev/fuse must be accessible, and unless running as root a fusermount
// helper must be on PATH. Root mounts with mount(2) directly.
func RequireFUSE(t testing.TB) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
	if os.Geteuid() == 0 {
		return
	}
	for _, helper := range []string{"fusermount3", "fusermount"} {
		if _, err := exec.LookPath(helper); err == nil {
			return
		}
	}
	t.Skip("skipping: no fusermount helper on PATH and not root")
}
