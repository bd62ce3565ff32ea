// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"

	"github.com/permfs/permfs/lib/rules"
)

// memTree builds an in-memory source tree. Keys ending in "/" are
// directories; every other key is a file with the given content.
func memTree(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			if err := fsys.MkdirAll(strings.TrimSuffix(name, "/"), 0o700); err != nil {
				t.Fatalf("MkdirAll(%s): %v", name, err)
			}
			continue
		}
		if err := fsys.MkdirAll(path.Dir(name), 0o700); err != nil {
			t.Fatalf("MkdirAll(%s): %v", path.Dir(name), err)
		}
		if err := afero.WriteFile(fsys, name, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	return fsys
}

func newResolver(t *testing.T, fsys afero.Fs, metrics *Metrics) *Resolver {
	t.Helper()
	tree, err := rules.Scan(rules.NewLoader(fsys, ""))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	resolver, err := New(Options{
		FS:       fsys,
		Tree:     tree,
		Defaults: StandardDefaults(),
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return resolver
}

// want is the expected (uid, gid, mode) of one path.
type want struct {
	uid, gid, mode uint32
}

func checkTree(t *testing.T, resolver *Resolver, expected map[string]want) {
	t.Helper()
	for name, expect := range expected {
		entry, err := resolver.Resolve(name)
		if err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
			continue
		}
		if entry.UID != expect.uid || entry.GID != expect.gid || entry.Mode != expect.mode {
			t.Errorf("Resolve(%q) = %d:%d %04o, want %d:%d %04o",
				name, entry.UID, entry.GID, entry.Mode, expect.uid, expect.gid, expect.mode)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	fsys := memTree(t, map[string]string{
		".hidden.txt":     "",
		"file.txt":        "",
		"subdir/file.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":               {0, 0, 0o755},
		".hidden.txt":     {0, 0, 0o644},
		"file.txt":        {0, 0, 0o644},
		"subdir":          {0, 0, 0o755},
		"subdir/file.txt": {0, 0, 0o644},
	})
}

func TestResolveRootRuleAppliesEverywhere(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":        "uid: 10\ngid: 10\ndmode: 0777\nfmode: 0775\n",
		"file.txt":        "",
		"subdir/file.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":               {10, 10, 0o777},
		"file.txt":        {10, 10, 0o775},
		"subdir":          {10, 10, 0o777},
		"subdir/file.txt": {10, 10, 0o775},
	})
}

func TestResolveOwnerFallsThroughModeOverridden(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":        "uid: 10\ngid: 10\n",
		"subdir/perm.yml": "dmode: 0775\nfmode: 0755\n",
		"subdir/file.txt": "",
		"file.txt":        "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":               {10, 10, 0o755},
		"file.txt":        {10, 10, 0o644},
		"subdir":          {10, 10, 0o775},
		"subdir/file.txt": {10, 10, 0o755},
	})
}

func TestResolveSubdirectoryOverride(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":         "fmode: 0776\n",
		"file.txt":         "",
		"subdir/perm.yml":  "uid: 10\ngid: 10\ndmode: 0775\nfmode: 0765\n",
		"subdir/file.txt":  "",
		"subdir2/perm.yml": "uid: 20\ngid: 20\ndmode: 0757\n",
		"subdir2/file.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":               {0, 0, 0o755},
		"file.txt":        {0, 0, 0o776},
		"subdir":          {10, 10, 0o775},
		"subdir/file.txt": {10, 10, 0o765},
		"subdir2":         {20, 20, 0o757},
		// Owner from subdir2, fmode from the root.
		"subdir2/file.txt": {20, 20, 0o776},
	})
}

func TestResolveGlobs(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml": `
children:
  "*.bin":
    uid: 10
    gid: 10
    fmode: 0664
  subdir2:
    uid: 10
    gid: 10
`,
		"file.txt":          "",
		"file.bin":          "",
		"subdir/file.txt":   "",
		"subdir/file.bin":   "",
		"subdir2/perm.yml":  "uid: 10\ngid: 10\nfmode: 0755\n",
		"subdir2/file.txt":  "",
		"subdir2/file.bin":  "",
		"subdir3/file.txt":  "",
		"subdir3/file.bin/": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":        {0, 0, 0o755},
		"file.txt": {0, 0, 0o644},
		"file.bin": {10, 10, 0o664},
		// Root globs never reach grandchildren.
		"subdir":           {0, 0, 0o755},
		"subdir/file.txt":  {0, 0, 0o644},
		"subdir/file.bin":  {0, 0, 0o644},
		"subdir2":          {10, 10, 0o755},
		"subdir2/file.txt": {10, 10, 0o755},
		"subdir2/file.bin": {10, 10, 0o755},
		"subdir3/file.bin": {0, 0, 0o755},
	})
}

func TestResolveNegatedClassGlob(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":    "children:\n  \"[!.]*\":\n    uid: 10\n    fmode: 0600\n",
		"file.txt":    "",
		"!bang":       "",
		".hidden.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		"file.txt":    {10, 0, 0o600},
		"!bang":       {10, 0, 0o600},
		".hidden.txt": {0, 0, 0o644},
	})
}

func TestResolvePatternDoesNotReachDescendants(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":       "children:\n  a:\n    uid: 42\n    dmode: 0700\n    fmode: 0600\n",
		"a/b/c/file.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		"a":              {42, 0, 0o700},
		"a/b":            {0, 0, 0o755},
		"a/b/c":          {0, 0, 0o755},
		"a/b/c/file.txt": {0, 0, 0o644},
	})
}

func TestResolvePrecedenceWithinOneDirectory(t *testing.T) {
	fsys := memTree(t, map[string]string{
		// Whole-directory settings first, then the first matching
		// glob on top of them.
		"perm.yml": `
uid: 1
gid: 1
fmode: 0640
children:
  "special*":
    uid: 2
  "*":
    uid: 3
    gid: 3
`,
		"special.txt": "",
		"plain.txt":   "",
		// A directory's own file outranks its parent's glob.
		"specialdir/perm.yml": "uid: 4\n",
		"specialdir/file":     "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":               {1, 1, 0o755},
		"special.txt":     {2, 1, 0o640},
		"plain.txt":       {3, 3, 0o640},
		"specialdir":      {4, 1, 0o755},
		"specialdir/file": {4, 1, 0o640},
	})
}

func TestResolveModeFallthrough(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":              "uid: 10\ngid: 10\ndmode: 0775\nfmode: 0664\n",
		"file.txt":              "",
		"both/perm.yml":         "uid: 20\ngid: 20\n",
		"both/file.txt":         "",
		"both/subdir/file.txt":  "",
		"dmode/perm.yml":        "uid: 20\ngid: 20\nfmode: 0600\n",
		"dmode/file.txt":        "",
		"dmode/subdir/file.txt": "",
		"fmode/perm.yml":        "uid: 20\ngid: 20\ndmode: 0777\n",
		"fmode/file.txt":        "",
		"fmode/subdir/file.txt": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":                     {10, 10, 0o775},
		"file.txt":              {10, 10, 0o664},
		"both":                  {20, 20, 0o775},
		"both/file.txt":         {20, 20, 0o664},
		"both/subdir":           {20, 20, 0o775},
		"both/subdir/file.txt":  {20, 20, 0o664},
		"dmode":                 {20, 20, 0o775},
		"dmode/file.txt":        {20, 20, 0o600},
		"dmode/subdir":          {20, 20, 0o775},
		"dmode/subdir/file.txt": {20, 20, 0o600},
		"fmode":                 {20, 20, 0o777},
		"fmode/file.txt":        {20, 20, 0o664},
		"fmode/subdir":          {20, 20, 0o777},
		"fmode/subdir/file.txt": {20, 20, 0o664},
	})
}

func TestResolveOwnerFallthrough(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":         "uid: 10\ngid: 10\n",
		"file.txt":         "",
		"both/perm.yml":    "dmode: 0775\nfmode: 0664\n",
		"both/subdir/file": "",
		"uid/perm.yml":     "gid: 20\ndmode: 0775\nfmode: 0664\n",
		"uid/subdir/file":  "",
		"gid/perm.yml":     "uid: 20\ndmode: 0775\nfmode: 0664\n",
		"gid/subdir/file":  "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":                {10, 10, 0o755},
		"file.txt":         {10, 10, 0o644},
		"both":             {10, 10, 0o775},
		"both/subdir":      {10, 10, 0o775},
		"both/subdir/file": {10, 10, 0o664},
		"uid":              {10, 20, 0o775},
		"uid/subdir":       {10, 20, 0o775},
		"uid/subdir/file":  {10, 20, 0o664},
		"gid":              {20, 10, 0o775},
		"gid/subdir":       {20, 10, 0o775},
		"gid/subdir/file":  {20, 10, 0o664},
	})
}

func TestResolveRootBlock(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":      "uid: 5\n\"/\":\n  uid: 10\n  dmode: 0777\n",
		"subdir/file.x": "",
	})
	checkTree(t, newResolver(t, fsys, nil), map[string]want{
		".":             {10, 0, 0o777},
		"subdir":        {5, 0, 0o755},
		"subdir/file.x": {5, 0, 0o644},
	})
}

func TestResolveCustomDefaults(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml": "gid: 7\n",
		"a/b":      "",
	})
	tree, err := rules.Scan(rules.NewLoader(fsys, ""))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	resolver, err := New(Options{
		FS:       fsys,
		Tree:     tree,
		Defaults: Defaults{UID: 1000, GID: 1000, DirMode: 0o700, FileMode: 0o600},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	checkTree(t, resolver, map[string]want{
		".":   {1000, 7, 0o700},
		"a":   {1000, 7, 0o700},
		"a/b": {1000, 7, 0o600},
	})
}

func TestResolveKindMatchesSource(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "dir", "file"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("dir", filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "perm.yml"), []byte("dmode: 0711\nfmode: 0640\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resolver := newResolver(t, afero.NewBasePathFs(afero.NewOsFs(), root), nil)

	tests := map[string]struct {
		kind Kind
		mode uint32
	}{
		".":        {KindDirectory, 0o711},
		"dir":      {KindDirectory, 0o711},
		"dir/file": {KindFile, 0o640},
		// Symlinks are not followed and take fmode.
		"link": {KindOther, 0o640},
	}
	for name, expect := range tests {
		entry, err := resolver.Resolve(name)
		if err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
			continue
		}
		if entry.Kind != expect.kind || entry.Mode != expect.mode {
			t.Errorf("Resolve(%q) = %v, want %v %04o", name, entry, expect.kind, expect.mode)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":        "uid: 1\n",
		"subdir/perm.yml": "uid: 2\n",
		"file":            "",
	})
	resolver := newResolver(t, fsys, nil)

	for _, name := range []string{"missing", "subdir/missing", "perm.yml", "subdir/perm.yml", "/subdir/perm.yml"} {
		_, err := resolver.Resolve(name)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", name, err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Resolve(%q) error = %v does not match fs.ErrNotExist", name, err)
		}
	}

	if _, err := resolver.ResolveKind("subdir/perm.yml", KindFile); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveKind of a rule file = %v, want ErrNotFound", err)
	}
	if resolver.Cache().Len() != 0 {
		t.Errorf("failed resolutions were cached: %d entries", resolver.Cache().Len())
	}
}

func TestResolveNormalizesPaths(t *testing.T) {
	fsys := memTree(t, map[string]string{"a/b/file": ""})
	resolver := newResolver(t, fsys, nil)

	for _, name := range []string{"a/b/file", "/a/b/file", "a//b/./file", "a/c/../b/file"} {
		if _, err := resolver.Resolve(name); err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
		}
	}
	if got := resolver.Cache().Len(); got != 1 {
		t.Errorf("cache holds %d entries for one path, want 1", got)
	}
}

func TestResolveCachesAndCountsMetrics(t *testing.T) {
	fsys := memTree(t, map[string]string{"perm.yml": "uid: 3\n", "file": ""})
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	resolver := newResolver(t, fsys, metrics)

	first, err := resolver.Resolve("file")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Once cached, changes to the source are not observed.
	if err := fsys.Remove("file"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	second, err := resolver.Resolve("file")
	if err != nil {
		t.Fatalf("Resolve after remove: %v", err)
	}
	if first != second {
		t.Errorf("cached entry changed: %v then %v", first, second)
	}

	if _, err := resolver.Resolve("missing"); err == nil {
		t.Fatal("expected missing path to fail")
	}

	if got := testutil.ToFloat64(metrics.resolutions.WithLabelValues(resultOK)); got != 1 {
		t.Errorf("ok resolutions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.resolutions.WithLabelValues(resultNotFound)); got != 1 {
		t.Errorf("not_found resolutions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.cacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.cacheEntries); got != 1 {
		t.Errorf("cache entries = %v, want 1", got)
	}
}

func TestResolveConcurrentFirstResolution(t *testing.T) {
	files := map[string]string{"perm.yml": "children:\n  \"*.sh\":\n    fmode: 0755\n"}
	for i := 0; i < 32; i++ {
		files[path.Join("dir", string(rune('a'+i%26))+strings.Repeat("x", i/26)+".sh")] = ""
	}
	fsys := memTree(t, files)
	resolver := newResolver(t, fsys, nil)

	names := make([]string, 0, len(files))
	for name := range files {
		if name != "perm.yml" {
			names = append(names, name)
		}
	}

	var wg sync.WaitGroup
	results := make([][]Entry, 8)
	for worker := range results {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for _, name := range names {
				entry, err := resolver.Resolve(name)
				if err != nil {
					t.Errorf("Resolve(%q): %v", name, err)
					return
				}
				results[worker] = append(results[worker], entry)
			}
		}(worker)
	}
	wg.Wait()

	for worker := 1; worker < len(results); worker++ {
		for i := range results[0] {
			if results[worker][i] != results[0][i] {
				t.Fatalf("worker %d saw %v for %s, worker 0 saw %v",
					worker, results[worker][i], names[i], results[0][i])
			}
		}
	}
	if got := resolver.Cache().Len(); got != len(names) {
		t.Errorf("cache holds %d entries, want %d", got, len(names))
	}
}

func TestWalkSkipsRuleFiles(t *testing.T) {
	fsys := memTree(t, map[string]string{
		"perm.yml":     "uid: 1\n",
		"a/perm.yml":   "gid: 2\n",
		"a/file":       "",
		"b/c/file.txt": "",
	})
	resolver := newResolver(t, fsys, nil)

	var names []string
	err := resolver.Walk(func(name string, entry Entry) error {
		names = append(names, name)
		if entry.UID != 1 {
			t.Errorf("%s resolved uid %d, want 1", name, entry.UID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	sort.Strings(names)
	if got := strings.Join(names, " "); got != ". a a/file b b/c b/c/file.txt" {
		t.Errorf("walked %q", got)
	}
}

func TestAncestors(t *testing.T) {
	tests := map[string]string{
		".":     ".",
		"a":     ". a",
		"a/b":   ". a a/b",
		"a/b/c": ". a a/b a/b/c",
	}
	for dir, expect := range tests {
		if got := strings.Join(ancestors(dir), " "); got != expect {
			t.Errorf("ancestors(%q) = %q, want %q", dir, got, expect)
		}
	}
}

func TestEntryApplyKeepsTypeBits(t *testing.T) {
	entry := Entry{Mode: 0o4750}
	if got := entry.Apply(0o100644); got != 0o104750 {
		t.Errorf("Apply(0100644) = %o, want 0104750", got)
	}
	entry = Entry{Mode: 0o755}
	if got := entry.Apply(0o047777); got != 0o040755 {
		t.Errorf("Apply(0047777) = %o, want 0040755", got)
	}
}
