// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/permfs/permfs/lib/rules"
)

// ErrNotFound reports a path that does not exist in the source tree,
// or that names a rule file. It matches fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("resolver: %w", fs.ErrNotExist)

// Options configures a Resolver.
type Options struct {
	// FS is rooted at the source tree.
	FS afero.Fs

	// Tree holds every directory's rule document. It must have been
	// scanned from the same source tree as FS.
	Tree *rules.Tree

	// RuleFileName is the rule file name, hidden from resolution.
	// Empty means rules.DefaultFileName.
	RuleFileName string

	// Defaults seed every resolution.
	Defaults Defaults

	// Cache memoizes results. If nil, a new cache is created.
	Cache *Cache

	// Metrics is optional.
	Metrics *Metrics
}

// Resolver computes resolved entries for paths of a source tree. It is
// safe for concurrent use.
type Resolver struct {
	fs           afero.Fs
	tree         *rules.Tree
	ruleFileName string
	defaults     rules.Override
	cache        *Cache
	metrics      *Metrics
}

// New returns a Resolver for options.
func New(options Options) (*Resolver, error) {
	if options.FS == nil {
		return nil, fmt.Errorf("resolver: filesystem is required")
	}
	if options.Tree == nil {
		return nil, fmt.Errorf("resolver: rule tree is required")
	}
	if options.RuleFileName == "" {
		options.RuleFileName = rules.DefaultFileName
	}
	if options.Cache == nil {
		options.Cache = NewCache()
	}
	return &Resolver{
		fs:           options.FS,
		tree:         options.Tree,
		ruleFileName: options.RuleFileName,
		defaults:     options.Defaults.override(),
		cache:        options.Cache,
		metrics:      options.Metrics,
	}, nil
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve stats name in the source tree and returns its resolved
// entry. name is relative to the tree root; "", "." and "/" all name
// the root. Symbolic links are not followed.
func (r *Resolver) Resolve(name string) (Entry, error) {
	name = rules.CleanPath(name)
	if entry, ok := r.cache.Load(name); ok {
		r.metrics.hit()
		return entry, nil
	}
	if r.IsRuleFile(name) {
		r.metrics.resolved(resultNotFound)
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	info, err := r.lstat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.metrics.resolved(resultNotFound)
			return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		r.metrics.resolved(resultError)
		return Entry{}, fmt.Errorf("stat %s: %w", name, err)
	}

	return r.store(name, KindOf(info.Mode())), nil
}

// ResolveKind resolves name for a caller that has already stat'd the
// entry and knows its kind, avoiding a second stat.
func (r *Resolver) ResolveKind(name string, kind Kind) (Entry, error) {
	name = rules.CleanPath(name)
	if entry, ok := r.cache.Load(name); ok {
		r.metrics.hit()
		return entry, nil
	}
	if r.IsRuleFile(name) {
		r.metrics.resolved(resultNotFound)
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return r.store(name, kind), nil
}

// IsRuleFile reports whether the final component of the cleaned
// relative path name is the rule file.
func (r *Resolver) IsRuleFile(name string) bool {
	return name != "." && path.Base(name) == r.ruleFileName
}

// RuleFileName returns the rule file name hidden by this resolver.
func (r *Resolver) RuleFileName() string {
	return r.ruleFileName
}

func (r *Resolver) store(name string, kind Kind) Entry {
	entry, stored := r.cache.Store(name, r.compute(name, kind))
	if stored {
		r.metrics.resolved(resultOK)
		r.metrics.stored()
	}
	return entry
}

// compute folds the ancestor chain of name into a resolved entry.
func (r *Resolver) compute(name string, kind Kind) Entry {
	accumulator := r.defaults

	if name == "." {
		root := r.tree.Document(".")
		accumulator = accumulator.Merge(root.Override)
		if root.Root != nil {
			accumulator = accumulator.Merge(*root.Root)
		}
		return finish(accumulator, kind)
	}

	parent, base := path.Split(name)
	parent = strings.TrimSuffix(parent, "/")
	if parent == "" {
		parent = "."
	}

	for _, dir := range ancestors(parent) {
		accumulator = accumulator.Merge(r.tree.Document(dir).Override)
	}
	if pattern, ok := r.tree.Document(parent).Match(base); ok {
		accumulator = accumulator.Merge(pattern)
	}
	if kind == KindDirectory {
		accumulator = accumulator.Merge(r.tree.Document(name).Override)
	}
	return finish(accumulator, kind)
}

func finish(accumulator rules.Override, kind Kind) Entry {
	mode := accumulator.FileMode.Bits
	if kind == KindDirectory {
		mode = accumulator.DirMode.Bits
	}
	return Entry{
		UID:  accumulator.UID.Value,
		GID:  accumulator.GID.Value,
		Mode: mode,
		Kind: kind,
	}
}

// ancestors returns dir and every directory above it, root first:
// "a/b" yields ".", "a", "a/b".
func ancestors(dir string) []string {
	chain := []string{"."}
	if dir == "." {
		return chain
	}
	for i := 0; i < len(dir); i++ {
		if dir[i] == '/' {
			chain = append(chain, dir[:i])
		}
	}
	return append(chain, dir)
}

func (r *Resolver) lstat(name string) (os.FileInfo, error) {
	if lstater, ok := r.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return r.fs.Stat(name)
}

// Walk resolves every entry of the source tree, root first, in lexical
// order within each directory. Rule files are skipped and symbolic
// links are not followed. Walk stops at the first error fn returns.
func (r *Resolver) Walk(fn func(name string, entry Entry) error) error {
	return afero.Walk(r.fs, ".", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name = rules.CleanPath(filepath.ToSlash(name))
		if r.IsRuleFile(name) {
			return nil
		}
		entry, err := r.ResolveKind(name, KindOf(info.Mode()))
		if err != nil {
			return err
		}
		return fn(name, entry)
	})
}
