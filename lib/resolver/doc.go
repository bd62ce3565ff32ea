// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver computes the owner and permission bits a permfs
// mount reports for each path of its source tree.
//
// Resolution is a fold over the path's ancestor chain. The accumulator
// starts at [Defaults] and, walking from the tree root down to the
// entry's parent, takes every attribute that a directory's rule file
// sets. The parent's first matching child pattern is applied next, and
// a directory entry finally takes its own rule file's settings. Each of
// uid, gid, dmode and fmode folds independently: a level that leaves an
// attribute unset keeps whatever an ancestor chose.
//
// Results are memoized in a [Cache] for the lifetime of the mount. The
// rule tree and the source tree are treated as immutable while mounted,
// so a path always resolves to the same [Entry] and concurrent first
// resolutions of one path are redundant but never inconsistent.
package resolver
