// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse serves a read-only mirror of a source directory tree
// over FUSE, reporting ownership and permission bits computed by a
// [resolver.Resolver] instead of the real ones.
//
// Every source entry is one node. Lookups and attribute requests
// lstat the real entry and overlay the resolved uid, gid and
// permission bits; type, size, timestamps, link count and inode
// number pass through. File contents are read with pread on a real
// file descriptor. The rule file is invisible: it is absent from
// directory listings and looking it up fails with ENOENT.
//
// The mount is always read-only. Write-class requests fail with
// EROFS and are counted in permfs_rejected_writes_total. access(2) is
// answered from the resolved attributes so that permission checks
// reflect the overridden policy rather than the source tree's.
package fuse
