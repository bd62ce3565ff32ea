// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"sync"
	"sync/atomic"
)

// Cache maps normalized relative paths to resolved entries. Entries are
// written once and never evicted; the number of keys is bounded by the
// number of entries in the source tree.
//
// Reads of a cached path take no lock. Two goroutines resolving the
// same uncached path may both compute a result, but only the first
// Store wins and both callers get that value back.
type Cache struct {
	entries sync.Map // string -> Entry
	size    atomic.Int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Load returns the cached entry for name.
func (c *Cache) Load(name string) (Entry, bool) {
	value, ok := c.entries.Load(name)
	if !ok {
		return Entry{}, false
	}
	return value.(Entry), true
}

// Store records entry for name unless a value is already present, and
// returns the value the cache holds afterwards. stored reports whether
// this call inserted it.
func (c *Cache) Store(name string, entry Entry) (actual Entry, stored bool) {
	value, loaded := c.entries.LoadOrStore(name, entry)
	if loaded {
		return value.(Entry), false
	}
	c.size.Add(1)
	return entry, true
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	return int(c.size.Load())
}
