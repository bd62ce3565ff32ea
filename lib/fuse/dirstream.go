// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// hidingDirStream passes a directory stream through in the order the
// source filesystem yields it, dropping entries named hidden. Seeking,
// releasing and syncing are forwarded to the inner stream when it
// supports them, so rewinddir on the mount works like on the source.
type hidingDirStream struct {
	gofuse.DirStream
	hidden string

	pending *fuse.DirEntry
	errno   syscall.Errno
}

var _ gofuse.FileSeekdirer = (*hidingDirStream)(nil)
var _ gofuse.FileReleasedirer = (*hidingDirStream)(nil)
var _ gofuse.FileFsyncdirer = (*hidingDirStream)(nil)

func (s *hidingDirStream) HasNext() bool {
	for s.pending == nil && s.DirStream.HasNext() {
		entry, errno := s.DirStream.Next()
		if errno == 0 && entry.Name == s.hidden {
			continue
		}
		s.pending = &entry
		s.errno = errno
	}
	return s.pending != nil
}

func (s *hidingDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if !s.HasNext() {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry, errno := *s.pending, s.errno
	s.pending, s.errno = nil, 0
	return entry, errno
}

// Seekdir repositions the inner stream. off is a d_off the kernel saw
// in an earlier listing, or 0 to rewind; entries read ahead by HasNext
// are discarded.
func (s *hidingDirStream) Seekdir(ctx context.Context, off uint64) syscall.Errno {
	seeker, ok := s.DirStream.(gofuse.FileSeekdirer)
	if !ok {
		return syscall.ENOTSUP
	}
	s.pending, s.errno = nil, 0
	return seeker.Seekdir(ctx, off)
}

func (s *hidingDirStream) Releasedir(ctx context.Context, releaseFlags uint32) {
	if releaser, ok := s.DirStream.(gofuse.FileReleasedirer); ok {
		releaser.Releasedir(ctx, releaseFlags)
		return
	}
	s.DirStream.Close()
}

func (s *hidingDirStream) Fsyncdir(ctx context.Context, flags uint32) syscall.Errno {
	if syncer, ok := s.DirStream.(gofuse.FileFsyncdirer); ok {
		return syncer.Fsyncdir(ctx, flags)
	}
	return 0
}
