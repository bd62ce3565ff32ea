// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// handle is an open source file. Reads use pread so concurrent requests
// on one handle never share a file offset.
type handle struct {
	mu   sync.Mutex
	fd   int
	name string
	fs   *filesystem
}

var _ gofuse.FileHandle = (*handle)(nil)
var _ gofuse.FileReader = (*handle)(nil)
var _ gofuse.FileLseeker = (*handle)(nil)
var _ gofuse.FileGetattrer = (*handle)(nil)
var _ gofuse.FileReleaser = (*handle)(nil)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.fs.metrics.request("read")
	h.mu.Lock()
	fd := h.fd
	h.mu.Unlock()
	if fd < 0 {
		return nil, syscall.EBADF
	}

	n, err := unix.Pread(fd, dest, off)
	if err != nil {
		return nil, gofuse.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Lseek supports SEEK_DATA and SEEK_HOLE so sparse files stay sparse
// when copied out of the mount.
func (h *handle) Lseek(ctx context.Context, off uint64, whence uint32) (uint64, syscall.Errno) {
	h.fs.metrics.request("lseek")
	h.mu.Lock()
	defer h.mu.Unlock()
	position, err := unix.Seek(h.fd, int64(off), int(whence))
	if err != nil {
		return 0, gofuse.ToErrno(err)
	}
	return uint64(position), 0
}

func (h *handle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	h.fs.metrics.request("getattr")
	h.mu.Lock()
	defer h.mu.Unlock()
	var st syscall.Stat_t
	if err := syscall.Fstat(h.fd, &st); err != nil {
		return gofuse.ToErrno(err)
	}
	return h.fs.fill(h.name, &st, &out.Attr)
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return syscall.EBADF
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return gofuse.ToErrno(err)
}
