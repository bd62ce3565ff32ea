// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// The kernel already refuses most writes on an "ro" mount. These
// handlers cover requests that reach the filesystem anyway, so a write
// can never fall through to a go-fuse default.

var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeMknoder = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeRenamer = (*node)(nil)
var _ gofuse.NodeSymlinker = (*node)(nil)
var _ gofuse.NodeLinker = (*node)(nil)
var _ gofuse.NodeSetxattrer = (*node)(nil)
var _ gofuse.NodeRemovexattrer = (*node)(nil)
var _ gofuse.NodeWriter = (*node)(nil)
var _ gofuse.NodeCopyFileRanger = (*node)(nil)
var _ gofuse.NodeAllocater = (*node)(nil)

func (n *node) readOnly(op string) syscall.Errno {
	n.fs.metrics.rejected(op)
	return syscall.EROFS
}

func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return n.readOnly("setattr")
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, n.readOnly("create")
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, n.readOnly("mkdir")
}

func (n *node) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, n.readOnly("mknod")
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.readOnly("unlink")
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.readOnly("rmdir")
}

func (n *node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return n.readOnly("rename")
}

func (n *node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, n.readOnly("symlink")
}

func (n *node) Link(ctx context.Context, target gofuse.InodeEmbedder, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, n.readOnly("link")
}

func (n *node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return n.readOnly("setxattr")
}

func (n *node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return n.readOnly("removexattr")
}

func (n *node) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	return 0, n.readOnly("write")
}

func (n *node) CopyFileRange(ctx context.Context, fhIn gofuse.FileHandle, offIn uint64, out *gofuse.Inode, fhOut gofuse.FileHandle, offOut uint64, length uint64, flags uint64) (uint32, syscall.Errno) {
	return 0, n.readOnly("copy_file_range")
}

func (n *node) Allocate(ctx context.Context, f gofuse.FileHandle, off uint64, size uint64, mode uint32) syscall.Errno {
	return n.readOnly("allocate")
}
