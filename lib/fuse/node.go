// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/permfs/permfs/lib/resolver"
	"github.com/permfs/permfs/lib/rules"
)

// filesystem is the state shared by every node of one mount.
type filesystem struct {
	source   string
	dev      uint64
	resolver *resolver.Resolver
	metrics  *Metrics
	logger   *slog.Logger
}

// abs returns the source path of the cleaned relative path name.
func (f *filesystem) abs(name string) string {
	return filepath.Join(f.source, filepath.FromSlash(name))
}

// stableAttr derives the inode identity from the source entry. The
// source root's device is masked out so a tree on a single filesystem
// keeps its real inode numbers.
func (f *filesystem) stableAttr(st *syscall.Stat_t) gofuse.StableAttr {
	swapped := (uint64(st.Dev) << 32) | (uint64(st.Dev) >> 32)
	swappedRoot := (f.dev << 32) | (f.dev >> 32)
	return gofuse.StableAttr{
		Mode: uint32(st.Mode) & syscall.S_IFMT,
		Ino:  (swapped ^ swappedRoot) ^ st.Ino,
		Gen:  1,
	}
}

// resolve returns the resolved entry for name, whose real attributes
// are st.
func (f *filesystem) resolve(name string, st *syscall.Stat_t) (resolver.Entry, syscall.Errno) {
	entry, err := f.resolver.ResolveKind(name, resolver.KindOfStat(uint32(st.Mode)))
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			return resolver.Entry{}, syscall.ENOENT
		}
		f.metrics.resolveError()
		f.logger.Error("resolving entry failed", "path", name, "error", err)
		return resolver.Entry{}, syscall.EIO
	}
	return entry, 0
}

// fill copies the real attributes st into out and overlays the
// resolved owner and permission bits.
func (f *filesystem) fill(name string, st *syscall.Stat_t, out *fuse.Attr) syscall.Errno {
	entry, errno := f.resolve(name, st)
	if errno != 0 {
		return errno
	}
	out.FromStat(st)
	out.Owner = fuse.Owner{Uid: entry.UID, Gid: entry.GID}
	out.Mode = entry.Apply(out.Mode)
	return 0
}

// node is one source entry: a directory, file, symlink or special file.
type node struct {
	gofuse.Inode
	fs *filesystem
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeOpendirer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReadlinker = (*node)(nil)
var _ gofuse.NodeGetxattrer = (*node)(nil)
var _ gofuse.NodeListxattrer = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)
var _ gofuse.NodeAccesser = (*node)(nil)

// relative returns the node's cleaned path relative to the source root.
func (n *node) relative() string {
	return rules.CleanPath(n.Path(nil))
}

func (n *node) lstat(name string) (*syscall.Stat_t, syscall.Errno) {
	var st syscall.Stat_t
	if err := syscall.Lstat(n.fs.abs(name), &st); err != nil {
		return nil, gofuse.ToErrno(err)
	}
	return &st, 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	n.fs.metrics.request("lookup")
	child := path.Join(n.relative(), name)
	if n.fs.resolver.IsRuleFile(child) {
		return nil, syscall.ENOENT
	}

	st, errno := n.lstat(child)
	if errno != 0 {
		return nil, errno
	}
	if errno := n.fs.fill(child, st, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.NewInode(ctx, &node{fs: n.fs}, n.fs.stableAttr(st)), 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := f.(*handle); ok {
		return h.Getattr(ctx, out)
	}
	n.fs.metrics.request("getattr")
	name := n.relative()
	st, errno := n.lstat(name)
	if errno != 0 {
		return errno
	}
	return n.fs.fill(name, st, &out.Attr)
}

func (n *node) Opendir(ctx context.Context) syscall.Errno {
	n.fs.metrics.request("opendir")
	fd, err := unix.Open(n.fs.abs(n.relative()), unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return gofuse.ToErrno(err)
	}
	unix.Close(fd)
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	n.fs.metrics.request("readdir")
	stream, errno := gofuse.NewLoopbackDirStream(n.fs.abs(n.relative()))
	if errno != 0 {
		return nil, errno
	}
	return &hidingDirStream{DirStream: stream, hidden: n.fs.resolver.RuleFileName()}, 0
}

// writeFlags are the open flags that would modify the file.
const writeFlags = unix.O_WRONLY | unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC | unix.O_APPEND

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&writeFlags != 0 {
		n.fs.metrics.rejected("open")
		return nil, 0, syscall.EROFS
	}
	n.fs.metrics.request("open")
	name := n.relative()
	fd, err := unix.Open(n.fs.abs(name), unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, 0, gofuse.ToErrno(err)
	}
	return &handle{fd: fd, name: name, fs: n.fs}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	n.fs.metrics.request("readlink")
	source := n.fs.abs(n.relative())
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)
		length, err := unix.Readlink(source, buf)
		if err != nil {
			return nil, gofuse.ToErrno(err)
		}
		if length < len(buf) {
			return buf[:length], 0
		}
	}
}

func (n *node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	n.fs.metrics.request("getxattr")
	size, err := unix.Lgetxattr(n.fs.abs(n.relative()), attr, dest)
	return uint32(size), gofuse.ToErrno(err)
}

func (n *node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	n.fs.metrics.request("listxattr")
	size, err := unix.Llistxattr(n.fs.abs(n.relative()), dest)
	return uint32(size), gofuse.ToErrno(err)
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.fs.metrics.request("statfs")
	var st syscall.Statfs_t
	if err := syscall.Statfs(n.fs.source, &st); err != nil {
		return gofuse.ToErrno(err)
	}
	out.FromStatfsT(&st)
	return 0
}

func (n *node) Access(ctx context.Context, mask uint32) syscall.Errno {
	n.fs.metrics.request("access")
	name := n.relative()
	st, errno := n.lstat(name)
	if errno != 0 {
		return errno
	}
	entry, errno := n.fs.resolve(name, st)
	if errno != 0 {
		return errno
	}
	caller, ok := fuse.FromContext(ctx)
	if !ok {
		return syscall.EACCES
	}
	return checkAccess(entry, caller.Owner, mask)
}
