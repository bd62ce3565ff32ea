// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/permfs/permfs/lib/resolver"
)

func TestCheckAccess(t *testing.T) {
	file := resolver.Entry{UID: 10, GID: 20, Mode: 0o640, Kind: resolver.KindFile}
	script := resolver.Entry{UID: 10, GID: 20, Mode: 0o750, Kind: resolver.KindFile}
	locked := resolver.Entry{UID: 10, GID: 20, Mode: 0o000, Kind: resolver.KindDirectory}

	owner := fuse.Owner{Uid: 10, Gid: 99}
	group := fuse.Owner{Uid: 11, Gid: 20}
	other := fuse.Owner{Uid: 12, Gid: 99}
	root := fuse.Owner{Uid: 0, Gid: 0}

	tests := []struct {
		name   string
		entry  resolver.Entry
		caller fuse.Owner
		mask   uint32
		want   syscall.Errno
	}{
		{"existence always", locked, other, unix.F_OK, 0},
		{"owner reads", file, owner, unix.R_OK, 0},
		{"group reads", file, group, unix.R_OK, 0},
		{"other cannot read", file, other, unix.R_OK, syscall.EACCES},
		{"owner cannot execute data", file, owner, unix.X_OK, syscall.EACCES},
		{"owner executes script", script, owner, unix.R_OK | unix.X_OK, 0},
		{"group executes script", script, group, unix.X_OK, 0},
		{"other cannot execute script", script, other, unix.X_OK, syscall.EACCES},
		// Owner class wins even when the group class would grant more.
		{"owner class is exclusive", resolver.Entry{UID: 10, GID: 99, Mode: 0o070}, owner, unix.R_OK, syscall.EACCES},
		{"write is read-only", file, owner, unix.W_OK, syscall.EROFS},
		{"write with read is read-only", file, owner, unix.R_OK | unix.W_OK, syscall.EROFS},
		{"root reads anything", locked, root, unix.R_OK, 0},
		{"root searches any directory", locked, root, unix.X_OK, 0},
		{"root needs an execute bit", file, root, unix.X_OK, syscall.EACCES},
		{"root executes with any bit", resolver.Entry{Mode: 0o001}, root, unix.X_OK, 0},
		{"root cannot write", file, root, unix.W_OK, syscall.EROFS},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := checkAccess(test.entry, test.caller, test.mask); got != test.want {
				t.Errorf("checkAccess(%v, %+v, %#o) = %v, want %v", test.entry, test.caller, test.mask, got, test.want)
			}
		})
	}
}
