// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/permfs/permfs/lib/resolver"
)

// checkAccess evaluates an access(2) mask for caller against the
// resolved attributes of an entry, following the classic owner, group,
// other selection. Write access is never granted on a read-only mount.
// The superuser may read anything and may search any directory, but
// needs at least one execute bit to execute a file.
func checkAccess(entry resolver.Entry, caller fuse.Owner, mask uint32) syscall.Errno {
	if mask&unix.W_OK != 0 {
		return syscall.EROFS
	}
	if mask&(unix.R_OK|unix.X_OK) == 0 {
		return 0
	}

	if caller.Uid == 0 {
		if mask&unix.X_OK == 0 || entry.Kind == resolver.KindDirectory || entry.Mode&0o111 != 0 {
			return 0
		}
		return syscall.EACCES
	}

	var granted uint32
	switch {
	case caller.Uid == entry.UID:
		granted = entry.Mode >> 6
	case caller.Gid == entry.GID:
		granted = entry.Mode >> 3
	default:
		granted = entry.Mode
	}
	if mask&^granted&0o7 != 0 {
		return syscall.EACCES
	}
	return 0
}
