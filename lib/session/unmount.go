// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// lazyHelpers are tried in order for a lazy detach.
var lazyHelpers = []string{"fusermount3", "fusermount"}

// LazyUnmount detaches mountpoint even while it is busy. The mount
// disappears from the namespace at once and the kernel releases it when
// the last open file is closed. The superuser detaches with umount2
// directly; other users go through the setuid fusermount helper.
func LazyUnmount(mountpoint string) error {
	var errs error
	if os.Geteuid() == 0 {
		err := unix.Unmount(mountpoint, unix.MNT_DETACH)
		if err == nil {
			return nil
		}
		errs = multierror.Append(errs, fmt.Errorf("umount2 %s: %w", mountpoint, err))
	}
	for _, helper := range lazyHelpers {
		path, err := exec.LookPath(helper)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		output, err := exec.Command(path, "-u", "-z", mountpoint).CombinedOutput()
		if err == nil {
			return nil
		}
		errs = multierror.Append(errs, fmt.Errorf("%s -u -z %s: %w: %s",
			helper, mountpoint, err, bytes.TrimSpace(output)))
	}
	return errs
}
