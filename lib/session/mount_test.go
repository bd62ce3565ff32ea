// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/permfs/permfs/lib/fuse"
	"github.com/permfs/permfs/lib/process"
	"github.com/permfs/permfs/lib/resolver"
	"github.com/permfs/permfs/lib/testutil"
)

// isMounted reports whether mountpoint appears in /proc/self/mounts.
func isMounted(t *testing.T, mountpoint string) bool {
	t.Helper()
	file, err := os.Open("/proc/self/mounts")
	if err != nil {
		t.Fatalf("reading mount table: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 1 && fields[1] == mountpoint {
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading mount table: %v", err)
	}
	return false
}

func TestRunRealMountSignalDetachesAndExitsWithSignalCode(t *testing.T) {
	testutil.RequireFUSE(t)

	source := testutil.WriteTree(t, map[string]string{
		"perm.yml": "uid: 10\ngid: 20\nfmode: 0600\n",
		"file.txt": "content",
	})
	mountpoint, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	registry := prometheus.NewRegistry()
	metrics := fuse.NewMetrics(registry)

	session := newTestSession(t, Options{
		Source:     source,
		Mountpoint: mountpoint,
		Registry:   registry,
		Mount: func(r *resolver.Resolver) (Server, error) {
			server, err := fuse.Mount(fuse.Options{
				Source:     source,
				Mountpoint: mountpoint,
				Resolver:   r,
				Metrics:    metrics,
				Logger:     testLogger(),
			})
			if err != nil {
				return nil, err
			}
			return server, nil
		},
	})

	done := start(context.Background(), session)
	testutil.RequireClosed(t, session.Ready(), testTimeout, "waiting for Serving")

	if !isMounted(t, mountpoint) {
		t.Fatalf("%s is not in the mount table while serving", mountpoint)
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(filepath.Join(mountpoint, "file.txt"), &st); err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if st.Uid != 10 || st.Gid != 20 || st.Mode&0o7777 != 0o600 {
		t.Errorf("file.txt = %d:%d %04o, want 10:20 0600", st.Uid, st.Gid, st.Mode&0o7777)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	outcome := testutil.RequireReceive(t, done, testTimeout, "waiting for Run")
	if outcome.err != nil {
		t.Fatalf("Run: %v", outcome.err)
	}
	if code := outcome.result.ExitCode(); code != process.ExitSignal {
		t.Errorf("ExitCode = %d, want %d", code, process.ExitSignal)
	}
	if isMounted(t, mountpoint) {
		t.Errorf("%s is still mounted after the signal", mountpoint)
	}
	if state := session.State(); state != Terminated {
		t.Errorf("final state = %s, want terminated", state)
	}
}
