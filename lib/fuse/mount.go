// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/permfs/permfs/lib/resolver"
)

// Default kernel cache lifetimes. Resolved attributes never change while
// mounted, so these only bound how quickly changes to the source tree
// itself (new files, sizes, timestamps) become visible.
const (
	DefaultEntryTimeout    = 1 * time.Second
	DefaultAttrTimeout     = 1 * time.Second
	DefaultNegativeTimeout = 100 * time.Millisecond
)

// Options configures the FUSE mount.
type Options struct {
	// Source is the absolute path of the directory tree to mirror.
	Source string

	// Mountpoint is an existing directory where the mirror appears.
	Mountpoint string

	// Resolver computes the reported ownership and permissions. Its
	// rule file name is hidden from the mounted view.
	Resolver *resolver.Resolver

	// AllowOther permits users other than the mounting user to access
	// the mount. Requires user_allow_other in /etc/fuse.conf for
	// unprivileged mounts.
	AllowOther bool

	// DefaultPermissions makes the kernel enforce permission checks
	// itself from the reported attributes, in addition to the
	// adapter's Access implementation.
	DefaultPermissions bool

	// Debug enables the go-fuse protocol trace, written to Logger at
	// debug level.
	Debug bool

	// ExtraOptions are passed through to fusermount as -o options.
	ExtraOptions []string

	// EntryTimeout and AttrTimeout are the kernel cache lifetimes for
	// names and attributes. Zero uses the defaults above.
	EntryTimeout time.Duration
	AttrTimeout  time.Duration

	// Metrics is optional.
	Metrics *Metrics

	// Logger receives diagnostic messages. If nil, a logger that only
	// reports errors is used.
	Logger *slog.Logger
}

// MountError reports that the mountpoint could not be used or the kernel
// refused the mount.
type MountError struct {
	Mountpoint string
	Err        error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mounting %s: %v", e.Mountpoint, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// Mount mounts the mirror of options.Source at options.Mountpoint and
// starts serving requests. The caller must call Unmount on the returned
// Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = DefaultEntryTimeout
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = DefaultAttrTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	var sourceStat syscall.Stat_t
	if err := syscall.Stat(options.Source, &sourceStat); err != nil {
		return nil, fmt.Errorf("stat source %s: %w", options.Source, err)
	}
	if sourceStat.Mode&syscall.S_IFMT != syscall.S_IFDIR {
		return nil, fmt.Errorf("source %s: %w", options.Source, syscall.ENOTDIR)
	}

	info, err := os.Stat(options.Mountpoint)
	if err != nil {
		return nil, &MountError{Mountpoint: options.Mountpoint, Err: err}
	}
	if !info.IsDir() {
		return nil, &MountError{Mountpoint: options.Mountpoint, Err: errors.New("not a directory")}
	}

	filesystem := &filesystem{
		source:   options.Source,
		dev:      uint64(sourceStat.Dev),
		resolver: options.Resolver,
		metrics:  options.Metrics,
		logger:   options.Logger,
	}
	root := &node{fs: filesystem}
	rootAttr := filesystem.stableAttr(&sourceStat)

	mountOptions := []string{"ro"}
	if options.DefaultPermissions {
		mountOptions = append(mountOptions, "default_permissions")
	}
	mountOptions = append(mountOptions, options.ExtraOptions...)

	negativeTimeout := DefaultNegativeTimeout
	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &options.EntryTimeout,
		AttrTimeout:     &options.AttrTimeout,
		NegativeTimeout: &negativeTimeout,
		RootStableAttr:  &rootAttr,
		MountOptions: fuse.MountOptions{
			FsName:     options.Source,
			Name:       "permfs",
			AllowOther: options.AllowOther,
			Options:    mountOptions,
			Debug:      options.Debug,
			Logger:     slog.NewLogLogger(options.Logger.Handler(), slog.LevelDebug),
			// Root mounts with mount(2) directly and only falls back to
			// fusermount if that fails.
			DirectMount: os.Geteuid() == 0,
		},
	})
	if err != nil {
		return nil, &MountError{Mountpoint: options.Mountpoint, Err: err}
	}

	options.Logger.Info("permfs mounted",
		"source", options.Source,
		"mountpoint", options.Mountpoint,
		"options", mountOptions,
	)
	return server, nil
}
