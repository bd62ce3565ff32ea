// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"fmt"
	"io/fs"
	"syscall"

	"github.com/permfs/permfs/lib/rules"
)

// Kind classifies a source entry for mode selection.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDirectory is a directory. It takes the resolved dmode.
	KindDirectory
	// KindOther covers symlinks, devices, fifos and sockets. Like
	// regular files they take the resolved fmode.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindOf classifies an io/fs mode.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode.IsRegular():
		return KindFile
	}
	return KindOther
}

// KindOfStat classifies a raw st_mode value.
func KindOfStat(mode uint32) Kind {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return KindDirectory
	case syscall.S_IFREG:
		return KindFile
	}
	return KindOther
}

// Entry is the resolved ownership and permission of one path.
type Entry struct {
	UID  uint32
	GID  uint32
	Mode uint32 // permission bits only, at most rules.MaxMode
	Kind Kind
}

// Apply replaces the permission bits of a full st_mode value with the
// resolved ones, keeping the file type bits.
func (e Entry) Apply(mode uint32) uint32 {
	return (mode &^ rules.MaxMode) | (e.Mode & rules.MaxMode)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %d:%d %04o", e.Kind, e.UID, e.GID, e.Mode)
}

// Defaults seed the accumulator before any rule file is applied.
type Defaults struct {
	UID      uint32
	GID      uint32
	DirMode  uint32
	FileMode uint32
}

// StandardDefaults is root ownership with 0755 directories and 0644
// files: what a packaging pipeline expects when no rule says otherwise.
func StandardDefaults() Defaults {
	return Defaults{UID: 0, GID: 0, DirMode: 0o755, FileMode: 0o644}
}

func (d Defaults) override() rules.Override {
	return rules.Override{
		UID:      rules.SetID(d.UID),
		GID:      rules.SetID(d.GID),
		DirMode:  rules.SetMode(d.DirMode),
		FileMode: rules.SetMode(d.FileMode),
	}
}
