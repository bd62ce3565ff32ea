// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rules loads the per-directory permission rule files that
// drive a permfs mount.
//
// Every directory in a source tree may carry a rule file (perm.yml by
// default). The file is metadata about the tree, not part of it: the
// mount hides it from lookup and directory listings.
//
// # File format
//
//	uid: 10          # whole-directory overrides
//	gid: 10
//	mode: 0755       # shorthand for dmode and fmode
//	dmode: 0775
//	fmode: 0644
//	children:        # ordered; first matching glob wins
//	  "*.bin":
//	    fmode: 0664
//	"/":             # tree root file only: the root entry itself
//	  dmode: 0777
//
// Whole-directory overrides apply to the directory and everything below
// it. Entries under children apply only to direct children whose name
// matches the glob ([path.Match] syntax). Modes are always octal.
//
// An absent field is not zero. It means "inherit", and each of uid,
// gid, dmode and fmode inherits independently of the others. [Override]
// models this with [ID] and [Mode], which carry an explicit Set flag.
//
// # Loading
//
// [Loader] reads one directory's file through an [afero.Fs]. A missing
// file is an empty [Document]; a malformed one is a [*ConfigError].
// [Scan] walks the whole source tree once at mount time and returns an
// immutable [Tree], reporting every malformed file in one error.
package rules
