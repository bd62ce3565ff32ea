// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the permfs
// binary.
//
// Two package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//
// For example:
//
//	go build -ldflags "-X github.com/permfs/permfs/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/permfs
//
// Without them, the VCS stamp the Go toolchain embeds is used. [Info]
// is the one-line --version output and [Full] adds the Go toolchain and
// go-fuse versions.
package version
