// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for permfs.
//
// A configuration file is optional. It is named by the --config flag
// (via [LoadFile]) or the PERMFS_CONFIG environment variable (via
// [Load]); without either, [Default] applies. There is no discovery of
// files in well-known locations. Unknown keys are rejected so a typo
// cannot silently fall back to a default.
//
// Command-line flags and -o mount options are applied on top of the
// loaded file by the caller; [Config.ApplyMountOptions] consumes the
// options permfs understands and keeps the rest for fusermount.
//
// Variable expansion is performed on the source and mountpoint after
// loading: ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- mount settings, cache timeouts and resolution defaults
//   - [Default] -- root ownership, 0755 directories, 0644 files
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
