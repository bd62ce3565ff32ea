// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// fuseModule is the FUSE binding whose version Full reports.
const fuseModule = "github.com/hanwen/go-fuse/v2"

// Info returns a formatted version string suitable for --version output.
// When the commit was not injected, the VCS stamp recorded by the Go
// toolchain is used instead.
func Info() string {
	commit, dirty := GitCommit, GitDirty == "true"
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			commit, dirty = vcsRevision(info.Settings, commit, dirty)
		}
	}
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("permfs %s (%s%s)", Version, commit, suffix)
}

// Full returns Info plus the Go and FUSE library versions.
func Full() string {
	fuse := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		fuse = dependencyVersion(info.Deps, fuseModule, fuse)
	}
	return fmt.Sprintf("%s\n  Go: %s\n  go-fuse: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), fuse, runtime.GOOS, runtime.GOARCH)
}

func vcsRevision(settings []debug.BuildSetting, commit string, dirty bool) (string, bool) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return commit, dirty
}

func dependencyVersion(deps []*debug.Module, path, fallback string) string {
	for _, dep := range deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		return strings.TrimSpace(dep.Version)
	}
	return fallback
}
