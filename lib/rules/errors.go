// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"errors"
	"fmt"
)

// ErrConfig matches every [*ConfigError] under errors.Is.
var ErrConfig = errors.New("invalid rule file")

// ConfigError reports a rule file that exists but cannot be used. It is
// fatal to mount startup: serving a tree with a rule silently dropped
// would report the wrong ownership.
type ConfigError struct {
	// Path is the rule file's path within the source filesystem.
	Path string

	// Line is the 1-based line of the offending YAML node, or 0 when
	// the problem is not tied to a line.
	Line int

	Err error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
