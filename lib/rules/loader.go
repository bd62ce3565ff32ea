// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/spf13/afero"
)

// DefaultFileName is the rule file name looked up in every directory.
const DefaultFileName = "perm.yml"

// Loader reads rule files from a source tree.
type Loader struct {
	// FS is rooted at the source tree. Directory arguments are
	// slash-separated and relative to it, with "." naming the root.
	FS afero.Fs

	// FileName is the rule file name. Empty means DefaultFileName.
	FileName string
}

// NewLoader returns a Loader over fsys using fileName, or
// DefaultFileName when fileName is empty.
func NewLoader(fsys afero.Fs, fileName string) *Loader {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &Loader{FS: fsys, FileName: fileName}
}

// Name returns the effective rule file name.
func (l *Loader) Name() string {
	if l.FileName == "" {
		return DefaultFileName
	}
	return l.FileName
}

// Load returns the rule document of dir. A directory without a rule
// file yields an empty document and no error.
func (l *Loader) Load(dir string) (*Document, error) {
	document, _, err := l.load(dir)
	return document, err
}

// load also returns the raw file content so Scan can fold it into the
// tree digest. data is nil when the directory has no rule file.
func (l *Loader) load(dir string) (*Document, []byte, error) {
	dir = CleanPath(dir)
	name := path.Join(dir, l.Name())

	info, err := l.FS.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyDocument, nil, nil
		}
		return nil, nil, &ConfigError{Path: name, Err: err}
	}
	if info.IsDir() {
		return nil, nil, &ConfigError{Path: name, Err: fmt.Errorf("rule file is a directory")}
	}

	data, err := afero.ReadFile(l.FS, name)
	if err != nil {
		return nil, nil, &ConfigError{Path: name, Err: err}
	}

	document, err := Parse(name, data)
	if err != nil {
		return nil, nil, err
	}
	if document.Root != nil && dir != "." {
		return nil, nil, &ConfigError{Path: name, Err: fmt.Errorf("%q block is only allowed in the tree root's rule file", keyRoot)}
	}
	if data == nil {
		data = []byte{}
	}
	return document, data, nil
}

// IsRuleFile reports whether a directory entry called name is the rule
// file and so must be hidden from the mounted view.
func (l *Loader) IsRuleFile(name string) bool {
	return name == l.Name()
}

// CleanPath normalizes a path relative to the source tree root: it is
// slash-separated, has no leading slash, and the root is ".".
func CleanPath(name string) string {
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "."
	}
	return cleaned[1:]
}
