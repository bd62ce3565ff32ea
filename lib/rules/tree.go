// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// digestDomainKey separates rule tree digests from any other BLAKE3
// use of the same bytes.
var digestDomainKey = [32]byte{
	'p', 'e', 'r', 'm', 'f', 's', '.', 'r', 'u', 'l', 'e', 's',
	'.', 'd', 'i', 'g', 'e', 's', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Tree holds the rule documents of every directory in a source tree.
// It is built once by Scan and never modified afterwards, so concurrent
// readers need no locking.
type Tree struct {
	documents map[string]*Document
	digest    string

	// Unreadable lists directories whose entries could not be listed
	// during the scan. Their own rule files were still loaded, but
	// nothing below them was visited.
	Unreadable []string
}

// Document returns the rule document for dir, never nil. dir uses the
// same relative form as Loader.
func (t *Tree) Document(dir string) *Document {
	if t == nil {
		return emptyDocument
	}
	if document, ok := t.documents[CleanPath(dir)]; ok {
		return document
	}
	return emptyDocument
}

// Len returns the number of directories with a non-empty rule file.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.documents)
}

// Digest returns a hex BLAKE3 digest over every rule file's path and
// raw bytes, in lexical path order. Two trees with the same digest
// resolve every path identically.
func (t *Tree) Digest() string {
	if t == nil {
		return ""
	}
	return t.digest
}

// Scan walks the source tree under loader.FS and loads every
// directory's rule file. Symbolic links are not followed. Every
// malformed rule file is reported: the returned error aggregates all
// of them, and each one matches ErrConfig.
func Scan(loader *Loader) (*Tree, error) {
	tree := &Tree{documents: make(map[string]*Document)}
	raw := make(map[string][]byte)
	var errs *multierror.Error

	walkErr := afero.Walk(loader.FS, ".", func(name string, info os.FileInfo, err error) error {
		name = CleanPath(filepath.ToSlash(name))
		if err != nil {
			if info == nil {
				if name == "." {
					return err
				}
				// The entry vanished or cannot be stat'd. The
				// mount reports the same error when asked.
				return nil
			}
			// afero.Walk reports a listing failure in a second
			// call for a directory it already visited, so its
			// rule file is loaded by now.
			if info.IsDir() {
				tree.Unreadable = append(tree.Unreadable, name)
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		document, data, loadErr := loader.load(name)
		if loadErr != nil {
			errs = multierror.Append(errs, loadErr)
			return nil
		}
		if data != nil {
			raw[name] = data
			if !document.Empty() {
				tree.documents[name] = document
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.SkipDir) {
		return nil, walkErr
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	tree.digest = digest(raw, loader.Name())
	return tree, nil
}

func digest(raw map[string][]byte, fileName string) string {
	dirs := make([]string, 0, len(raw))
	for dir := range raw {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	hasher, err := blake3.NewKeyed(digestDomainKey[:])
	if err != nil {
		panic("rules: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var length [8]byte
	for _, dir := range dirs {
		name := dir + "/" + fileName
		binary.BigEndian.PutUint64(length[:], uint64(len(name)))
		hasher.Write(length[:])
		hasher.Write([]byte(name))

		data := raw[dir]
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		hasher.Write(length[:])
		hasher.Write(data)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
