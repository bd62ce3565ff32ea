// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxMode is the largest permission value a rule may set: the rwx bits
// for user, group and other plus setuid, setgid and sticky.
const MaxMode = 0o7777

// ID is an optional numeric user or group id.
type ID struct {
	Set   bool
	Value uint32
}

// SetID returns an ID that is present with the given value.
func SetID(value uint32) ID {
	return ID{Set: true, Value: value}
}

func (i ID) String() string {
	if !i.Set {
		return "inherit"
	}
	return strconv.FormatUint(uint64(i.Value), 10)
}

// Mode is an optional set of permission bits.
type Mode struct {
	Set  bool
	Bits uint32
}

// SetMode returns a Mode that is present with the given bits.
func SetMode(bits uint32) Mode {
	return Mode{Set: true, Bits: bits & MaxMode}
}

func (m Mode) String() string {
	if !m.Set {
		return "inherit"
	}
	return fmt.Sprintf("%04o", m.Bits)
}

// ParseMode parses an octal permission string. A leading "0o" or "0O"
// is accepted, as is a plain leading zero.
func ParseMode(value string) (Mode, error) {
	digits := strings.TrimSpace(value)
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'o' || digits[1] == 'O') {
		digits = digits[2:]
	}
	if digits == "" {
		return Mode{}, fmt.Errorf("empty mode")
	}
	bits, err := strconv.ParseUint(digits, 8, 32)
	if err != nil {
		return Mode{}, fmt.Errorf("mode %q is not an octal number", value)
	}
	if bits > MaxMode {
		return Mode{}, fmt.Errorf("mode %q exceeds %o", value, MaxMode)
	}
	return SetMode(uint32(bits)), nil
}

// Override is a partial set of ownership and permission attributes.
// Fields that are not Set fall through to whatever an ancestor set.
type Override struct {
	UID      ID
	GID      ID
	DirMode  Mode
	FileMode Mode
}

// Empty reports whether the override sets nothing.
func (o Override) Empty() bool {
	return !o.UID.Set && !o.GID.Set && !o.DirMode.Set && !o.FileMode.Set
}

// Merge returns o with every field that other sets replaced by other's
// value. Unset fields of other leave o untouched.
func (o Override) Merge(other Override) Override {
	if other.UID.Set {
		o.UID = other.UID
	}
	if other.GID.Set {
		o.GID = other.GID
	}
	if other.DirMode.Set {
		o.DirMode = other.DirMode
	}
	if other.FileMode.Set {
		o.FileMode = other.FileMode
	}
	return o
}

func (o Override) String() string {
	return fmt.Sprintf("uid=%s gid=%s dmode=%s fmode=%s", o.UID, o.GID, o.DirMode, o.FileMode)
}

// PatternRule is an override scoped to the direct children of a
// directory whose names match Pattern.
type PatternRule struct {
	Pattern  string
	Override Override
}

// Matches reports whether name matches the rule's shell glob, where
// "[!...]" negates a class. Patterns are validated at load time, so a
// malformed pattern never reaches here; it would simply fail to match.
func (p PatternRule) Matches(name string) bool {
	matched, err := matchGlob(p.Pattern, name)
	return err == nil && matched
}

// Document is the parsed content of one directory's rule file.
type Document struct {
	// Override applies to the directory itself and to every entry
	// below it, unless a deeper directory or pattern sets the same
	// attribute.
	Override Override

	// Patterns are evaluated in declaration order against the names
	// of the directory's direct children. The first match wins.
	Patterns []PatternRule

	// Root is the "/" block. It is only accepted in the tree root's
	// rule file and applies to the root entry alone.
	Root *Override
}

// Empty reports whether the document sets nothing at all.
func (d *Document) Empty() bool {
	return d == nil || (d.Override.Empty() && len(d.Patterns) == 0 && d.Root == nil)
}

// Match returns the override of the first pattern rule matching name.
func (d *Document) Match(name string) (Override, bool) {
	if d == nil {
		return Override{}, false
	}
	for _, rule := range d.Patterns {
		if rule.Matches(name) {
			return rule.Override, true
		}
	}
	return Override{}, false
}

// emptyDocument is shared by every directory without a rule file.
var emptyDocument = &Document{}
