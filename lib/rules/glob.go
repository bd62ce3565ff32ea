// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"path"
	"strings"
)

// matchGlob reports whether name matches pattern using shell
// wildcard rules: "[!...]" is a negated class like "[^...]", a "]"
// right after the opening bracket is a literal member, and a "[" with
// no closing bracket matches itself.
func matchGlob(pattern, name string) (bool, error) {
	return path.Match(translateGlob(pattern), name)
}

// translateGlob rewrites a shell glob into the equivalent path.Match
// pattern.
func translateGlob(pattern string) string {
	if !strings.Contains(pattern, "[") {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '\\':
			b.WriteByte(c)
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteByte('[')
			j := i + 1
			if pattern[j] == '!' || pattern[j] == '^' {
				b.WriteByte('^')
				j++
			}
			if pattern[j] == ']' {
				b.WriteString(`\]`)
				j++
			}
			b.WriteString(pattern[j : end+1])
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// classEnd returns the index of the "]" closing the bracket expression
// that opens at start, or -1 when it is never closed.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
		j++
	}
	// A leading "]" is a member, not the terminator.
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	for ; j < len(pattern); j++ {
		switch pattern[j] {
		case '\\':
			j++
		case ']':
			return j
		}
	}
	return -1
}
