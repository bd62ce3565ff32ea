// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import "testing"

func TestPatternRuleMatches(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.bin", "file.bin", true},
		{"*.bin", "file.txt", false},
		{"[!.]*", "file.txt", true},
		{"[!.]*", ".hidden", false},
		{"[!.]*", "!x", true},
		{"[^.]*", "file.txt", true},
		{"[^.]*", ".hidden", false},
		{"[!!]*", "!x", false},
		{"[!a-c]", "b", false},
		{"[!a-c]", "d", true},
		{"[]]", "]", true},
		{"[!]]", "]", false},
		{"[!]]", "a", true},
		{`\[!x]`, "[!x]", true},
		{`\[!x]`, "a", false},
		{"[!x", "[!x", true},
		{"a[", "a[", true},
		{`[\]]`, "]", true},
		{"?.sh", "a.sh", true},
	}
	for _, test := range tests {
		rule := PatternRule{Pattern: test.pattern}
		if got := rule.Matches(test.name); got != test.want {
			t.Errorf("PatternRule{%q}.Matches(%q) = %v, want %v", test.pattern, test.name, got, test.want)
		}
	}
}

func TestTranslateGlob(t *testing.T) {
	tests := map[string]string{
		"plain":   "plain",
		"[!.]*":   "[^.]*",
		"[^.]*":   "[^.]*",
		"[]a]":    `[\]a]`,
		"[!]a]":   `[^\]a]`,
		`\[!x]`:   `\[!x]`,
		"x[!":     `x\[!`,
		"[a][!b]": "[a][^b]",
	}
	for pattern, want := range tests {
		if got := translateGlob(pattern); got != want {
			t.Errorf("translateGlob(%q) = %q, want %q", pattern, got, want)
		}
	}
}
