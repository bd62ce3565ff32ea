// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Top-level keys of a rule file.
const (
	keyUID      = "uid"
	keyGID      = "gid"
	keyMode     = "mode"
	keyDirMode  = "dmode"
	keyFileMode = "fmode"
	keyChildren = "children"
	keyRoot     = "/"
)

// Parse decodes the rule file content data. name is used only in error
// messages. The document is decoded from the YAML node tree rather than
// into tagged structs so that absent keys stay distinguishable from
// zero values and children keep their declaration order.
func Parse(name string, data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Path: name, Err: err}
	}

	node := &root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return &Document{}, nil
		}
		node = node.Content[0]
	}
	if node.Kind == 0 || isNull(node) {
		return &Document{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nodeError(name, node, fmt.Errorf("rule file must be a mapping, got %s", kindName(node)))
	}

	parser := &parser{name: name}
	document := &Document{}

	override, err := parser.override(node, func(key *yaml.Node, value *yaml.Node) (bool, error) {
		switch key.Value {
		case keyChildren:
			patterns, err := parser.children(value)
			if err != nil {
				return true, err
			}
			document.Patterns = patterns
			return true, nil
		case keyRoot:
			rootOverride, err := parser.override(value, nil)
			if err != nil {
				return true, err
			}
			document.Root = &rootOverride
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	document.Override = override
	return document, nil
}

type parser struct {
	name string
}

// extraKey lets the caller claim keys beyond the override fields. It
// returns handled=false for keys it does not recognize.
type extraKey func(key *yaml.Node, value *yaml.Node) (handled bool, err error)

// override decodes a mapping of uid/gid/mode/dmode/fmode. "mode" sets
// both permission fields; an explicit dmode or fmode in the same
// mapping wins over it regardless of key order.
func (p *parser) override(node *yaml.Node, extra extraKey) (Override, error) {
	var result Override
	if isNull(node) {
		return result, nil
	}
	if node.Kind != yaml.MappingNode {
		return result, p.errorAt(node, fmt.Errorf("override must be a mapping, got %s", kindName(node)))
	}

	var mode, dirMode, fileMode Mode
	seen := make(map[string]bool, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return result, p.errorAt(key, fmt.Errorf("keys must be scalars"))
		}
		if seen[key.Value] {
			return result, p.errorAt(key, fmt.Errorf("duplicate key %q", key.Value))
		}
		seen[key.Value] = true

		var err error
		switch key.Value {
		case keyUID:
			result.UID, err = p.id(value)
		case keyGID:
			result.GID, err = p.id(value)
		case keyMode:
			mode, err = p.mode(value)
		case keyDirMode:
			dirMode, err = p.mode(value)
		case keyFileMode:
			fileMode, err = p.mode(value)
		default:
			handled := false
			if extra != nil {
				handled, err = extra(key, value)
			}
			if !handled && err == nil {
				err = p.errorAt(key, fmt.Errorf("unknown key %q", key.Value))
			}
		}
		if err != nil {
			return result, err
		}
	}

	result.DirMode = mode
	result.FileMode = mode
	if dirMode.Set {
		result.DirMode = dirMode
	}
	if fileMode.Set {
		result.FileMode = fileMode
	}
	return result, nil
}

func (p *parser) children(node *yaml.Node) ([]PatternRule, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorAt(node, fmt.Errorf("children must be a mapping of glob to override, got %s", kindName(node)))
	}

	patterns := make([]PatternRule, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return nil, p.errorAt(key, fmt.Errorf("child pattern must be a non-empty string"))
		}
		if seen[key.Value] {
			return nil, p.errorAt(key, fmt.Errorf("duplicate child pattern %q", key.Value))
		}
		seen[key.Value] = true

		if _, err := matchGlob(key.Value, ""); err != nil {
			return nil, p.errorAt(key, fmt.Errorf("invalid glob %q: %w", key.Value, err))
		}

		override, err := p.override(value, nil)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, PatternRule{Pattern: key.Value, Override: override})
	}
	return patterns, nil
}

func (p *parser) id(node *yaml.Node) (ID, error) {
	if node.Kind != yaml.ScalarNode {
		return ID{}, p.errorAt(node, fmt.Errorf("id must be a number, got %s", kindName(node)))
	}
	value, err := strconv.ParseUint(node.Value, 10, 32)
	if err != nil {
		return ID{}, p.errorAt(node, fmt.Errorf("id %q is not a non-negative 32-bit number", node.Value))
	}
	return SetID(uint32(value)), nil
}

func (p *parser) mode(node *yaml.Node) (Mode, error) {
	if node.Kind != yaml.ScalarNode {
		return Mode{}, p.errorAt(node, fmt.Errorf("mode must be an octal number, got %s", kindName(node)))
	}
	mode, err := ParseMode(node.Value)
	if err != nil {
		return Mode{}, p.errorAt(node, err)
	}
	return mode, nil
}

func (p *parser) errorAt(node *yaml.Node, err error) error {
	return nodeError(p.name, node, err)
}

func nodeError(name string, node *yaml.Node, err error) error {
	return &ConfigError{Path: name, Line: node.Line, Err: err}
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "nothing"
}
