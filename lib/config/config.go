// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/permfs/permfs/lib/resolver"
	"github.com/permfs/permfs/lib/rules"
)

// EnvironmentVariable names the configuration file when --config is not
// given.
const EnvironmentVariable = "PERMFS_CONFIG"

// MaxDebug is the highest debug level: 1 enables debug logging, 2 adds
// the FUSE protocol trace.
const MaxDebug = 2

// Config is the complete mount configuration.
type Config struct {
	// Source is the directory tree to mirror.
	Source string `yaml:"source"`

	// Mountpoint is the existing directory where the mirror appears.
	Mountpoint string `yaml:"mountpoint"`

	// Foreground keeps the process attached to the terminal instead
	// of daemonizing.
	Foreground bool `yaml:"foreground"`

	// Debug is the debug level, 0 through MaxDebug. Debug implies
	// Foreground.
	Debug int `yaml:"debug"`

	// RuleFile is the name of the per-directory rule file.
	// Default: perm.yml
	RuleFile string `yaml:"rule_file"`

	// AllowOther lets users other than the mounting user access the
	// mount.
	AllowOther bool `yaml:"allow_other"`

	// DefaultPermissions asks the kernel to enforce permissions from
	// the reported attributes.
	DefaultPermissions bool `yaml:"default_permissions"`

	// Options are passed through to fusermount unchanged.
	Options []string `yaml:"options"`

	// EntryTimeout and AttrTimeout are the kernel cache lifetimes.
	// Default: 1s each
	EntryTimeout time.Duration `yaml:"entry_timeout"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`

	// MetricsListen is an optional TCP address for /metrics and
	// /debug/pprof.
	MetricsListen string `yaml:"metrics_listen"`

	// Defaults are the attributes reported where no rule applies.
	Defaults DefaultsConfig `yaml:"defaults"`
}

// DefaultsConfig is the root of the inheritance chain. Modes are octal
// strings, like the rule files.
type DefaultsConfig struct {
	UID      uint32 `yaml:"uid"`
	GID      uint32 `yaml:"gid"`
	DirMode  string `yaml:"dmode"`
	FileMode string `yaml:"fmode"`
}

// Default returns the configuration used when no file is given: root
// ownership, 0755 directories and 0644 files.
func Default() *Config {
	return &Config{
		RuleFile:     rules.DefaultFileName,
		EntryTimeout: time.Second,
		AttrTimeout:  time.Second,
		Defaults: DefaultsConfig{
			UID:      0,
			GID:      0,
			DirMode:  "0755",
			FileMode: "0644",
		},
	}
}

// Load loads the file named by PERMFS_CONFIG. Unlike a service daemon,
// permfs is complete without a file, so an unset variable yields
// Default().
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default(). Unknown
// keys are errors. ${VAR} and ${VAR:-default} are expanded in the path
// fields after loading.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// ApplyMountOptions folds -o options into the configuration. The options
// permfs understands are consumed; "ro" is accepted and dropped because
// the mount is always read-only; everything else is kept for fusermount.
func (c *Config) ApplyMountOptions(options []string) error {
	for _, option := range options {
		name, value, hasValue := strings.Cut(option, "=")
		switch name {
		case "":
			continue
		case "allow_other":
			c.AllowOther = true
		case "default_permissions":
			c.DefaultPermissions = true
		case "ro":
		case "rw":
			return fmt.Errorf("mount option %q: permfs mounts are read-only", option)
		case "rule_file":
			if !hasValue || value == "" {
				return fmt.Errorf("mount option rule_file needs a value")
			}
			c.RuleFile = value
		case "entry_timeout", "attr_timeout":
			seconds, err := time.ParseDuration(value + "s")
			if !hasValue || err != nil {
				return fmt.Errorf("mount option %q: want seconds", option)
			}
			if name == "entry_timeout" {
				c.EntryTimeout = seconds
			} else {
				c.AttrTimeout = seconds
			}
		default:
			c.Options = append(c.Options, option)
		}
	}
	return nil
}

// ResolverDefaults converts Defaults for the resolver. Call Validate
// first; invalid modes are reported there.
func (c *Config) ResolverDefaults() (resolver.Defaults, error) {
	dirMode, err := rules.ParseMode(c.Defaults.DirMode)
	if err != nil {
		return resolver.Defaults{}, fmt.Errorf("defaults.dmode: %w", err)
	}
	fileMode, err := rules.ParseMode(c.Defaults.FileMode)
	if err != nil {
		return resolver.Defaults{}, fmt.Errorf("defaults.fmode: %w", err)
	}
	return resolver.Defaults{
		UID:      c.Defaults.UID,
		GID:      c.Defaults.GID,
		DirMode:  dirMode.Bits,
		FileMode: fileMode.Bits,
	}, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Source = expandVars(c.Source, vars)
	c.Mountpoint = expandVars(c.Mountpoint, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Source == "" {
		errs = append(errs, fmt.Errorf("source is required"))
	}
	if c.Mountpoint == "" {
		errs = append(errs, fmt.Errorf("mountpoint is required"))
	}
	if c.Debug < 0 || c.Debug > MaxDebug {
		errs = append(errs, fmt.Errorf("debug must be between 0 and %d, got %d", MaxDebug, c.Debug))
	}
	if c.RuleFile == "" || c.RuleFile == "." || c.RuleFile == ".." || strings.ContainsRune(c.RuleFile, '/') {
		errs = append(errs, fmt.Errorf("rule_file must be a plain file name, got %q", c.RuleFile))
	}
	if c.EntryTimeout < 0 {
		errs = append(errs, fmt.Errorf("entry_timeout must not be negative"))
	}
	if c.AttrTimeout < 0 {
		errs = append(errs, fmt.Errorf("attr_timeout must not be negative"))
	}
	if _, err := rules.ParseMode(c.Defaults.DirMode); err != nil {
		errs = append(errs, fmt.Errorf("defaults.dmode: %w", err))
	}
	if _, err := rules.ParseMode(c.Defaults.FileMode); err != nil {
		errs = append(errs, fmt.Errorf("defaults.fmode: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
