// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// permfs mounts a read-only mirror of a directory tree whose reported
// owner, group and permission bits come from per-directory perm.yml
// rule files instead of the source. Contents, sizes, timestamps and
// entry kinds pass through unchanged.
//
// Without -f the command re-executes itself in a new session and exits
// once the background mount is serving. A termination signal unmounts
// and exits 7, so callers can tell an interrupted mount from a clean
// external unmount.
//
// --check loads and validates every rule file and prints the rule
// digest without mounting; --list adds the resolved attributes of every
// entry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/permfs/permfs/lib/config"
	"github.com/permfs/permfs/lib/fuse"
	"github.com/permfs/permfs/lib/process"
	"github.com/permfs/permfs/lib/resolver"
	"github.com/permfs/permfs/lib/rules"
	"github.com/permfs/permfs/lib/session"
	"github.com/permfs/permfs/lib/version"
)

func main() {
	process.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flags holds the parsed command line before it is merged into the
// configuration.
type flags struct {
	set *pflag.FlagSet

	foreground    bool
	debug         int
	options       []string
	configPath    string
	check         bool
	list          bool
	metricsListen string
	version       bool
	help          bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{set: pflag.NewFlagSet("permfs", pflag.ContinueOnError)}
	f.set.SetOutput(stderr)
	f.set.Usage = func() {}
	f.set.BoolVarP(&f.foreground, "foreground", "f", false, "stay in the foreground")
	f.set.CountVarP(&f.debug, "debug", "d", "debug logging; twice for the FUSE protocol trace")
	f.set.StringSliceVarP(&f.options, "options", "o", nil, "mount options (allow_other, default_permissions, rule_file=NAME, others passed to fusermount)")
	f.set.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file (default: $"+config.EnvironmentVariable+")")
	f.set.BoolVar(&f.check, "check", false, "load and validate the rules, print their digest, and exit")
	f.set.BoolVar(&f.list, "list", false, "with --check, also print every resolved entry")
	f.set.StringVar(&f.metricsListen, "metrics-listen", "", "serve /metrics and /debug/pprof on this address")
	f.set.BoolVarP(&f.version, "version", "V", false, "print version and exit")
	f.set.BoolVarP(&f.help, "help", "h", false, "show help")

	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			f.help = true
			return f, nil
		}
		return f, err
	}
	if f.list && !f.check {
		return f, fmt.Errorf("--list requires --check")
	}
	if f.set.NArg() > 2 {
		return f, fmt.Errorf("unexpected argument: %s", f.set.Arg(2))
	}
	return f, nil
}

func printHelp(w io.Writer, set *pflag.FlagSet) {
	fmt.Fprintf(w, `permfs mirrors a directory tree read-only, reporting ownership and
permission bits from per-directory rule files instead of the source.

Usage:
  permfs [flags] <source> <mountpoint>
  permfs --check [--list] <source>

Without -f, permfs detaches once the mount is serving. It exits 7 when a
termination signal ends a serving mount.

Flags:
`)
	set.SetOutput(w)
	set.PrintDefaults()
}

// loadConfig merges the configuration file, positional arguments and
// flags, in that order of increasing precedence.
func loadConfig(f *flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, process.WithCode(process.ExitConfig, err)
	}

	if f.set.NArg() > 0 {
		cfg.Source = f.set.Arg(0)
	}
	if f.set.NArg() > 1 {
		cfg.Mountpoint = f.set.Arg(1)
	}
	if f.foreground {
		cfg.Foreground = true
	}
	if f.debug > 0 {
		cfg.Debug = min(f.debug, config.MaxDebug)
	}
	if cfg.Debug > 0 {
		cfg.Foreground = true
	}
	if f.set.Changed("metrics-listen") {
		cfg.MetricsListen = f.metricsListen
	}
	if err := cfg.ApplyMountOptions(f.options); err != nil {
		return nil, process.WithCode(process.ExitUsage, err)
	}

	if cfg.Source == "" {
		return nil, process.Errorf(process.ExitUsage, "missing source directory")
	}
	if cfg.Mountpoint == "" {
		if !f.check {
			return nil, process.Errorf(process.ExitUsage, "missing mountpoint")
		}
		// --check never mounts.
		cfg.Mountpoint = cfg.Source
	}
	if err := cfg.Validate(); err != nil {
		return nil, process.WithCode(process.ExitConfig, err)
	}
	return cfg, nil
}

// resolveDirectory returns the absolute, symlink-free form of a
// directory argument.
func resolveDirectory(role, name string) (string, error) {
	absolute, err := filepath.Abs(name)
	if err != nil {
		return "", process.Errorf(process.ExitPath, "%s %s: %w", role, name, err)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", process.Errorf(process.ExitPath, "%s %s: %w", role, name, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", process.Errorf(process.ExitPath, "%s %s: %w", role, name, err)
	}
	if !info.IsDir() {
		return "", process.Errorf(process.ExitPath, "%s %s: not a directory", role, name)
	}
	return resolved, nil
}

func newLogger(w io.Writer, debug int, structured bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug > 0 {
		options.Level = slog.LevelDebug
	}
	if structured {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func run(args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "permfs: %v\n\n", err)
		printHelp(stderr, f.set)
		return &process.ExitError{Code: process.ExitUsage}
	}
	if f.help {
		printHelp(stdout, f.set)
		return nil
	}
	if f.version {
		if f.debug > 0 {
			fmt.Fprintln(stdout, version.Full())
		} else {
			fmt.Fprintln(stdout, version.Info())
		}
		return nil
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	source, err := resolveDirectory("source", cfg.Source)
	if err != nil {
		return err
	}
	defaults, err := cfg.ResolverDefaults()
	if err != nil {
		return process.WithCode(process.ExitConfig, err)
	}

	if f.check {
		return check(stdout, source, cfg.RuleFile, defaults, f.list)
	}

	mountpoint, err := resolveDirectory("mountpoint", cfg.Mountpoint)
	if err != nil {
		return err
	}

	ready, daemonized := readinessPipe()
	if !cfg.Foreground && !daemonized {
		return daemonize(args, stderr)
	}

	logger := newLogger(stderr, cfg.Debug, daemonized)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	fuseMetrics := fuse.NewMetrics(registry)

	s, err := session.New(session.Options{
		Source:        source,
		Mountpoint:    mountpoint,
		RuleFileName:  cfg.RuleFile,
		Defaults:      defaults,
		Registry:      registry,
		MetricsListen: cfg.MetricsListen,
		Logger:        logger,
		Mount: func(r *resolver.Resolver) (session.Server, error) {
			server, err := fuse.Mount(fuse.Options{
				Source:             source,
				Mountpoint:         mountpoint,
				Resolver:           r,
				AllowOther:         cfg.AllowOther,
				DefaultPermissions: cfg.DefaultPermissions,
				Debug:              cfg.Debug >= 2,
				ExtraOptions:       cfg.Options,
				EntryTimeout:       cfg.EntryTimeout,
				AttrTimeout:        cfg.AttrTimeout,
				Metrics:            fuseMetrics,
				Logger:             logger,
			})
			if err != nil {
				return nil, err
			}
			return server, nil
		},
	})
	if err != nil {
		return err
	}

	if ready != nil {
		go signalReady(s, ready, logger)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		return err
	}
	if code := result.ExitCode(); code != process.ExitOK {
		return &process.ExitError{Code: code}
	}
	return nil
}

// check loads the rules the way a mount would and reports their digest.
// With list, every entry is printed with its resolved attributes.
func check(w io.Writer, source, ruleFile string, defaults resolver.Defaults, list bool) error {
	fsys := afero.NewBasePathFs(afero.NewOsFs(), source)
	tree, err := rules.Scan(rules.NewLoader(fsys, ruleFile))
	if err != nil {
		return process.WithCode(process.ExitConfig, err)
	}
	fmt.Fprintf(w, "%s: %d directories with rules, digest %s\n", source, tree.Len(), tree.Digest())
	for _, dir := range tree.Unreadable {
		fmt.Fprintf(w, "warning: %s is unreadable; its subtree uses inherited rules\n", dir)
	}
	if !list {
		return nil
	}

	r, err := resolver.New(resolver.Options{
		FS:           fsys,
		Tree:         tree,
		RuleFileName: ruleFile,
		Defaults:     defaults,
	})
	if err != nil {
		return process.WithCode(process.ExitConfig, err)
	}
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	err = r.Walk(func(name string, entry resolver.Entry) error {
		_, err := fmt.Fprintf(table, "%04o\t%d\t%d\t%s\n", entry.Mode, entry.UID, entry.GID, displayName(name))
		return err
	})
	if flushErr := table.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return fmt.Errorf("listing %s: %w", source, err)
	}
	return nil
}

func displayName(name string) string {
	if name == "" || name == "." {
		return "/"
	}
	return "/" + name
}
