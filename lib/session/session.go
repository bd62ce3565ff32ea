// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/permfs/permfs/lib/process"
	"github.com/permfs/permfs/lib/resolver"
	"github.com/permfs/permfs/lib/rules"
)

// Server is a running mount. *fuse.Server from go-fuse satisfies it.
type Server interface {
	// Wait blocks until the kernel connection closes, which happens
	// after Unmount or an external unmount.
	Wait()
	// Unmount detaches the mount and waits for in-flight requests.
	Unmount() error
}

// MountFunc establishes the kernel mount for a resolver.
type MountFunc func(r *resolver.Resolver) (Server, error)

// DefaultSignals end a serving session.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// Default unmount retry policy, applied before falling back to a lazy
// detach.
const (
	DefaultUnmountRetries = 3
	DefaultUnmountBackoff = 200 * time.Millisecond
)

// Options configures a Session.
type Options struct {
	// Source is the absolute path of the mirrored tree.
	Source string

	// Mountpoint is used for logging and the lazy-detach fallback.
	Mountpoint string

	// RuleFileName is the rule file name. Empty means
	// rules.DefaultFileName.
	RuleFileName string

	// Defaults seed every resolution.
	Defaults resolver.Defaults

	// Mount establishes the kernel mount.
	Mount MountFunc

	// Registry receives resolver and session metrics. If nil, no
	// metrics are recorded and MetricsListen must be empty.
	Registry *prometheus.Registry

	// MetricsListen, if set, is the TCP address serving /metrics and
	// /debug/pprof while the mount is up.
	MetricsListen string

	// Signals end a serving session. Nil means DefaultSignals.
	Signals []os.Signal

	// UnmountRetries and UnmountBackoff bound the retries of a failed
	// unmount, typically EBUSY from open files. Zero values use the
	// defaults above.
	UnmountRetries int
	UnmountBackoff time.Duration

	// LazyUnmount is the last resort after the retries. Nil means
	// LazyUnmount from this package.
	LazyUnmount func(mountpoint string) error

	// Logger is required.
	Logger *slog.Logger
}

// Reason says why a serving session ended.
type Reason int

const (
	// ReasonSignal: a termination signal arrived.
	ReasonSignal Reason = iota + 1
	// ReasonUnmounted: the mount went away without a signal, for
	// example fusermount -u run by an operator.
	ReasonUnmounted
	// ReasonCanceled: the context passed to Run was canceled.
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonSignal:
		return "signal"
	case ReasonUnmounted:
		return "unmounted"
	case ReasonCanceled:
		return "canceled"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Result describes a session that reached Serving and then ended.
type Result struct {
	Reason Reason
	// Signal is set when Reason is ReasonSignal.
	Signal os.Signal
	// RuleDigest identifies the rule set that was served.
	RuleDigest string
}

// ExitCode is process.ExitSignal after a signal and process.ExitOK
// otherwise.
func (r Result) ExitCode() int {
	if r.Reason == ReasonSignal {
		return process.ExitSignal
	}
	return process.ExitOK
}

// errUnmounted ends the actor group when the kernel connection closes.
var errUnmounted = errors.New("mount connection closed")

// Session drives one mount through its lifecycle. A Session runs once.
type Session struct {
	options Options
	state   atomic.Int32
	ready   chan struct{}

	infoMu   sync.Mutex
	infoAddr net.Addr
}

// New validates options and returns a session in the Unmounted state.
func New(options Options) (*Session, error) {
	if options.Source == "" {
		return nil, fmt.Errorf("session: source is required")
	}
	if options.Mount == nil {
		return nil, fmt.Errorf("session: mount function is required")
	}
	if options.Logger == nil {
		return nil, fmt.Errorf("session: logger is required")
	}
	if options.MetricsListen != "" && options.Registry == nil {
		return nil, fmt.Errorf("session: metrics listener requires a registry")
	}
	if options.RuleFileName == "" {
		options.RuleFileName = rules.DefaultFileName
	}
	if options.Signals == nil {
		options.Signals = DefaultSignals
	}
	if options.UnmountRetries == 0 {
		options.UnmountRetries = DefaultUnmountRetries
	}
	if options.UnmountBackoff == 0 {
		options.UnmountBackoff = DefaultUnmountBackoff
	}
	if options.LazyUnmount == nil {
		options.LazyUnmount = LazyUnmount
	}

	s := &Session{options: options, ready: make(chan struct{})}
	if options.Registry != nil {
		options.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "permfs",
			Name:      "session_state",
			Help:      "Current lifecycle state: 0 unmounted, 1 mounting, 2 serving, 3 unmounting, 4 terminated.",
		}, func() float64 { return float64(s.State()) }))
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Ready is closed when the session enters Serving. It is never closed
// if startup fails.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// InfoAddr returns the bound metrics address once Serving, or nil.
func (s *Session) InfoAddr() net.Addr {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.infoAddr
}

// transition moves the state machine. An illegal move is a programming
// error.
func (s *Session) transition(from, to State) {
	if !legal(from, to) || !s.state.CompareAndSwap(int32(from), int32(to)) {
		panic(fmt.Sprintf("session: illegal transition %s -> %s (current %s)", from, to, s.State()))
	}
	s.options.Logger.Debug("session state", "from", from.String(), "to", to.String())
}

// Run loads the rules, mounts, and serves until a signal arrives, the
// mount disappears, or ctx is canceled. Errors before Serving are
// returned as *process.ExitError with ExitConfig or ExitMount and
// leave no mount behind. Once serving, Run returns a Result and a nil
// error unless shutdown itself failed.
func (s *Session) Run(ctx context.Context) (Result, error) {
	s.transition(Unmounted, Mounting)
	logger := s.options.Logger

	// Registered before mounting so a signal during startup is held
	// until Serving instead of killing the process with a mount up.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, s.options.Signals...)
	defer signal.Stop(signals)

	server, info, digest, err := s.mount()
	if err != nil {
		s.transition(Mounting, Terminated)
		return Result{}, err
	}

	s.transition(Mounting, Serving)
	close(s.ready)
	logger.Info("serving",
		"source", s.options.Source,
		"mountpoint", s.options.Mountpoint,
		"rule_digest", digest,
	)

	var group run.Group

	// FUSE server. Interrupting it performs the unmount.
	{
		closed := make(chan struct{})
		go func() {
			server.Wait()
			close(closed)
		}()
		stopped := make(chan struct{})
		var once sync.Once
		group.Add(func() error {
			select {
			case <-closed:
				return errUnmounted
			case <-stopped:
				return nil
			}
		}, func(cause error) {
			once.Do(func() {
				s.transition(Serving, Unmounting)
				select {
				case <-closed:
				default:
					logger.Info("unmounting", "mountpoint", s.options.Mountpoint, "cause", cause)
					s.unmount(server, closed)
				}
				close(stopped)
			})
		})
	}

	// Signals and context cancellation.
	{
		quit := make(chan struct{})
		group.Add(func() error {
			select {
			case sig := <-signals:
				logger.Info("received termination signal", "signal", sig.String())
				return run.SignalError{Signal: sig}
			case <-ctx.Done():
				return ctx.Err()
			case <-quit:
				return nil
			}
		}, func(error) {
			close(quit)
		})
	}

	// Metrics and profiling.
	if info != nil {
		group.Add(info.serve, func(error) {
			info.shutdown()
		})
	}

	err = group.Run()
	s.transition(Unmounting, Terminated)

	result := Result{RuleDigest: digest}
	var signalError run.SignalError
	switch {
	case errors.As(err, &signalError):
		result.Reason = ReasonSignal
		result.Signal = signalError.Signal
	case errors.Is(err, errUnmounted):
		result.Reason = ReasonUnmounted
		logger.Info("mount detached externally", "mountpoint", s.options.Mountpoint)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Reason = ReasonCanceled
	case err == nil:
		return result, fmt.Errorf("metrics listener stopped unexpectedly")
	default:
		return result, fmt.Errorf("serving %s: %w", s.options.Mountpoint, err)
	}
	logger.Info("terminated", "reason", result.Reason.String(), "exit_code", result.ExitCode())
	return result, nil
}

// mount performs the Mounting phase: scan rules, build the resolver,
// open the metrics listener and establish the kernel mount.
func (s *Session) mount() (Server, *infoServer, string, error) {
	logger := s.options.Logger
	fsys := afero.NewBasePathFs(afero.NewOsFs(), s.options.Source)

	tree, err := rules.Scan(rules.NewLoader(fsys, s.options.RuleFileName))
	if err != nil {
		return nil, nil, "", process.WithCode(process.ExitConfig, fmt.Errorf("loading rules: %w", err))
	}
	for _, dir := range tree.Unreadable {
		logger.Warn("directory unreadable while loading rules; its subtree uses inherited rules", "path", dir)
	}
	logger.Info("rules loaded",
		"source", s.options.Source,
		"rule_file", s.options.RuleFileName,
		"directories_with_rules", tree.Len(),
		"digest", tree.Digest(),
	)

	var metrics *resolver.Metrics
	if s.options.Registry != nil {
		metrics = resolver.NewMetrics(s.options.Registry)
	}
	r, err := resolver.New(resolver.Options{
		FS:           fsys,
		Tree:         tree,
		RuleFileName: s.options.RuleFileName,
		Defaults:     s.options.Defaults,
		Metrics:      metrics,
	})
	if err != nil {
		return nil, nil, "", process.WithCode(process.ExitConfig, err)
	}

	var info *infoServer
	if s.options.MetricsListen != "" {
		info, err = listenInfo(s.options.MetricsListen, s.options.Registry)
		if err != nil {
			return nil, nil, "", process.WithCode(process.ExitConfig, fmt.Errorf("metrics listener: %w", err))
		}
		s.infoMu.Lock()
		s.infoAddr = info.Addr()
		s.infoMu.Unlock()
		logger.Info("metrics listening", "address", info.Addr().String())
	}

	server, err := s.options.Mount(r)
	if err != nil {
		if info != nil {
			info.listener.Close()
		}
		return nil, nil, "", process.WithCode(process.ExitMount, err)
	}
	return server, info, tree.Digest(), nil
}

// unmount detaches the mount, retrying while it is busy and falling
// back to a lazy detach. closed reports that the kernel connection is
// gone.
func (s *Session) unmount(server Server, closed <-chan struct{}) {
	logger := s.options.Logger
	backoff := s.options.UnmountBackoff

	err := server.Unmount()
	for attempt := 1; err != nil && attempt <= s.options.UnmountRetries; attempt++ {
		logger.Warn("unmount failed, retrying",
			"mountpoint", s.options.Mountpoint,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-closed:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		err = server.Unmount()
	}
	if err == nil {
		return
	}

	logger.Warn("unmount still failing, detaching lazily", "mountpoint", s.options.Mountpoint, "error", err)
	if lazyErr := s.options.LazyUnmount(s.options.Mountpoint); lazyErr != nil {
		logger.Error("lazy unmount failed", "mountpoint", s.options.Mountpoint, "error", lazyErr)
	}
}
