// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// Exit status codes.
const (
	// ExitOK is a clean exit: help, version, a successful check, or a
	// mount that was unmounted externally.
	ExitOK = 0
	// ExitUsage reports invalid command-line arguments.
	ExitUsage = 1
	// ExitPath reports a missing or unusable source or mountpoint.
	ExitPath = 2
	// ExitConfig reports a malformed rule file or configuration file.
	ExitConfig = 3
	// ExitMount reports that the kernel mount could not be established.
	ExitMount = 4
	// ExitDaemon reports that the background process failed before it
	// started serving.
	ExitDaemon = 5
	// ExitSignal reports that a termination signal ended a serving
	// mount.
	ExitSignal = 7
)

// ExitError is an error that determines the process exit status.
type ExitError struct {
	Code int
	Err  error
}

// Errorf returns an *ExitError with code wrapping a formatted error.
func Errorf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// WithCode wraps err so that it exits with code. A nil err stays nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the status the process should exit with.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Code returns the exit status for err: 0 for nil, the code of the
// outermost error in the chain with an ExitCode method, or ExitUsage.
func Code(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return ExitUsage
}

// Exit terminates the process with the status for err, writing
// "permfs: err" to stderr when err carries a message.
func Exit(err error) {
	code := Code(err)
	var exitError *ExitError
	if err != nil && !(errors.As(err, &exitError) && exitError.Err == nil) {
		fmt.Fprintf(os.Stderr, "permfs: %v\n", err)
	}
	os.Exit(code)
}
