// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/permfs/permfs/lib/process"
	"github.com/permfs/permfs/lib/session"
)

// readyEnvironment carries the descriptor number of the readiness pipe
// from the parent to the background process.
const readyEnvironment = "PERMFS_READY_FD"

// readyMessage is written to the readiness pipe once the mount serves.
const readyMessage = "serving\n"

// readinessPipe returns the pipe inherited from a daemonizing parent.
// daemonized is true when this process is that background child.
func readinessPipe() (ready *os.File, daemonized bool) {
	value, ok := os.LookupEnv(readyEnvironment)
	if !ok {
		return nil, false
	}
	os.Unsetenv(readyEnvironment)
	fd, err := strconv.Atoi(value)
	if err != nil || fd < 3 {
		return nil, true
	}
	return os.NewFile(uintptr(fd), "permfs-ready"), true
}

// signalReady reports Serving to the waiting parent. If the session
// never serves, the pipe closes when this process exits and the parent
// reads EOF instead.
func signalReady(s *session.Session, ready *os.File, logger *slog.Logger) {
	<-s.Ready()
	if _, err := io.WriteString(ready, readyMessage); err != nil {
		logger.Warn("reporting readiness to parent", "error", err)
	}
	ready.Close()
}

// daemonize re-executes permfs in the foreground in a new session,
// detached from the terminal, and waits until it is serving. Standard
// error stays shared so startup failures and the background process's
// structured logs remain visible to whoever started the mount.
func daemonize(args []string, stderr io.Writer) error {
	executable, err := os.Executable()
	if err != nil {
		return process.Errorf(process.ExitDaemon, "locating executable: %w", err)
	}
	reader, writer, err := os.Pipe()
	if err != nil {
		return process.Errorf(process.ExitDaemon, "creating readiness pipe: %w", err)
	}
	defer reader.Close()

	command := exec.Command(executable, append([]string{"--foreground"}, args...)...)
	command.Env = append(os.Environ(), readyEnvironment+"=3")
	command.ExtraFiles = []*os.File{writer}
	command.Stderr = stderr
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := command.Start(); err != nil {
		writer.Close()
		return process.Errorf(process.ExitDaemon, "starting background process: %w", err)
	}
	writer.Close()

	line, readErr := bufio.NewReader(reader).ReadString('\n')
	if line == readyMessage {
		return command.Process.Release()
	}

	// The child exited or closed the pipe without serving. Its own
	// error message is already on stderr.
	waitErr := command.Wait()
	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		return childStatus(exitErr.ExitCode())
	case waitErr != nil:
		return process.Errorf(process.ExitDaemon, "background process: %w", waitErr)
	case readErr != nil && !errors.Is(readErr, io.EOF):
		return process.Errorf(process.ExitDaemon, "reading readiness pipe: %w", readErr)
	}
	return process.Errorf(process.ExitDaemon, "background process exited before serving")
}

// childStatus maps the exit status of a background process that failed
// during startup. Startup failures keep their code; the child already
// reported them on the shared stderr.
func childStatus(code int) error {
	switch code {
	case process.ExitUsage, process.ExitPath, process.ExitConfig, process.ExitMount:
		return &process.ExitError{Code: code}
	}
	return process.Errorf(process.ExitDaemon, "background process failed with status %d", code)
}
