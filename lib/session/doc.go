// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session drives one permfs mount through its lifecycle:
//
//	Unmounted -> Mounting -> Serving -> Unmounting -> Terminated
//
// Mounting loads every rule file of the source tree up front, so a
// malformed rule never leaves a mount behind; it then builds the
// resolver, opens the optional metrics listener and calls the caller's
// [MountFunc]. Serving runs an oklog/run actor group of the FUSE
// server, a signal and context watcher, and the metrics listener; the
// first actor to return ends the group and the rest are interrupted.
//
// Unmounting retries a busy unmount with backoff and falls back to a
// lazy detach ([LazyUnmount]). [Result.ExitCode] is 7 when a
// termination signal ended the session and 0 when the mount was
// removed externally.
//
// [Session.Ready] closes on entering Serving; a daemonizing parent
// waits on it before exiting.
package session
