// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for permfs packages.
//
// [WriteTree] builds a source tree on disk from a compact description
// so tests can state a fixture (rule files included) in one map
// literal. [RequireFUSE] skips tests that need a real kernel mount when
// /dev/fuse or the fusermount helper is unavailable, which is the
// normal state of affairs inside unprivileged CI containers.
//
// [RequireReceive], [RequireClosed] and [RequireNotClosed] encapsulate
// the timeout safety valve pattern (select with a time.After fallback)
// so individual tests never block forever on a mount or signal that
// did not happen.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no permfs-internal dependencies.
package testutil
