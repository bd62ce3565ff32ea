// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process centralizes how permfs ends: the documented exit
// status codes and the error type that carries one from run() to
// main().
//
// Supervisors and packaging pipelines branch on these codes, so each
// value is fixed. In particular [ExitSignal] (7) means the mount was
// serving and was shut down by a termination signal.
//
// [Exit] is the only place that writes raw text to stderr after flag
// parsing; everything else goes through the structured logger.
package process
