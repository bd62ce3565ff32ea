// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/permfs/permfs/lib/process"
)

func TestTransitions(t *testing.T) {
	allowed := map[[2]State]bool{
		{Unmounted, Mounting}:    true,
		{Mounting, Serving}:      true,
		{Mounting, Terminated}:   true,
		{Serving, Unmounting}:    true,
		{Unmounting, Terminated}: true,
	}
	states := []State{Unmounted, Mounting, Serving, Unmounting, Terminated}
	for _, from := range states {
		for _, to := range states {
			if got, want := legal(from, to), allowed[[2]State{from, to}]; got != want {
				t.Errorf("legal(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStateString(t *testing.T) {
	if got := Serving.String(); got != "serving" {
		t.Errorf("Serving.String() = %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("State(42).String() = %q", got)
	}
}

func TestResultExitCode(t *testing.T) {
	tests := map[Reason]int{
		ReasonSignal:    process.ExitSignal,
		ReasonUnmounted: process.ExitOK,
		ReasonCanceled:  process.ExitOK,
	}
	for reason, want := range tests {
		if got := (Result{Reason: reason}).ExitCode(); got != want {
			t.Errorf("%s: ExitCode = %d, want %d", reason, got, want)
		}
	}
}
