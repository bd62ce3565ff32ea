// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// State is a phase of the mount lifecycle.
type State int32

const (
	// Unmounted is the state of a new session.
	Unmounted State = iota
	// Mounting loads rules and establishes the kernel mount.
	Mounting
	// Serving answers filesystem requests.
	Serving
	// Unmounting drains in-flight requests and detaches the mount.
	Unmounting
	// Terminated is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounting:
		return "mounting"
	case Serving:
		return "serving"
	case Unmounting:
		return "unmounting"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// transitions lists the legal successors of each state. Mounting may
// end in Terminated directly when startup fails; a serving mount always
// passes through Unmounting.
var transitions = map[State][]State{
	Unmounted:  {Mounting},
	Mounting:   {Serving, Terminated},
	Serving:    {Unmounting},
	Unmounting: {Terminated},
}

func legal(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
