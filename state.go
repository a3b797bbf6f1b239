// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

// State is the lifecycle state of a Fiber.
//
// State Machine:
//
//	StateInit   → StateExec    [SwapIn, first run]
//	StateExec   → StateReady   [YieldToReady]
//	StateExec   → StateHold    [YieldToHold, SwapOut]
//	StateReady  → StateExec    [SwapIn]
//	StateHold   → StateExec    [SwapIn, i.e. an external resume]
//	StateExec   → StateTerm    [body returned]
//	StateExec   → StateExcept  [body panicked]
//	StateInit   → StateInit    [Reset]
//	StateTerm   → StateInit    [Reset]
//	StateExcept → StateInit    [Reset]
//
// A thread's main fiber is always StateExec.
type State int32

const (
	// StateInit indicates the fiber has a body that has not started.
	StateInit State = iota
	// StateReady indicates the fiber yielded, and wants to run again.
	StateReady
	// StateExec indicates the fiber is running.
	StateExec
	// StateHold indicates the fiber is suspended, until resumed by whoever
	// holds it.
	StateHold
	// StateTerm indicates the body returned normally.
	StateTerm
	// StateExcept indicates the body panicked.
	StateExcept
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateExec:
		return "EXEC"
	case StateHold:
		return "HOLD"
	case StateTerm:
		return "TERM"
	case StateExcept:
		return "EXCEPT"
	default:
		return "UNKNOWN"
	}
}

// Finished returns true for StateTerm and StateExcept.
func (s State) Finished() bool {
	return s == StateTerm || s == StateExcept
}

// resettable reports whether Reset is permitted from s.
func (s State) resettable() bool {
	return s == StateInit || s.Finished()
}

// resumable reports whether SwapIn is permitted from s.
func (s State) resumable() bool {
	return s == StateInit || s == StateReady || s == StateHold
}
