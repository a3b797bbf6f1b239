// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrInvalidState indicates an operation was attempted on a fiber in a
	// state that does not permit it, e.g. SwapIn of a running fiber.
	ErrInvalidState = errors.New("fiber: invalid state")

	// ErrMainFiber indicates an operation that requires a stack was attempted
	// on a thread's main fiber.
	ErrMainFiber = errors.New("fiber: not permitted on a main fiber")

	// ErrStackReleased indicates the fiber has been closed.
	ErrStackReleased = errors.New("fiber: stack released")

	// ErrStackAlloc indicates a StackAllocator failed to provide a stack.
	ErrStackAlloc = errors.New("fiber: stack allocation failed")

	// ErrInvalidAffinity indicates an Item was pinned to a worker that does
	// not exist.
	ErrInvalidAffinity = errors.New("fiber: invalid thread affinity")

	// ErrInvalidThreadCount indicates a scheduler was constructed with fewer
	// than one thread.
	ErrInvalidThreadCount = errors.New("fiber: thread count must be at least 1")

	// ErrNotCaller indicates an operation that must run on the goroutine that
	// constructed a caller-participating scheduler was called elsewhere.
	ErrNotCaller = errors.New("fiber: not called from the constructing goroutine")

	// ErrGoexit is recorded for fibers whose body called runtime.Goexit.
	ErrGoexit = errors.New("fiber: body called runtime.Goexit")
)

// UsageError is the panic value for misuse of this package: broken
// preconditions, that indicate a bug in the caller. Err is one of the
// sentinel errors of this package.
type UsageError struct {
	Err     error
	Message string
	// Stack is the stack trace at the point of failure.
	Stack []byte
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

// Unwrap returns the sentinel error.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// PanicError records a panic recovered from a fiber body, see Fiber.Err.
type PanicError struct {
	Value any
	// Stack is the stack trace of the panicking goroutine.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("fiber: body panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// fatal reports a usage error, logging it with a stack trace before
// panicking with a *UsageError.
func fatal(err error, format string, args ...any) {
	e := &UsageError{
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Stack:   debug.Stack(),
	}
	getLogger().Crit().
		Err(e).
		Str(`stack`, string(e.Stack)).
		Log(`fiber: assertion failed`)
	panic(e)
}
