// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// Fiber is a stackful coroutine. See the package documentation.
//
// A Fiber is owned by one goroutine at a time: Reset and SwapIn must not be
// called concurrently for the same fiber. Fibers are resumed with SwapIn, or
// by scheduling them on a Scheduler, never both at once.
type Fiber struct {
	stack     *Stack
	allocator StackAllocator
	fn        func()
	err       error
	// fault is a usage error raised by the body, rethrown by SwapIn
	fault   *UsageError
	cleanup runtime.Cleanup
	id      uint64
	state   atomic.Int32
	closed  atomic.Bool
}

var (
	lastFiberID atomic.Uint64
	fiberCount  atomic.Int64
)

// TotalFibers returns the number of live fibers, including main fibers.
func TotalFibers() int64 {
	return fiberCount.Load()
}

// New allocates a fiber, in StateInit, that will run fn when first swapped
// in. Its stack is released by Close, or when the fiber is garbage
// collected.
func New(fn func(), opts ...Option) *Fiber {
	cfg, err := resolveFiberOptions(opts)
	if err != nil {
		fatal(err, `invalid option`)
	}
	size := cfg.stackSize
	if size == 0 {
		size = stackSizeSetting.Value()
	}
	if size == 0 {
		size = DefaultStackSize
	}

	f := &Fiber{
		allocator: cfg.allocator,
		fn:        fn,
		id:        lastFiberID.Add(1),
	}
	f.attachStack(size)
	fiberCount.Add(1)

	getLogger().Debug().
		Uint64(`fiber`, f.id).
		Uint64(`stack_size`, uint64(size)).
		Log(`fiber: created`)

	return f
}

func newMainFiber() *Fiber {
	f := new(Fiber)
	f.state.Store(int32(StateExec))
	fiberCount.Add(1)
	return f
}

func (f *Fiber) destroyMain() {
	fiberCount.Add(-1)
}

// stackRelease is the cleanup argument, it must not reference the fiber
type stackRelease struct {
	stack     *Stack
	allocator StackAllocator
	id        uint64
}

func releaseStack(r stackRelease) {
	r.allocator.Dealloc(r.stack)
	fiberCount.Add(-1)
	getLogger().Debug().
		Uint64(`fiber`, r.id).
		Log(`fiber: destroyed`)
}

func (f *Fiber) attachStack(size uint32) {
	stack := f.allocator.Alloc(size)
	if stack == nil {
		fatal(ErrStackAlloc, `fiber %d, size %d`, f.id, size)
	}
	f.stack = stack
	f.cleanup = runtime.AddCleanup(f, releaseStack, stackRelease{
		stack:     stack,
		allocator: f.allocator,
		id:        f.id,
	})
}

// ID returns the fiber's unique id, or 0 for a main fiber.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the current state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// StackSize returns the size of the fiber's stack, or 0 for a main fiber.
func (f *Fiber) StackSize() uint32 {
	if f.stack == nil {
		return 0
	}
	return f.stack.Size()
}

// Err returns the failure of the last run, if it ended in StateExcept,
// typically a *PanicError.
func (f *Fiber) Err() error {
	if f.State() != StateExcept {
		return nil
	}
	return f.err
}

// Reset replaces the body of a fiber that is not started, or has finished,
// reusing its stack, returning it to StateInit. Resetting a fiber in any
// other state, or a main fiber, is a usage error.
func (f *Fiber) Reset(fn func()) {
	if f.stack == nil {
		fatal(ErrMainFiber, `reset`)
	}
	if f.closed.Load() {
		fatal(ErrStackReleased, `reset fiber %d`, f.id)
	}
	state := f.State()
	if !state.resettable() {
		fatal(ErrInvalidState, `reset fiber %d in state %s`, f.id, state)
	}
	if f.stack.Released() {
		// the previous body ended its goroutine
		size := f.stack.Size()
		f.cleanup.Stop()
		f.allocator.Dealloc(f.stack)
		f.attachStack(size)
	}
	f.fn = fn
	f.err = nil
	if !f.state.CompareAndSwap(int32(state), int32(StateInit)) {
		fatal(ErrInvalidState, `fiber %d changed state during reset`, f.id)
	}
}

// SwapIn runs the fiber on the calling thread, until it suspends or
// finishes, returning the state it left in: StateReady, StateHold,
// StateTerm, or StateExcept. The fiber must be in StateInit, StateReady, or
// StateHold. It may be called from within another fiber.
//
// A *UsageError raised within the body is not contained: the fiber ends in
// StateExcept, and SwapIn panics with the same error.
func (f *Fiber) SwapIn() State {
	if f.stack == nil {
		fatal(ErrMainFiber, `swap in`)
	}
	if f.closed.Load() {
		fatal(ErrStackReleased, `swap in fiber %d`, f.id)
	}
	for {
		state := f.State()
		if !state.resumable() {
			fatal(ErrInvalidState, `swap in fiber %d in state %s`, f.id, state)
		}
		if f.state.CompareAndSwap(int32(state), int32(StateExec)) {
			break
		}
	}

	ctx := currentContext()
	prev := ctx.current
	ctx.current = f
	state := f.stack.transfer(activation{fiber: f, ctx: ctx})
	ctx.current = prev

	if fault := f.fault; fault != nil {
		f.fault = nil
		f.err = fault
		f.state.Store(int32(StateExcept))
		panic(fault)
	}
	if state == StateExec {
		state = StateHold
	}
	// other threads see StateExec until now, see Scheduler
	f.state.Store(int32(state))
	return state
}

// SwapOut suspends the running fiber, in StateHold, returning control to
// whoever swapped it in. It must be called by the fiber itself.
func (f *Fiber) SwapOut() {
	f.suspend(StateHold)
}

func (f *Fiber) suspend(state State) {
	if f.stack == nil {
		fatal(ErrMainFiber, `suspend`)
	}
	if ctx := loadContext(); ctx == nil || ctx.current != f {
		fatal(ErrInvalidState, `suspend fiber %d, from outside it`, f.id)
	}
	f.stack.suspend(state)
}

// YieldToReady suspends the current fiber in StateReady. Under a Scheduler,
// this requeues it. Calling it outside a fiber is a usage error.
func YieldToReady() {
	GetThis().suspend(StateReady)
}

// YieldToHold suspends the current fiber in StateHold. It runs again only
// when resumed by whoever holds it. Calling it outside a fiber is a usage
// error.
func YieldToHold() {
	GetThis().suspend(StateHold)
}

// trampoline runs the body on the fiber's stack, returning the final state.
// Panics are recovered, and reported via Err, except usage errors, which
// are handed to the host.
func (f *Fiber) trampoline() (state State) {
	fn := f.fn
	var returned bool
	defer func() {
		f.fn = nil
		if r := recover(); r != nil {
			var usage *UsageError
			if err, ok := r.(error); ok && errors.As(err, &usage) {
				// already logged by fatal
				f.fault = usage
				state = StateExcept
				return
			}
			f.err = &PanicError{Value: r, Stack: debug.Stack()}
			state = StateExcept
		} else if !returned {
			f.err = ErrGoexit
		} else {
			return
		}
		logFault(f.id, fn, f.err)
	}()
	fn()
	returned = true
	return StateTerm
}

// Close releases the fiber's stack. The fiber must not be running or
// suspended, i.e. it must be in StateInit, StateTerm, or StateExcept. It may
// not be used afterward. Idempotent.
//
// Fibers that are not closed release their stack when garbage collected,
// except those left suspended, which live until the process exits.
func (f *Fiber) Close() {
	if f.stack == nil {
		fatal(ErrMainFiber, `close`)
	}
	if f.closed.Load() {
		return
	}
	if state := f.State(); !state.resettable() {
		fatal(ErrInvalidState, `close fiber %d in state %s`, f.id, state)
	}
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.cleanup.Stop()
	releaseStack(stackRelease{
		stack:     f.stack,
		allocator: f.allocator,
		id:        f.id,
	})
}
