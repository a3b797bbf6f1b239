// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"sync"

	"github.com/joeycumines/go-fiber/internal/goid"
	"github.com/joeycumines/go-fiber/thread"
)

// Stack is the execution stack of a fiber: a goroutine, parked between
// activations, and the channels used to transfer control to and from it.
// Exactly one side of a transfer runs at a time.
//
// A Stack never references the fiber it serves while parked, so an
// unreachable fiber can be reclaimed, see Fiber.Close.
type Stack struct {
	resume chan activation
	yield  chan State
	exit   chan struct{}
	once   sync.Once
	bound  *threadContext
	thread *thread.Thread
	size   uint32
	goid   uint64
}

// activation transfers control to a stack.
type activation struct {
	fiber *Fiber
	ctx   *threadContext
}

// StackAllocator provides and releases fiber stacks. Each fiber allocates
// exactly one stack over its lifetime, released by Fiber.Close, or when the
// fiber is garbage collected.
type StackAllocator interface {
	Alloc(size uint32) *Stack
	Dealloc(stack *Stack)
}

// DefaultStackAllocator allocates goroutine-backed stacks via NewStack.
var DefaultStackAllocator StackAllocator = goroutineAllocator{}

type goroutineAllocator struct{}

func (goroutineAllocator) Alloc(size uint32) *Stack { return NewStack(size) }

func (goroutineAllocator) Dealloc(stack *Stack) { stack.Release() }

// NewStack starts a new stack. The size is recorded for accounting only, as
// goroutine stacks grow on demand.
func NewStack(size uint32) *Stack {
	s := &Stack{
		resume: make(chan activation),
		yield:  make(chan State),
		exit:   make(chan struct{}),
		size:   size,
	}
	go s.run()
	return s
}

// Size returns the size the stack was allocated with.
func (s *Stack) Size() uint32 { return s.size }

// Release stops the stack's goroutine, once it is parked. It must not be
// called while a fiber is suspended on the stack. Idempotent.
func (s *Stack) Release() {
	s.once.Do(func() { close(s.exit) })
}

// Released returns true if the stack can no longer run fibers.
func (s *Stack) Released() bool {
	select {
	case <-s.exit:
		return true
	default:
		return false
	}
}

func (s *Stack) run() {
	s.goid = goid.Get()
	defer contexts.Delete(s.goid)
	defer thread.Attach(nil)
	for {
		select {
		case act := <-s.resume:
			s.activate(act)
		case <-s.exit:
			return
		}
	}
}

// activate runs one fiber body to completion, on the stack's goroutine.
func (s *Stack) activate(act activation) {
	var returned bool
	defer func() {
		if !returned {
			// runtime.Goexit: this goroutine is gone, take the stack with it
			s.Release()
			s.yield <- StateExcept
		}
	}()
	s.bind(act.ctx)
	state := act.fiber.trampoline()
	act = activation{}
	returned = true
	s.yield <- state
}

// bind adopts ctx as the thread context of the stack's goroutine.
func (s *Stack) bind(ctx *threadContext) {
	if s.bound != ctx {
		s.bound = ctx
		contexts.Store(s.goid, ctx)
	}
	if s.thread != ctx.thread {
		s.thread = ctx.thread
		thread.Attach(ctx.thread)
	}
}

// transfer runs the stack until it suspends or finishes, from the host.
func (s *Stack) transfer(act activation) State {
	select {
	case s.resume <- act:
	case <-s.exit:
		fatal(ErrStackReleased, `fiber %d`, act.fiber.id)
	}
	return <-s.yield
}

// suspend returns control to the host, from the stack's goroutine, and
// blocks until the next activation.
func (s *Stack) suspend(state State) {
	s.yield <- state
	act := <-s.resume
	s.bind(act.ctx)
}
