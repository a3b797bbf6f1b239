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

// threadContext is the fiber state of a thread. It is shared by the host
// goroutine, and the stack goroutines of the fibers it runs.
type threadContext struct {
	main    *Fiber
	current *Fiber
	// scheduler is the Scheduler this thread is a worker for, if any
	scheduler *Scheduler
	// schedulerFiber runs the scheduling loop, if this is a worker
	schedulerFiber *Fiber
	thread         *thread.Thread
	goid           uint64
	worker         int
}

// contexts maps goroutine id to *threadContext
var contexts sync.Map

// loadContext returns the context of the calling goroutine, or nil.
func loadContext() *threadContext {
	if v, ok := contexts.Load(goid.Get()); ok {
		return v.(*threadContext)
	}
	return nil
}

// currentContext returns the context of the calling goroutine, creating it,
// and the thread's main fiber, on first use.
func currentContext() *threadContext {
	g := goid.Get()
	if v, ok := contexts.Load(g); ok {
		return v.(*threadContext)
	}
	ctx := &threadContext{
		main:   newMainFiber(),
		thread: thread.Current(),
		goid:   g,
		worker: -1,
	}
	ctx.current = ctx.main
	contexts.Store(g, ctx)
	return ctx
}

// GetThis returns the fiber running on the current thread, creating the
// thread's main fiber if this is the first use of fibers on the thread.
//
// Within a func run by a Scheduler, the fiber belongs to the scheduler,
// which reuses it for other funcs once this one returns. The handle is only
// valid until then, e.g. to resume the fiber after YieldToHold.
func GetThis() *Fiber {
	return currentContext().current
}

// GetFiberID returns the id of the fiber running on the current thread, or
// 0 for a main fiber, or a thread that has never used fibers. It never
// creates a main fiber.
func GetFiberID() uint64 {
	if ctx := loadContext(); ctx != nil {
		return ctx.current.id
	}
	return 0
}

// GetScheduler returns the Scheduler the current thread is a worker of, or
// nil.
func GetScheduler() *Scheduler {
	if ctx := loadContext(); ctx != nil {
		return ctx.scheduler
	}
	return nil
}

// GetMainFiber returns the fiber the current worker thread runs its
// scheduling loop on. For threads that are not workers, it returns the main
// fiber.
func GetMainFiber() *Fiber {
	ctx := currentContext()
	if ctx.schedulerFiber != nil {
		return ctx.schedulerFiber
	}
	return ctx.main
}

// CurrentWorker returns the index of the current worker thread, within its
// Scheduler, or -1.
func CurrentWorker() int {
	if ctx := loadContext(); ctx != nil {
		return ctx.worker
	}
	return -1
}

// Detach tears down the fiber context of the calling goroutine, destroying
// its main fiber. It must be called from the goroutine that owns the
// context, while no other fiber runs on it. It is a no-op if the goroutine
// has no context.
func Detach() {
	g := goid.Get()
	v, ok := contexts.Load(g)
	if !ok {
		return
	}
	ctx := v.(*threadContext)
	if ctx.goid != g {
		fatal(ErrInvalidState, `detach from fiber %d`, ctx.current.id)
	}
	if ctx.current != ctx.main {
		fatal(ErrInvalidState, `detach while fiber %d runs`, ctx.current.id)
	}
	if ctx.scheduler != nil {
		fatal(ErrInvalidState, `detach from a worker of scheduler %q`, ctx.scheduler.name)
	}
	contexts.Delete(g)
	ctx.main.destroyMain()
}
