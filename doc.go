// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package fiber implements stackful coroutines ("fibers"), cooperatively
// multiplexed N:M onto a fixed pool of OS-thread-pinned workers by a
// [Scheduler].
//
// # Fibers
//
// A [Fiber] runs a body on its own [Stack]. Control moves between fibers
// only by explicit transfer: [Fiber.SwapIn] runs a fiber until it suspends
// (via [YieldToReady], [YieldToHold], or [Fiber.SwapOut]) or finishes, and
// only then returns to the caller. There is no preemption. A fiber that
// suspends may be resumed later, possibly from a different thread.
//
// Every thread that uses fibers has an implicit main fiber, created by the
// first call to [GetThis], representing the thread's own stack. A thread's
// fiber context is torn down by [Detach].
//
// A fiber body that panics does not crash the process: the panic is
// recovered at the fiber's entry point, logged, and the fiber finishes in
// [StateExcept]. Misuse of the API, e.g. swapping in a fiber that is already
// running, is a programming error, reported by logging a stack trace and
// panicking with a [*UsageError].
//
// # Scheduler
//
// A [Scheduler] owns a fixed set of worker threads, and a FIFO queue of
// [Item] values, each either a func or an existing fiber, optionally pinned
// to a worker. Workers run func items on recycled fibers, requeue fibers
// that yield as ready, and leave fibers that yield as held to be resumed by
// whoever holds them, which is done by scheduling the fiber again.
//
//	s := fiber.NewScheduler(4, true, `worker`)
//	s.Start()
//	for i := range 10 {
//	    s.Go(func() {
//	        fmt.Println(`task`, i, `on worker`, fiber.CurrentWorker())
//	        fiber.YieldToReady()
//	        fmt.Println(`task`, i, `resumed`)
//	    })
//	}
//	s.Stop()
//
// # Implementation
//
// Each [Stack] is backed by a goroutine, parked between activations, with
// control handed to and from it over unbuffered channels, such that exactly
// one of the host and the fiber is running at any time. Per-thread state is
// held in a context keyed by goroutine, which fiber goroutines adopt from
// the thread that resumes them. Worker threads are goroutines locked to
// their own OS thread, see package thread.
//
// Fiber stack sizes default to the `fiber.stack_size` setting, see
// [StackSizeSetting], and package config.
package fiber
