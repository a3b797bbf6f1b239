// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

// AnyThread is the affinity of an Item that may run on any worker.
const AnyThread = -1

// Item is a unit of work for a Scheduler: either a func, run on a fiber
// provided by the scheduler, or an existing fiber, to be resumed. The zero
// value is empty, and is ignored by Schedule.
type Item struct {
	fiber  *Fiber
	fn     func()
	thread int
	// owned marks fibers created by the scheduler
	owned bool
}

// FuncItem returns an Item that runs fn, on the given worker, or AnyThread.
// A nil fn results in an empty Item.
func FuncItem(fn func(), thread int) Item {
	return Item{fn: fn, thread: thread}
}

// FiberItem returns an Item that resumes f, on the given worker, or
// AnyThread. A nil f results in an empty Item.
//
// When f was obtained via GetThis from a func run by a Scheduler, it must
// only be scheduled while that func has not returned, as the scheduler
// reuses the fiber afterward.
func FiberItem(f *Fiber, thread int) Item {
	return Item{fiber: f, thread: thread}
}

// Fiber returns the item's fiber, if any.
func (x Item) Fiber() *Fiber { return x.fiber }

// Thread returns the worker the item is pinned to, or AnyThread.
func (x Item) Thread() int { return x.thread }

// Empty returns true if the item has neither a fiber nor a func.
func (x Item) Empty() bool { return x.fiber == nil && x.fn == nil }

// runnable reports whether worker may take the item now. Fibers still being
// suspended, by another worker, are skipped.
func (x Item) runnable(worker int) (ok, busy bool) {
	if x.thread != AnyThread && x.thread != worker {
		return false, false
	}
	if x.fiber != nil && x.fiber.State() == StateExec {
		return false, true
	}
	return true, false
}
