// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thread

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

// semaphoreCapacity bounds the number of outstanding notifications.
const semaphoreCapacity = math.MaxInt64

// Semaphore is a counting semaphore, starting at a given count, where Wait
// decrements (blocking while the count is zero) and Notify increments.
//
// It is implemented as an inverted weighted semaphore: the permits that are
// not "available" are held by the Semaphore itself.
type Semaphore struct {
	w *semaphore.Weighted
}

// NewSemaphore returns a Semaphore with the given initial count.
func NewSemaphore(count uint32) *Semaphore {
	w := semaphore.NewWeighted(semaphoreCapacity)
	if !w.TryAcquire(semaphoreCapacity - int64(count)) {
		panic(`thread: failed to initialize semaphore`)
	}
	return &Semaphore{w: w}
}

// Wait blocks until the count is positive, then decrements it.
func (x *Semaphore) Wait() {
	_ = x.w.Acquire(context.Background(), 1)
}

// WaitContext is Wait, but returns ctx.Err() if ctx is done first, in which
// case the count is unchanged.
func (x *Semaphore) WaitContext(ctx context.Context) error {
	return x.w.Acquire(ctx, 1)
}

// TryWait decrements the count if it is positive, without blocking.
func (x *Semaphore) TryWait() bool {
	return x.w.TryAcquire(1)
}

// Notify increments the count, waking a single waiter, if any.
func (x *Semaphore) Notify() {
	x.w.Release(1)
}
