// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package thread wraps OS threads. A Thread is a goroutine locked to a
// dedicated OS thread for its entire life, carrying a name and the OS
// thread id.
//
// Goroutines that act on behalf of a Thread (e.g. fibers it hosts) may be
// associated with it via Attach, so that Current, Name and ID resolve to the
// hosting Thread from within them.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-fiber/internal/goid"
)

// UnknownName is the name reported for goroutines not associated with a
// Thread, and for threads created without a name.
const UnknownName = "UNKNOWN"

// registry maps goroutine id to *Thread
var registry sync.Map

// Thread is a named goroutine, locked to its own OS thread.
// Instances must be created using New.
type Thread struct {
	fn      func()
	started *Semaphore
	done    chan struct{}
	name    atomic.Pointer[string]
	id      int
	goid    uint64
}

// New spawns a Thread running fn, returning only after the new thread has
// recorded its identity (ID and Name are valid as soon as New returns).
//
// The OS thread is discarded once fn returns. A panic within fn is not
// recovered.
func New(fn func(), name string) *Thread {
	if fn == nil {
		panic(`thread: nil func`)
	}
	if name == `` {
		name = UnknownName
	}
	x := &Thread{
		fn:      fn,
		started: NewSemaphore(0),
		done:    make(chan struct{}),
	}
	x.name.Store(&name)
	go x.run()
	x.started.Wait()
	return x
}

func (x *Thread) run() {
	// never unlocked, so the runtime terminates the thread on exit, instead
	// of returning it (and its OS name) to the pool
	runtime.LockOSThread()

	defer close(x.done)

	x.id = osThreadID()
	x.goid = goid.Get()
	registry.Store(x.goid, x)
	defer registry.Delete(x.goid)

	_ = setOSThreadName(x.Name())

	fn := x.fn
	x.fn = nil

	x.started.Notify()

	fn()
}

// Adopt registers the calling goroutine as a Thread with the given name,
// locking it to its current OS thread, until the returned func is called.
// The release func must be called from the same goroutine, and closes the
// Thread's Done channel. If the goroutine already is a Thread, that Thread
// is renamed and returned, and release only undoes the lock.
func Adopt(name string) (*Thread, func()) {
	runtime.LockOSThread()
	g := goid.Get()
	if v, ok := registry.Load(g); ok {
		if t := v.(*Thread); t.goid == g {
			SetName(name)
			return t, runtime.UnlockOSThread
		}
	}
	if name == `` {
		name = UnknownName
	}
	x := &Thread{
		done: make(chan struct{}),
		id:   osThreadID(),
		goid: g,
	}
	x.name.Store(&name)
	prev, hadPrev := registry.Load(g)
	registry.Store(g, x)
	_ = setOSThreadName(name)
	var once sync.Once
	return x, func() {
		once.Do(func() {
			if hadPrev {
				registry.Store(g, prev)
			} else {
				registry.Delete(g)
			}
			close(x.done)
			runtime.UnlockOSThread()
		})
	}
}

// Join blocks until the thread's func has returned. It may be called any
// number of times, from any goroutine other than the thread itself.
func (x *Thread) Join() {
	<-x.done
}

// Done returns a channel that is closed once the thread has exited.
func (x *Thread) Done() <-chan struct{} {
	return x.done
}

// ID returns the OS thread id.
func (x *Thread) ID() int {
	return x.id
}

// Name returns the thread's name.
func (x *Thread) Name() string {
	return *x.name.Load()
}

// Current returns the Thread the calling goroutine runs on, or is attached
// to, or nil.
func Current() *Thread {
	if v, ok := registry.Load(goid.Get()); ok {
		return v.(*Thread)
	}
	return nil
}

// Attach associates the calling goroutine with t, or clears any association
// if t is nil. It must not be used by a goroutine started by New.
func Attach(t *Thread) {
	g := goid.Get()
	if t == nil {
		registry.Delete(g)
		return
	}
	registry.Store(g, t)
}

// Name returns the name of the current thread, or UnknownName.
func Name() string {
	if t := Current(); t != nil {
		return t.Name()
	}
	return UnknownName
}

// SetName renames the current thread, and, if called from the thread's own
// goroutine, the OS thread. Empty names are ignored, as are calls made from
// goroutines that are not associated with a Thread.
func SetName(name string) {
	if name == `` {
		return
	}
	g := goid.Get()
	v, ok := registry.Load(g)
	if !ok {
		return
	}
	t := v.(*Thread)
	t.name.Store(&name)
	if t.goid == g {
		_ = setOSThreadName(name)
	}
}

// ID returns the OS thread id of the current thread. For goroutines not
// associated with a Thread, this is the id of whichever OS thread is running
// the caller at the time, which is only stable if the goroutine is locked to
// its thread.
func ID() int {
	if t := Current(); t != nil {
		return t.ID()
	}
	return osThreadID()
}
