// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"container/list"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/joeycumines/go-fiber/internal/goid"
	"github.com/joeycumines/go-fiber/thread"
	"github.com/joeycumines/logiface"
)

// Scheduler multiplexes fibers onto a fixed set of worker threads, see the
// package documentation.
//
// Lifecycle: NewScheduler → Start → Schedule... → Stop. Stop drains the
// queue before returning, after which no worker remains.
type Scheduler struct {
	logger     *logiface.Logger[logiface.Event]
	tickleHook func()
	fiberOpts  []Option
	queue      *list.List // of Item
	cond       *sync.Cond
	rootFiber  *Fiber
	rootCtx    *threadContext
	// callerThread is worker 0 with useCaller, adopted until stop
	callerThread  *thread.Thread
	prevThread    *thread.Thread
	releaseCaller func()
	name          string
	threads       []*thread.Thread
	threadIDs     []int
	stopOnce      sync.Once
	// startMu serializes spawning workers, which s.mu must not be held for
	startMu   sync.Mutex
	mu        sync.Mutex
	count     int
	active    int
	idle      int
	useCaller bool
	started   bool
	stopping  bool
	stopped   bool
}

// NewScheduler constructs a scheduler with the given number of workers. If
// useCaller is true, the calling goroutine is worker 0, running its share
// of the work only once Stop is called, which it must do. An empty name is
// replaced by a generated one. Workers are not started until Start.
func NewScheduler(threads int, useCaller bool, name string, opts ...SchedulerOption) *Scheduler {
	if threads < 1 {
		fatal(ErrInvalidThreadCount, `got %d`, threads)
	}
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		fatal(err, `invalid option`)
	}
	if name == `` {
		name = fmt.Sprintf(`scheduler-%s`, uuid.New())
	}

	s := &Scheduler{
		logger:     cfg.logger,
		tickleHook: cfg.tickleHook,
		fiberOpts:  cfg.fiberOpts,
		queue:      list.New(),
		name:       name,
		threadIDs:  make([]int, threads),
		count:      threads,
		useCaller:  useCaller,
	}
	s.cond = sync.NewCond(&s.mu)

	if useCaller {
		ctx := currentContext()
		if ctx.scheduler != nil {
			fatal(ErrInvalidState, `caller is already a worker of scheduler %q`, ctx.scheduler.name)
		}
		if ctx.current != ctx.main {
			fatal(ErrInvalidState, `caller is fiber %d`, ctx.current.id)
		}
		s.rootFiber = New(func() { s.run(0) }, s.fiberOpts...)
		s.rootCtx = ctx
		s.callerThread, s.releaseCaller = thread.Adopt(name)
		s.prevThread = ctx.thread
		ctx.thread = s.callerThread
		ctx.scheduler = s
		ctx.schedulerFiber = s.rootFiber
		ctx.worker = 0
		s.threadIDs[0] = s.callerThread.ID()
	}

	s.logger.Debug().
		Str(`scheduler`, name).
		Int(`threads`, threads).
		Bool(`use_caller`, useCaller).
		Log(`fiber: scheduler created`)

	return s
}

// Name returns the scheduler's name.
func (s *Scheduler) Name() string { return s.name }

// ThreadIDs returns the OS thread id of each worker, by index, which is 0
// for workers not yet started.
func (s *Scheduler) ThreadIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.threadIDs...)
}

// Pending returns the number of queued items.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stopping returns true once Stop has been called.
func (s *Scheduler) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// HasIdleThreads returns true if any worker is parked, waiting for work.
func (s *Scheduler) HasIdleThreads() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle > 0
}

// Start spawns the worker threads, named "<name>_<index>", returning once
// they are running. It is a no-op if already started, or stopping. With
// useCaller, worker 0 only runs during Stop.
func (s *Scheduler) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started || s.Stopping() {
		return
	}
	s.started = true

	first := 0
	if s.useCaller {
		first = 1
	}
	threads := make([]*thread.Thread, 0, s.count-first)
	for i := first; i < s.count; i++ {
		threads = append(threads, thread.New(func() { s.workerMain(i) }, fmt.Sprintf(`%s_%d`, s.name, i)))
	}

	s.mu.Lock()
	s.threads = threads
	for i, t := range threads {
		s.threadIDs[first+i] = t.ID()
	}
	s.mu.Unlock()

	s.logger.Info().
		Str(`scheduler`, s.name).
		Int(`threads`, s.count).
		Log(`fiber: scheduler started`)
}

// Stop runs all remaining work to completion, then joins the workers. With
// useCaller, it must be called from the constructing goroutine, and runs
// worker 0 on it until the queue is drained. A scheduler that was never
// started is started first. Idempotent.
//
// Stop must not be called from a fiber run by the scheduler.
func (s *Scheduler) Stop() {
	g := goid.Get()
	if ctx := loadContext(); ctx != nil && ctx.scheduler == s && ctx.goid != g {
		fatal(ErrInvalidState, `stop scheduler %q from its own fiber %d`, s.name, ctx.current.id)
	}
	if s.useCaller && s.rootCtx.goid != g {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fatal(ErrNotCaller, `stop scheduler %q`, s.name)
		}
	}
	s.stopOnce.Do(s.stop)
}

func (s *Scheduler) stop() {
	s.Start()

	s.mu.Lock()
	s.stopping = true
	threads := s.threads
	s.mu.Unlock()

	s.logger.Info().
		Str(`scheduler`, s.name).
		Log(`fiber: scheduler stopping`)

	s.tickle()

	if s.rootFiber != nil {
		s.rootFiber.SwapIn()
		ctx := s.rootCtx
		ctx.scheduler = nil
		ctx.schedulerFiber = nil
		ctx.worker = -1
		ctx.thread = s.prevThread
		s.rootFiber.Close()
		s.releaseCaller()
	}

	for _, t := range threads {
		t.Join()
	}

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info().
		Str(`scheduler`, s.name).
		Log(`fiber: scheduler stopped`)
}

// Schedule enqueues an item. Empty items are ignored. Pinning an item to a
// worker that does not exist is a usage error. Items scheduled once the
// scheduler has stopped are dropped, with a warning.
func (s *Scheduler) Schedule(item Item) {
	if item.Empty() {
		return
	}
	s.checkAffinity(item)
	s.mu.Lock()
	if s.closedLocked() {
		s.mu.Unlock()
		s.dropped(1)
		return
	}
	tickle := s.pushLocked(item)
	s.mu.Unlock()
	if tickle {
		s.tickle()
	}
}

// ScheduleAll enqueues items atomically, waking idle workers at most once.
func (s *Scheduler) ScheduleAll(items ...Item) {
	for _, item := range items {
		if !item.Empty() {
			s.checkAffinity(item)
		}
	}
	var tickle bool
	s.mu.Lock()
	if s.closedLocked() {
		s.mu.Unlock()
		s.dropped(len(items))
		return
	}
	for _, item := range items {
		if !item.Empty() {
			tickle = s.pushLocked(item) || tickle
		}
	}
	s.mu.Unlock()
	if tickle {
		s.tickle()
	}
}

// Go schedules fn to run on any worker.
func (s *Scheduler) Go(fn func()) {
	s.Schedule(FuncItem(fn, AnyThread))
}

func (s *Scheduler) checkAffinity(item Item) {
	if item.thread < AnyThread || item.thread >= s.count {
		fatal(ErrInvalidAffinity, `thread %d, scheduler %q has %d`, item.thread, s.name, s.count)
	}
}

// pushLocked returns true if the queue was empty
func (s *Scheduler) pushLocked(item Item) bool {
	empty := s.queue.Len() == 0
	s.queue.PushBack(item)
	return empty
}

// closedLocked reports whether the workers have exited, or are exiting
func (s *Scheduler) closedLocked() bool {
	return s.stopped || s.canStopLocked()
}

func (s *Scheduler) canStopLocked() bool {
	return s.stopping && s.queue.Len() == 0 && s.active == 0
}

func (s *Scheduler) dropped(n int) {
	s.logger.Warning().
		Str(`scheduler`, s.name).
		Int(`items`, n).
		Log(`fiber: scheduler stopped, dropping items`)
}

// tickle wakes idle workers.
func (s *Scheduler) tickle() {
	if s.tickleHook != nil {
		s.tickleHook()
	}
	s.cond.Broadcast()
}

func (s *Scheduler) workerMain(worker int) {
	ctx := currentContext()
	ctx.scheduler = s
	ctx.schedulerFiber = ctx.main
	ctx.worker = worker
	defer func() {
		ctx.scheduler = nil
		ctx.schedulerFiber = nil
		ctx.worker = -1
		Detach()
	}()
	s.run(worker)
}

// run is the scheduling loop of a worker.
func (s *Scheduler) run(worker int) {
	s.logger.Debug().
		Str(`scheduler`, s.name).
		Int(`worker`, worker).
		Log(`fiber: worker started`)

	// spare runs func items, recycled until it is left suspended
	var spare *Fiber
	defer func() {
		if spare != nil {
			spare.Close()
		}
	}()

	for {
		item, ok, busy, more := s.take(worker)
		if more {
			s.tickle()
		}
		if !ok {
			if busy {
				runtime.Gosched()
				continue
			}
			if s.park(worker) {
				continue
			}
			break
		}

		spare = s.execute(item, spare)

		s.mu.Lock()
		s.active--
		done := s.canStopLocked()
		s.mu.Unlock()
		if done {
			s.cond.Broadcast()
		}
	}

	s.logger.Debug().
		Str(`scheduler`, s.name).
		Int(`worker`, worker).
		Log(`fiber: worker exited`)
}

// take dequeues the first item runnable by worker. The busy result
// indicates an item was skipped only because its fiber is still being
// suspended. The more result indicates other workers should be woken.
func (s *Scheduler) take(worker int) (item Item, ok, busy, more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.queue.Front(); e != nil; e = e.Next() {
		candidate := e.Value.(Item)
		runnable, inFlight := candidate.runnable(worker)
		if !runnable {
			busy = busy || inFlight
			continue
		}
		s.queue.Remove(e)
		s.active++
		return candidate, true, false, s.queue.Len() != 0
	}
	return Item{}, false, busy, false
}

// park waits until there is work for worker, returning false if the worker
// should exit.
func (s *Scheduler) park(worker int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for e := s.queue.Front(); e != nil; e = e.Next() {
			if ok, busy := e.Value.(Item).runnable(worker); ok || busy {
				return true
			}
		}
		if s.canStopLocked() {
			return false
		}
		s.idle++
		s.cond.Wait()
		s.idle--
	}
}

// execute runs an item on the current worker, returning the fiber to use
// for the next func item, if any.
func (s *Scheduler) execute(item Item, spare *Fiber) *Fiber {
	f := item.fiber
	owned := item.owned
	if f != nil {
		if f.State().Finished() {
			return spare
		}
	} else if spare != nil {
		f, spare, owned = spare, nil, true
		f.Reset(item.fn)
	} else {
		f, owned = New(item.fn, s.fiberOpts...), true
	}

	switch f.SwapIn() {
	case StateReady:
		s.Schedule(Item{fiber: f, thread: item.thread, owned: owned})
	case StateTerm, StateExcept:
		if !owned {
			break
		}
		if spare == nil {
			spare = f
		} else {
			f.Close()
		}
	}
	return spare
}
