package fiber

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-fiber/thread"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_useCallerRunsEachOnce(t *testing.T) {
	defer Detach()
	var counts [10]atomic.Int32
	s := NewScheduler(2, true, `test`)
	for i := range counts {
		s.Go(func() { counts[i].Add(1) })
	}
	s.Start()
	s.Stop()

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), i)
	}
	assert.True(t, s.Stopping())
	assert.Zero(t, s.Pending())
	for _, th := range s.threads {
		select {
		case <-th.Done():
		default:
			t.Errorf(`thread %s still running`, th.Name())
		}
	}
	ids := s.ThreadIDs()
	require.Len(t, ids, 2)
	assert.NotZero(t, ids[0])
	assert.NotZero(t, ids[1])
	assert.Nil(t, GetScheduler())
	assert.Equal(t, -1, CurrentWorker())
}

func TestScheduler_affinity(t *testing.T) {
	s := NewScheduler(2, false, `affinity`)
	s.Start()
	var (
		mu      sync.Mutex
		workers []int
		tids    []int
	)
	for range 20 {
		s.Schedule(FuncItem(func() {
			mu.Lock()
			defer mu.Unlock()
			workers = append(workers, CurrentWorker())
			tids = append(tids, thread.ID())
		}, 1))
	}
	s.Stop()

	require.Len(t, workers, 20)
	for i := range workers {
		assert.Equal(t, 1, workers[i])
		assert.Equal(t, s.ThreadIDs()[1], tids[i])
	}
}

func TestScheduler_threadNames(t *testing.T) {
	s := NewScheduler(2, false, `names`)
	s.Start()
	var got [2]string
	for i := range got {
		s.Schedule(FuncItem(func() { got[i] = thread.Name() }, i))
	}
	s.Stop()
	assert.Equal(t, [2]string{`names_0`, `names_1`}, got)
}

func TestScheduler_generatedName(t *testing.T) {
	a := NewScheduler(1, false, ``)
	b := NewScheduler(1, false, ``)
	assert.True(t, strings.HasPrefix(a.Name(), `scheduler-`))
	assert.NotEqual(t, a.Name(), b.Name())
	a.Stop()
	b.Stop()
}

func TestScheduler_tickleOnlyWhenEmpty(t *testing.T) {
	var tickles atomic.Int32
	s := NewScheduler(1, false, `tickle`, WithTickleHook(func() { tickles.Add(1) }))

	s.Go(func() {})
	assert.Equal(t, int32(1), tickles.Load())
	s.Go(func() {})
	s.Go(func() {})
	s.ScheduleAll(FuncItem(func() {}, AnyThread), FuncItem(func() {}, 0))
	assert.Equal(t, int32(1), tickles.Load())
	s.Schedule(Item{})
	assert.Equal(t, 5, s.Pending())
	assert.Equal(t, int32(1), tickles.Load())

	s.Start()
	s.Stop()
	assert.Zero(t, s.Pending())

	tickles.Store(0)
	batch := NewScheduler(1, false, `batch`, WithTickleHook(func() { tickles.Add(1) }))
	batch.ScheduleAll(FuncItem(func() {}, AnyThread), Item{}, FuncItem(func() {}, AnyThread))
	assert.Equal(t, int32(1), tickles.Load())
	assert.Equal(t, 2, batch.Pending())
	batch.Stop()
}

func TestScheduler_stopTwice(t *testing.T) {
	logs := captureLogs(t, logiface.LevelWarning)
	s := NewScheduler(2, false, `twice`)
	s.Start()
	var ran atomic.Int32
	s.Go(func() { ran.Add(1) })
	s.Stop()
	s.Stop()
	s.Start()
	assert.Equal(t, int32(1), ran.Load())

	s.Go(func() { ran.Add(1) })
	assert.Zero(t, s.Pending())
	assert.Equal(t, int32(1), ran.Load())
	assert.Contains(t, logs.String(), `fiber: scheduler stopped, dropping items`)
}

func TestScheduler_stopWithoutStart(t *testing.T) {
	s := NewScheduler(3, false, `lazy`)
	var ran atomic.Int32
	for i := range 3 {
		s.Schedule(FuncItem(func() { ran.Add(1) }, i))
	}
	s.Stop()
	assert.Equal(t, int32(3), ran.Load())
}

func TestScheduler_yieldToReady(t *testing.T) {
	s := NewScheduler(3, false, `ready`)
	s.Start()
	var steps atomic.Int32
	for range 8 {
		s.Go(func() {
			for range 3 {
				steps.Add(1)
				YieldToReady()
			}
			steps.Add(1)
		})
	}
	s.Stop()
	assert.Equal(t, int32(32), steps.Load())
}

func TestScheduler_holdResumedExternally(t *testing.T) {
	s := NewScheduler(2, false, `hold`)
	s.Start()
	held := make(chan *Fiber, 1)
	var resumed atomic.Bool
	s.Go(func() {
		held <- GetThis()
		YieldToHold()
		resumed.Store(true)
	})

	f := <-held
	assert.Eventually(t, func() bool { return f.State() == StateHold }, 5*time.Second, time.Millisecond)
	assert.False(t, resumed.Load())
	s.Schedule(FiberItem(f, AnyThread))
	s.Stop()
	assert.True(t, resumed.Load())
	assert.Equal(t, StateTerm, f.State())
}

func TestScheduler_resumeBeforeSuspended(t *testing.T) {
	s := NewScheduler(4, false, `race`)
	s.Start()
	var done atomic.Int32
	for range 50 {
		s.Go(func() {
			f := GetThis()
			// resumed while possibly still being suspended
			s.Schedule(FiberItem(f, AnyThread))
			YieldToHold()
			done.Add(1)
		})
	}
	s.Stop()
	assert.Equal(t, int32(50), done.Load())
}

func TestScheduler_faultDoesNotStopWorkers(t *testing.T) {
	logs := captureLogs(t, logiface.LevelError)
	s := NewScheduler(1, false, `faults`)
	var ran atomic.Int32
	s.Go(func() { panic(`task failed`) })
	s.Go(func() { ran.Add(1) })
	s.Start()
	s.Stop()
	assert.Equal(t, int32(1), ran.Load())
	assert.Contains(t, logs.String(), `task failed`)
}

func TestScheduler_recyclesFibers(t *testing.T) {
	var alloc countingAllocator
	s := NewScheduler(1, false, `recycle`, WithFiberOptions(WithStackAllocator(&alloc)))
	var ran atomic.Int32
	for range 50 {
		s.Go(func() { ran.Add(1) })
	}
	s.Start()
	s.Stop()
	assert.Equal(t, int32(50), ran.Load())
	assert.Equal(t, int64(1), alloc.allocs.Load())
	assert.Equal(t, int64(1), alloc.deallocs.Load())
}

func TestScheduler_currentScheduler(t *testing.T) {
	defer Detach()
	s := NewScheduler(2, true, `current`)
	var (
		mu    sync.Mutex
		seen  = map[int]*Scheduler{}
		mains = map[int]*Fiber{}
	)
	for i := range 2 {
		s.Schedule(FuncItem(func() {
			mu.Lock()
			defer mu.Unlock()
			seen[i] = GetScheduler()
			mains[i] = GetMainFiber()
			assert.NotSame(t, GetThis(), GetMainFiber())
		}, i))
	}
	s.Start()
	s.Stop()

	assert.Same(t, s, seen[0])
	assert.Same(t, s, seen[1])
	assert.Same(t, s.rootFiber, mains[0])
	if assert.NotNil(t, mains[1]) {
		assert.Zero(t, mains[1].ID())
	}
	assert.Nil(t, GetScheduler())
}

func TestScheduler_scheduleFromTask(t *testing.T) {
	s := NewScheduler(2, false, `nested`)
	s.Start()
	var ran atomic.Int32
	s.Go(func() {
		for range 10 {
			GetScheduler().Go(func() { ran.Add(1) })
		}
	})
	s.Stop()
	assert.Equal(t, int32(10), ran.Load())
}

func TestScheduler_usageErrors(t *testing.T) {
	quiet(t)
	assert.ErrorIs(t, catchUsage(func() { NewScheduler(0, false, ``) }), ErrInvalidThreadCount)

	s := NewScheduler(2, false, `usage`)
	defer s.Stop()
	assert.ErrorIs(t, catchUsage(func() { s.Schedule(FuncItem(func() {}, 2)) }), ErrInvalidAffinity)
	assert.ErrorIs(t, catchUsage(func() { s.Schedule(FuncItem(func() {}, -2)) }), ErrInvalidAffinity)
	assert.ErrorIs(t, catchUsage(func() {
		s.ScheduleAll(FuncItem(func() {}, 0), FuncItem(func() {}, 5))
	}), ErrInvalidAffinity)
	assert.Zero(t, s.Pending())
}

func TestScheduler_stopFromOtherGoroutine(t *testing.T) {
	quiet(t)
	defer Detach()
	s := NewScheduler(1, true, `caller`)
	errs := make(chan error, 1)
	go func() { errs <- catchUsage(s.Stop) }()
	assert.ErrorIs(t, <-errs, ErrNotCaller)
	s.Stop()
	go func() { errs <- catchUsage(s.Stop) }()
	assert.NoError(t, <-errs)
}

func TestScheduler_stopFromTask(t *testing.T) {
	quiet(t)
	s := NewScheduler(1, false, `self`)
	errs := make(chan error, 1)
	s.Go(func() { errs <- catchUsage(s.Stop) })
	s.Start()
	assert.ErrorIs(t, <-errs, ErrInvalidState)
	s.Stop()
}

func TestScheduler_withLogger(t *testing.T) {
	var buf syncBuffer
	s := NewScheduler(1, false, `logged`, WithLogger(NewLogger(&buf, logiface.LevelInformational)))
	s.Start()
	s.Stop()
	assert.Contains(t, buf.String(), `fiber: scheduler started`)
	assert.Contains(t, buf.String(), `fiber: scheduler stopped`)
	assert.Contains(t, buf.String(), `logged`)

	silent := NewScheduler(1, false, `silent`, WithLogger(nil))
	var ran atomic.Bool
	silent.Go(func() { ran.Store(true) })
	silent.Stop()
	assert.True(t, ran.Load())
}

func TestScheduler_callerThreadIdentity(t *testing.T) {
	defer Detach()
	s := NewScheduler(2, true, `named`)
	var (
		names [2]string
		tids  [2]int
	)
	for i := range 2 {
		s.Schedule(FuncItem(func() {
			names[i] = thread.Name()
			tids[i] = thread.ID()
		}, i))
	}
	s.Start()
	s.Stop()

	ids := s.ThreadIDs()
	assert.Equal(t, [2]string{`named`, `named_1`}, names)
	assert.Equal(t, ids[0], tids[0])
	assert.Equal(t, ids[1], tids[1])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Nil(t, thread.Current())
	assert.Equal(t, thread.UnknownName, thread.Name())
}

func TestScheduler_usageErrorInCallerLoop(t *testing.T) {
	quiet(t)
	s := NewScheduler(1, true, `broken`)
	closed := New(func() {})
	closed.Close()
	var ran atomic.Bool
	s.Schedule(FiberItem(closed, 0))
	s.Go(func() { ran.Store(true) })

	assert.ErrorIs(t, catchUsage(s.Stop), ErrStackReleased)
	assert.False(t, ran.Load())
	assert.Equal(t, StateExcept, s.rootFiber.State())
}

func TestScheduler_usageErrorInTask(t *testing.T) {
	quiet(t)
	s := NewScheduler(1, true, `misuse`)
	s.Go(func() { s.Schedule(FuncItem(func() {}, 7)) })

	assert.ErrorIs(t, catchUsage(s.Stop), ErrInvalidAffinity)
}

func TestScheduler_startConcurrent(t *testing.T) {
	s := NewScheduler(3, false, `concurrent`)
	var (
		wg  sync.WaitGroup
		ran atomic.Int32
	)
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start()
		}()
		go func() {
			defer wg.Done()
			s.Go(func() { ran.Add(1) })
			_ = s.Pending()
		}()
	}
	wg.Wait()

	ids := s.ThreadIDs()
	assert.Len(t, s.threads, 3)
	assert.NotZero(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
	s.Stop()
	assert.Equal(t, int32(4), ran.Load())
}

func TestScheduler_fiberReusedAfterReturn(t *testing.T) {
	s := NewScheduler(1, false, `reuse`)
	var handles [2]*Fiber
	for i := range handles {
		s.Go(func() { handles[i] = GetThis() })
	}
	s.Start()
	s.Stop()
	assert.Same(t, handles[0], handles[1])
}
