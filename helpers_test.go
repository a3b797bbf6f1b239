package fiber

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/go-fiber/thread"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// countingAllocator wraps DefaultStackAllocator, counting calls.
type countingAllocator struct {
	allocs   atomic.Int64
	deallocs atomic.Int64
}

func (x *countingAllocator) Alloc(size uint32) *Stack {
	x.allocs.Add(1)
	return DefaultStackAllocator.Alloc(size)
}

func (x *countingAllocator) Dealloc(stack *Stack) {
	x.deallocs.Add(1)
	DefaultStackAllocator.Dealloc(stack)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

// captureLogs replaces the package logger for the duration of the test.
func captureLogs(t *testing.T, level logiface.Level) *syncBuffer {
	t.Helper()
	var buf syncBuffer
	replaceLogger(t, stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(level),
	).Logger())
	return &buf
}

// quiet disables the package logger for the duration of the test.
func quiet(t *testing.T) {
	t.Helper()
	replaceLogger(t, nil)
}

func replaceLogger(t *testing.T, logger *logiface.Logger[logiface.Event]) {
	old := getLogger()
	SetLogger(logger)
	t.Cleanup(func() { SetLogger(old) })
}

// catchUsage runs fn, returning the *UsageError it panicked with, if any.
func catchUsage(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var usage *UsageError
			if e, ok := r.(error); ok && errors.As(e, &usage) {
				err = usage
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}

// onThread runs fn on a new thread, with its own fiber context, and waits
// for it to finish.
func onThread(name string, fn func()) {
	thread.New(func() {
		defer Detach()
		fn()
	}, name).Join()
}
