// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var (
	globalLogger struct {
		sync.RWMutex
		logger *logiface.Logger[logiface.Event]
	}

	// faultLimiter bounds logging of recovered panics, per fiber body
	faultLimiter = catrate.NewLimiter(map[time.Duration]int{
		time.Second: 5,
		time.Minute: 60,
	})
)

func init() {
	globalLogger.logger = NewLogger(os.Stderr, logiface.LevelWarning)
}

// NewLogger returns a JSON logger writing to w, at the given level, which
// may be passed to SetLogger or WithLogger.
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// SetLogger replaces the package logger, used for diagnostics not
// attributable to a Scheduler with its own logger. A nil logger disables
// logging. The default logs warnings and above to stderr.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

func getLogger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// logFault logs a recovered panic, subject to faultLimiter, keyed on the
// body's code pointer, so a single misbehaving task cannot flood the log.
func logFault(id uint64, fn func(), err error) {
	b := getLogger().Err()
	if !b.Enabled() {
		return
	}
	var category any = `nil`
	if fn != nil {
		category = reflect.ValueOf(fn).Pointer()
	}
	if _, ok := faultLimiter.Allow(category); !ok {
		b.Release()
		return
	}
	b = b.Uint64(`fiber`, id).Err(err)
	if pe, ok := err.(*PanicError); ok {
		b = b.Str(`stack`, string(pe.Stack))
	}
	b.Log(`fiber: body failed`)
}
