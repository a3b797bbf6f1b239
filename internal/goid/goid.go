// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package goid identifies the calling goroutine.
package goid

import (
	"runtime"
)

// Get returns the current goroutine's ID, parsed from the header of the
// runtime stack trace ("goroutine N [...").
//
// Goroutine IDs are never reused, which makes them usable as registry keys
// for per-goroutine state, without risk of a stale entry being adopted.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
