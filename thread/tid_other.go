// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package thread

import (
	"github.com/joeycumines/go-fiber/internal/goid"
)

// osThreadID falls back to the goroutine id, which is stable for a
// goroutine locked to its thread, and unique for the life of the process.
func osThreadID() int {
	return int(goid.Get())
}

func setOSThreadName(string) error {
	return nil
}
