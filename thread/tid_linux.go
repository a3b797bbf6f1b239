// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package thread

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxOSNameLen is the limit imposed by the kernel, excluding the NUL.
const maxOSNameLen = 15

func osThreadID() int {
	return unix.Gettid()
}

// setOSThreadName names the calling OS thread, as shown by tools like top.
// The calling goroutine must be locked to its thread.
func setOSThreadName(name string) error {
	if len(name) > maxOSNameLen {
		name = name[:maxOSNameLen]
	}
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}
