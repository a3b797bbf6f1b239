// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when a setting name is empty, or contains
	// characters other than lower case letters, digits, '.' and '_'.
	ErrInvalidName = errors.New(`config: invalid name`)

	// ErrTypeMismatch is returned when a name is already registered with a
	// different type.
	ErrTypeMismatch = errors.New(`config: type mismatch`)
)

// DecodeError indicates a value could not be decoded into a setting's type.
type DecodeError struct {
	Err  error
	Name string
	Type string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(`config: decode %q as %s: %v`, e.Name, e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
