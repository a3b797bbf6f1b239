// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package config

import (
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

type (
	// Value is the type-erased view of a Var, as held by a Registry.
	Value interface {
		Name() string
		Description() string
		// TypeName returns the name of the setting's Go type.
		TypeName() string
		// String returns the current value, as YAML.
		String() string
		// FromString parses s as YAML, and sets the value.
		FromString(s string) error

		decodeNode(node *yaml.Node) error
	}

	// Listener is called after the value of a Var changes.
	Listener[T any] func(oldValue, newValue T)

	// Var is a named setting, of type T. Instances must be created via
	// Lookup or MustLookup.
	Var[T any] struct {
		listeners   map[uint64]Listener[T]
		value       T
		name        string
		description string
		nextKey     uint64
		mu          sync.RWMutex
	}
)

// compare unexported fields too, rather than panicking on them
var equalOptions = []cmp.Option{
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

func (x *Var[T]) Name() string { return x.name }

func (x *Var[T]) Description() string { return x.description }

func (x *Var[T]) TypeName() string { return typeName[T]() }

// Value returns the current value.
func (x *Var[T]) Value() T {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.value
}

// SetValue replaces the current value. If the new value differs, each
// listener is called, outside of any lock, in the order they were added.
func (x *Var[T]) SetValue(value T) {
	x.mu.Lock()
	old := x.value
	if cmp.Equal(old, value, equalOptions...) {
		x.mu.Unlock()
		return
	}
	x.value = value
	listeners := x.sortedListeners()
	x.mu.Unlock()

	for _, l := range listeners {
		l(old, value)
	}
}

// AddListener registers fn, returning a key that may be used to remove it.
func (x *Var[T]) AddListener(fn Listener[T]) uint64 {
	if fn == nil {
		panic(`config: nil listener`)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.nextKey++
	if x.listeners == nil {
		x.listeners = make(map[uint64]Listener[T])
	}
	x.listeners[x.nextKey] = fn
	return x.nextKey
}

// RemoveListener removes the listener with the given key, if present.
func (x *Var[T]) RemoveListener(key uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.listeners, key)
}

// ClearListeners removes all listeners.
func (x *Var[T]) ClearListeners() {
	x.mu.Lock()
	defer x.mu.Unlock()
	clear(x.listeners)
}

func (x *Var[T]) String() string {
	b, err := yaml.Marshal(x.Value())
	if err != nil {
		return ``
	}
	return strings.TrimSuffix(string(b), "\n")
}

func (x *Var[T]) FromString(s string) error {
	var value T
	if err := yaml.Unmarshal([]byte(s), &value); err != nil {
		return &DecodeError{Name: x.name, Type: x.TypeName(), Err: err}
	}
	x.SetValue(value)
	return nil
}

func (x *Var[T]) decodeNode(node *yaml.Node) error {
	var value T
	if err := node.Decode(&value); err != nil {
		return &DecodeError{Name: x.name, Type: x.TypeName(), Err: err}
	}
	x.SetValue(value)
	return nil
}

// must be called with the lock held
func (x *Var[T]) sortedListeners() []Listener[T] {
	if len(x.listeners) == 0 {
		return nil
	}
	keys := make([]uint64, 0, len(x.listeners))
	for k := range x.listeners {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	listeners := make([]Listener[T], len(keys))
	for i, k := range keys {
		listeners[i] = x.listeners[k]
	}
	return listeners
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
