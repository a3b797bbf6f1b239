// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds settings by name. The zero value is not usable, see
// NewRegistry, and Default.
type Registry struct {
	vars map[string]Value
	mu   sync.RWMutex
}

var defaultRegistry = NewRegistry()

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]Value)}
}

// Default returns the process-wide Registry.
func Default() *Registry {
	return defaultRegistry
}

// Lookup returns the setting with the given name, registering it with the
// provided default value and description, if it does not exist.
func Lookup[T any](r *Registry, name string, defaultValue T, description string) (*Var[T], error) {
	if !validName(name) {
		return nil, fmt.Errorf(`%w: %q`, ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.vars[name]; ok {
		if typed, ok := v.(*Var[T]); ok {
			return typed, nil
		}
		return nil, fmt.Errorf(`%w: %q is %s, not %s`, ErrTypeMismatch, name, v.TypeName(), typeName[T]())
	}

	v := &Var[T]{
		name:        name,
		description: description,
		value:       defaultValue,
	}
	r.vars[name] = v
	return v, nil
}

// MustLookup is Lookup, but panics on error. It is intended for
// package-level declarations.
func MustLookup[T any](r *Registry, name string, defaultValue T, description string) *Var[T] {
	v, err := Lookup(r, name, defaultValue, description)
	if err != nil {
		panic(err)
	}
	return v
}

// Find returns the setting with the given name, or nil if it has not been
// registered.
func Find[T any](r *Registry, name string) (*Var[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	if !ok {
		return nil, nil
	}
	typed, ok := v.(*Var[T])
	if !ok {
		return nil, fmt.Errorf(`%w: %q is %s, not %s`, ErrTypeMismatch, name, v.TypeName(), typeName[T]())
	}
	return typed, nil
}

// Get returns the setting with the given name, or nil.
func (r *Registry) Get(name string) Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vars[name]
}

// Visit calls fn for every registered setting, ordered by name.
func (r *Registry) Visit(fn func(v Value)) {
	r.mu.RLock()
	values := make([]Value, 0, len(r.vars))
	for _, v := range r.vars {
		values = append(values, v)
	}
	r.mu.RUnlock()

	slices.SortFunc(values, func(a, b Value) int { return strings.Compare(a.Name(), b.Name()) })
	for _, v := range values {
		fn(v)
	}
}

// LoadYAML applies a YAML document to the registered settings. Keys are
// lower cased, and nested mappings are flattened into dotted names. Names
// that are not registered are ignored. Every setting that can be decoded is
// applied, and the errors for those that cannot are joined.
func (r *Registry) LoadYAML(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf(`config: parse yaml: %w`, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}

	nodes := make(map[string]*yaml.Node)
	flatten(``, doc.Content[0], nodes)

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		v := r.Get(name)
		if v == nil {
			continue
		}
		if err := v.decodeNode(nodes[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadYAMLFile reads the file at path, then calls LoadYAML.
func (r *Registry) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf(`config: %w`, err)
	}
	return r.LoadYAML(data)
}

func flatten(prefix string, node *yaml.Node, out map[string]*yaml.Node) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if prefix != `` {
		if !validName(prefix) {
			return
		}
		out[prefix] = node
	}
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := strings.ToLower(node.Content[i].Value)
		if prefix != `` {
			key = prefix + `.` + key
		}
		flatten(key, node.Content[i+1], out)
	}
}

func validName(name string) bool {
	if name == `` {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.', c == '_':
		default:
			return false
		}
	}
	return true
}
