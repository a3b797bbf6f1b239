// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package config implements a registry of named, typed settings, that may be
// changed at runtime, e.g. by loading a YAML document, with listeners being
// notified of each change.
//
// Settings are declared once, typically as package-level variables:
//
//	var stackSize = config.MustLookup(config.Default(), `fiber.stack_size`, uint32(1<<20), `fiber stack size in bytes`)
//
// Names are dotted paths, consisting of lower case letters, digits, '.'
// and '_'. When a YAML document is loaded, nested mappings are flattened to
// dotted paths, and every path that names a registered setting is decoded
// into that setting's type:
//
//	fiber:
//	  stack_size: 131072
//
// Values are compared using go-cmp, so a load that leaves a setting unchanged
// does not notify its listeners.
package config
