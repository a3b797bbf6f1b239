// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"github.com/joeycumines/go-fiber/config"
)

// DefaultStackSize is the default of the `fiber.stack_size` setting.
const DefaultStackSize = 1 << 20

var stackSizeSetting = config.MustLookup(
	config.Default(),
	`fiber.stack_size`,
	uint32(DefaultStackSize),
	`fiber stack size`,
)

func init() {
	stackSizeSetting.AddListener(func(old, new uint32) {
		getLogger().Info().
			Uint64(`old`, uint64(old)).
			Uint64(`new`, uint64(new)).
			Log(`fiber: stack size changed`)
	})
}

// StackSizeSetting returns the `fiber.stack_size` setting, registered with
// config.Default. Changes apply to fibers created afterward.
func StackSizeSetting() *config.Var[uint32] {
	return stackSizeSetting
}
