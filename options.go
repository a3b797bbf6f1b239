// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiber

import (
	"github.com/joeycumines/logiface"
)

// fiberOptions holds configuration options for Fiber creation.
type fiberOptions struct {
	allocator StackAllocator
	stackSize uint32
}

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger     *logiface.Logger[logiface.Event]
	tickleHook func()
	fiberOpts  []Option
	hasLogger  bool
}

// --- Fiber Options ---

// Option configures a Fiber.
type Option interface {
	applyFiber(*fiberOptions) error
}

type fiberOptionImpl struct {
	applyFiberFunc func(*fiberOptions) error
}

func (o *fiberOptionImpl) applyFiber(opts *fiberOptions) error {
	return o.applyFiberFunc(opts)
}

// WithStackSize sets the stack size of the fiber. Zero, the default, uses
// the current value of the `fiber.stack_size` setting.
func WithStackSize(size uint32) Option {
	return &fiberOptionImpl{func(opts *fiberOptions) error {
		opts.stackSize = size
		return nil
	}}
}

// WithStackAllocator sets the allocator used to obtain and release the
// fiber's stack. Defaults to DefaultStackAllocator.
func WithStackAllocator(allocator StackAllocator) Option {
	return &fiberOptionImpl{func(opts *fiberOptions) error {
		if allocator == nil {
			return ErrStackAlloc
		}
		opts.allocator = allocator
		return nil
	}}
}

func resolveFiberOptions(opts []Option) (*fiberOptions, error) {
	cfg := &fiberOptions{
		allocator: DefaultStackAllocator,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyFiber(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Scheduler Options ---

// SchedulerOption configures a Scheduler.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger sets the logger used by the scheduler. A nil logger disables
// its logging. Defaults to the package logger, see SetLogger.
func WithLogger(logger *logiface.Logger[logiface.Event]) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		opts.hasLogger = true
		return nil
	}}
}

// WithTickleHook registers a func called each time the scheduler wakes its
// idle workers.
func WithTickleHook(fn func()) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.tickleHook = fn
		return nil
	}}
}

// WithFiberOptions sets the options used for fibers the scheduler creates,
// to run func items.
func WithFiberOptions(opts ...Option) SchedulerOption {
	return &schedulerOptionImpl{func(cfg *schedulerOptions) error {
		if _, err := resolveFiberOptions(opts); err != nil {
			return err
		}
		cfg.fiberOpts = append(cfg.fiberOpts, opts...)
		return nil
	}}
}

func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.hasLogger {
		cfg.logger = getLogger()
	}
	return cfg, nil
}
