// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command fiberdemo exercises the fiber package: a fiber passed between
// threads, then a scheduler running tasks that yield.
//
// Settings are read from an optional YAML file, then from -set flags, e.g.
//
//	fiberdemo -config demo.yaml -set demo.tasks=100 -set fiber.stack_size=65536
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-fiber"
	"github.com/joeycumines/go-fiber/config"
	"github.com/joeycumines/go-fiber/thread"
	"github.com/joeycumines/logiface"
)

var (
	threadsSetting = config.MustLookup(config.Default(), `demo.threads`, 4, `scheduler worker threads`)
	tasksSetting   = config.MustLookup(config.Default(), `demo.tasks`, 32, `tasks to schedule`)
	yieldsSetting  = config.MustLookup(config.Default(), `demo.yields`, 3, `times each task yields`)
	callerSetting  = config.MustLookup(config.Default(), `demo.use_caller`, true, `run worker 0 on the main thread`)
	levelSetting   = config.MustLookup(config.Default(), `log.level`, `info`, `log level`)
)

// overrides collects -set flags
type overrides []string

func (x *overrides) String() string { return strings.Join(*x, `,`) }

func (x *overrides) Set(s string) error {
	if !strings.Contains(s, `=`) {
		return fmt.Errorf(`expected name=value, got %q`, s)
	}
	*x = append(*x, s)
	return nil
}

func main() {
	var sets overrides
	configPath := flag.String(`config`, ``, `YAML settings file`)
	list := flag.Bool(`list`, false, `list settings and exit`)
	flag.Var(&sets, `set`, `override a setting, as name=value (repeatable)`)
	flag.Parse()

	if err := loadSettings(*configPath, sets); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *list {
		config.Default().Visit(func(v config.Value) {
			fmt.Printf("%s (%s) = %s\n\t%s\n", v.Name(), v.TypeName(), v.String(), v.Description())
		})
		return
	}

	level, err := parseLevel(levelSetting.Value())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := fiber.NewLogger(os.Stderr, level)
	fiber.SetLogger(logger)

	pingPong(logger)
	runScheduler(logger)
}

func loadSettings(path string, sets overrides) error {
	r := config.Default()
	if path != `` {
		if err := r.LoadYAMLFile(path); err != nil {
			return err
		}
	}
	var errs []error
	for _, s := range sets {
		name, value, _ := strings.Cut(s, `=`)
		v := r.Get(strings.ToLower(name))
		if v == nil {
			errs = append(errs, fmt.Errorf(`unknown setting %q`, name))
			continue
		}
		if err := v.FromString(value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if strings.EqualFold(level.String(), s) {
			return level, nil
		}
	}
	return 0, fmt.Errorf(`invalid log level %q`, s)
}

// pingPong passes one fiber between two threads, resuming it from each in
// turn.
func pingPong(logger *logiface.Logger[logiface.Event]) {
	f := fiber.New(func() {
		for i := range 4 {
			logger.Info().
				Int(`step`, i).
				Str(`thread`, thread.Name()).
				Uint64(`fiber`, fiber.GetFiberID()).
				Log(`ping pong`)
			fiber.YieldToHold()
		}
	})
	defer f.Close()

	for i := 0; !f.State().Finished(); i++ {
		thread.New(func() {
			defer fiber.Detach()
			f.SwapIn()
		}, fmt.Sprintf(`pingpong_%d`, i%2)).Join()
	}
}

func runScheduler(logger *logiface.Logger[logiface.Event]) {
	defer fiber.Detach()

	var steps atomic.Int64
	start := time.Now()
	s := fiber.NewScheduler(threadsSetting.Value(), callerSetting.Value(), `demo`)
	s.Start()
	for range tasksSetting.Value() {
		s.Go(func() {
			for range yieldsSetting.Value() {
				steps.Add(1)
				fiber.YieldToReady()
			}
			steps.Add(1)
		})
	}
	s.Stop()

	logger.Info().
		Str(`scheduler`, s.Name()).
		Int(`tasks`, tasksSetting.Value()).
		Int64(`steps`, steps.Load()).
		Int64(`live_fibers`, fiber.TotalFibers()).
		Dur(`elapsed`, time.Since(start)).
		Log(`scheduler finished`)
}
