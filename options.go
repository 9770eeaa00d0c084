// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package desim

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// TerminationMode selects how MaxIterations and MaxSimTime combine (§4.H
// "combined AND/OR").
type TerminationMode uint8

const (
	// TerminationEither stops the run as soon as either limit is reached
	// (the default).
	TerminationEither TerminationMode = iota
	// TerminationBoth stops the run only once both limits are reached.
	TerminationBoth
)

// runtimeOptions holds configuration accumulated by RuntimeOption values.
type runtimeOptions struct {
	buckets           int
	bucketSpan        time.Duration
	maxIterations     uint64
	maxSimTime        SimTime
	hasMaxSimTime     bool
	terminationMode   TerminationMode
	seed              [2]uint64
	defaultStereotype Stereotype
	logger            *logiface.Logger[*stumpy.Event]
	metricsEnabled    bool
	restartRates      map[time.Duration]int
	dropLogRates      map[time.Duration]int
}

// RuntimeOption configures a Runtime instance, in the same functional
// options shape used throughout the rest of this module's ambient stack.
type RuntimeOption interface {
	applyRuntime(*runtimeOptions) error
}

// runtimeOptionImpl implements RuntimeOption.
type runtimeOptionImpl struct {
	applyFunc func(*runtimeOptions) error
}

func (o *runtimeOptionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyFunc(opts)
}

// WithCalendarShape configures the calendar queue's bucket count and span
// (§4.B "Parameters"). buckets must be > 0.
func WithCalendarShape(buckets int, bucketSpan time.Duration) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		if buckets <= 0 {
			return &ConfigError{Message: "calendar queue bucket count must be positive"}
		}
		if bucketSpan <= 0 {
			return &ConfigError{Message: "calendar queue bucket span must be positive"}
		}
		opts.buckets = buckets
		opts.bucketSpan = bucketSpan
		return nil
	}}
}

// WithMaxIterations sets the event-count termination limit (§4.H). Zero
// means unlimited.
func WithMaxIterations(n uint64) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.maxIterations = n
		return nil
	}}
}

// WithMaxSimTime sets the simulated-time termination limit (§4.H).
func WithMaxSimTime(d time.Duration) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.maxSimTime = NewSimTime(d)
		opts.hasMaxSimTime = true
		return nil
	}}
}

// WithTerminationMode selects how MaxIterations and MaxSimTime combine.
func WithTerminationMode(mode TerminationMode) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.terminationMode = mode
		return nil
	}}
}

// WithSeed sets the deterministic PRNG seed (§4.A, I6). Required for
// reproducible runs; a zero seed is valid but should be supplied
// explicitly rather than relying on the zero value, to keep seed choice
// visible at call sites.
func WithSeed(seed [2]uint64) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.seed = seed
		return nil
	}}
}

// WithDefaultStereotype sets the panic-handling stereotype applied to
// modules that do not specify their own (§4.H, §7).
func WithDefaultStereotype(s Stereotype) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.defaultStereotype = s
		return nil
	}}
}

// WithLogger installs a structured logger for lifecycle transitions,
// dropped events, panics, and restarts (see logging.go). Logging is never
// on the critical path of event ordering (P3): a nil or misbehaving
// logger cannot alter simulation results.
func WithLogger(logger *logiface.Logger[*stumpy.Event]) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables dispatch-latency and channel-queue-depth percentile
// tracking (metrics.go). Disabled by default to keep the hot dispatch path
// allocation-free.
func WithMetrics(enabled bool) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithRestartRateLimit bounds how many automatic panic-restarts (§4.H
// stereotype "restart") are permitted per module category within the given
// sliding windows, demoting further restarts to "abort" once exceeded. See
// panic.go. A nil or empty map disables the limit (restarts are
// unconditional), which is not recommended outside of tests.
func WithRestartRateLimit(rates map[time.Duration]int) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.restartRates = rates
		return nil
	}}
}

// WithDropLogRateLimit bounds how often channel drop/overflow signals are
// logged per channel object path within the given sliding windows,
// independent of the restart-rate limiter (see logDrop in logging.go). A
// nil or empty map disables the limit (every signal is logged).
func WithDropLogRateLimit(rates map[time.Duration]int) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.dropLogRates = rates
		return nil
	}}
}

// resolveRuntimeOptions applies RuntimeOption values over the package
// defaults.
func resolveRuntimeOptions(opts []RuntimeOption) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		buckets:         1024,
		bucketSpan:      5 * time.Millisecond,
		terminationMode: TerminationEither,
		restartRates: map[time.Duration]int{
			time.Second: 5,
		},
		dropLogRates: map[time.Duration]int{
			time.Second: 20,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
