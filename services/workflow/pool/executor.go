// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import (
	"context"
	"log/slog"
	"time"
)

// Task is one unit of work run by an Executor.
type Task[T any] func(ctx context.Context) (T, error)

// Option configures an Executor.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout applies a deadline to the context of every task.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the executor logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Executor runs independent tasks with bounded concurrency.
//
// Description:
//
//	ExecuteAll keeps at most maxConcurrent tasks unsettled at any time,
//	starting the next not-yet-started task in input order whenever a slot
//	frees. Results are returned in input order. The first failure stops new
//	tasks from starting; tasks already running are not cancelled and are
//	awaited before ExecuteAll returns.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Each ExecuteAll call has its own
//	window.
type Executor[T any] struct {
	maxConcurrent int
	timeout       time.Duration
	logger        *slog.Logger
}

// NewExecutor creates an executor.
//
// Inputs:
//
//	maxConcurrent - Maximum tasks in flight. Must be > 0.
//	opts - WithTimeout, WithLogger.
//
// Outputs:
//
//	*Executor[T] - The executor.
//	error - *ConfigError wrapping ErrInvalidConcurrency if maxConcurrent <= 0.
func NewExecutor[T any](maxConcurrent int, opts ...Option) (*Executor[T], error) {
	if maxConcurrent <= 0 {
		return nil, &ConfigError{Field: "maxConcurrent", Value: maxConcurrent, Err: ErrInvalidConcurrency}
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Executor[T]{
		maxConcurrent: maxConcurrent,
		timeout:       o.timeout,
		logger:        o.logger,
	}, nil
}

// MaxConcurrent returns the concurrency bound.
func (e *Executor[T]) MaxConcurrent() int {
	return e.maxConcurrent
}

// ExecuteAll runs tasks and returns their results in input order.
//
// Inputs:
//
//	ctx - Passed to every task. Cancellation stops new tasks from starting.
//	tasks - The tasks. Must not contain nil entries.
//
// Outputs:
//
//	[]T - Results, index-aligned with tasks. On failure, entries of tasks
//	      that failed or never started hold the zero value.
//	error - *TaskError for the first-observed failure, ctx.Err() if the
//	        context ended first, or *ConfigError for invalid input.
func (e *Executor[T]) ExecuteAll(ctx context.Context, tasks []Task[T]) ([]T, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(tasks) == 0 {
		return []T{}, nil
	}
	for i, task := range tasks {
		if task == nil {
			return nil, &ConfigError{Field: "tasks", Value: i, Err: ErrNilTask}
		}
	}

	w, err := NewWindow(e.maxConcurrent, e.timeout)
	if err != nil {
		return nil, err
	}

	results := make([]T, len(tasks))
	started := 0
	var ctxErr error

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			w.Stop()
			break
		}

		ok := w.Go(ctx, func(taskCtx context.Context) error {
			value, err := task(taskCtx)
			if err != nil {
				return &TaskError{Index: i, Err: err}
			}
			results[i] = value
			return nil
		})
		if !ok {
			break
		}
		started++
	}

	err = w.Wait()
	if err == nil {
		err = ctxErr
	}

	if err != nil {
		e.logger.Warn("bounded execution stopped early",
			slog.Int("tasks", len(tasks)),
			slog.Int("started", started),
			slog.Int("max_concurrent", e.maxConcurrent),
			slog.String("error", err.Error()),
		)
		return results, err
	}

	e.logger.Debug("bounded execution completed",
		slog.Int("tasks", len(tasks)),
		slog.Int("peak_in_flight", w.Peak()),
	)
	return results, nil
}
