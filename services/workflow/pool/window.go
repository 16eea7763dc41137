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
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Window is a fixed-size in-flight window of goroutines.
//
// Description:
//
//	Go blocks until one of the limit slots is free and then starts the
//	function. The first function to return an error stops the window: no
//	further function starts, while those already running are left to
//	finish. Wait blocks until every started function has returned and
//	reports the first error observed.
//
// Thread Safety:
//
//	Go may be called from one dispatching goroutine at a time. Stop,
//	Stopped, InFlight and Peak are safe from any goroutine.
type Window struct {
	group   errgroup.Group
	limit   int
	timeout time.Duration

	stopped  atomic.Bool
	inFlight atomic.Int64
	peak     atomic.Int64

	mu       sync.Mutex
	firstErr error
}

// NewWindow creates a window allowing at most limit concurrent functions.
//
// Inputs:
//
//	limit - Maximum functions in flight. Must be > 0.
//	timeout - Per-function deadline applied to the function's context.
//	          Zero means no deadline.
//
// Outputs:
//
//	*Window - The window.
//	error - *ConfigError wrapping ErrInvalidConcurrency if limit <= 0.
func NewWindow(limit int, timeout time.Duration) (*Window, error) {
	if limit <= 0 {
		return nil, &ConfigError{Field: "maxConcurrent", Value: limit, Err: ErrInvalidConcurrency}
	}

	w := &Window{limit: limit, timeout: timeout}
	w.group.SetLimit(limit)
	return w, nil
}

// Go starts fn once a slot is free.
//
// Outputs:
//
//	bool - False if the window was stopped before fn could start; fn was
//	       not called.
func (w *Window) Go(ctx context.Context, fn func(ctx context.Context) error) bool {
	if w.stopped.Load() {
		return false
	}

	started := make(chan bool, 1)
	w.group.Go(func() error {
		// A failure may land while we were waiting for the slot.
		if w.stopped.Load() {
			started <- false
			return nil
		}
		started <- true

		w.enter()
		defer w.inFlight.Add(-1)

		taskCtx := ctx
		if w.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(ctx, w.timeout)
			defer cancel()
		}

		if err := fn(taskCtx); err != nil {
			w.fail(err)
			return err
		}
		return nil
	})

	return <-started
}

// Stop prevents any further function from starting.
func (w *Window) Stop() {
	w.stopped.Store(true)
}

// Stopped reports whether the window has been stopped.
func (w *Window) Stopped() bool {
	return w.stopped.Load()
}

// InFlight returns the number of functions currently running.
func (w *Window) InFlight() int {
	return int(w.inFlight.Load())
}

// Peak returns the highest number of functions that ran at once.
func (w *Window) Peak() int {
	return int(w.peak.Load())
}

// Limit returns the configured window size.
func (w *Window) Limit() int {
	return w.limit
}

// Wait blocks until all started functions return.
//
// Outputs:
//
//	error - The first error returned by any function, or nil.
func (w *Window) Wait() error {
	_ = w.group.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

func (w *Window) enter() {
	n := w.inFlight.Add(1)
	for {
		p := w.peak.Load()
		if n <= p || w.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (w *Window) fail(err error) {
	w.mu.Lock()
	if w.firstErr == nil {
		w.firstErr = err
	}
	w.mu.Unlock()
	w.stopped.Store(true)
}
