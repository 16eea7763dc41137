// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/stepflow/services/workflow/pool"
)

type completion struct {
	index   int
	outcome Outcome
}

// concurrent schedules the batch as a dependency graph.
//
// Description:
//
//	The dispatcher is the only goroutine that reads or writes outcomes.
//	Each pass marks newly blocked steps, then starts ready steps in
//	declaration order while the window has room. Finished steps report back
//	on the done channel.
//
//	When exitOnError is set, the first observed failure stops scheduling.
//	The window is stopped by the failing step itself before its slot is
//	released, so no step queued behind it can start. Steps already running
//	drain normally.
func (r *run) concurrent(ctx context.Context, steps []Step) ([]Outcome, error) {
	e := r.engine
	outcomes := pendingOutcomes(steps, nil)
	if len(steps) == 0 {
		return outcomes, nil
	}

	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.ID != "" {
			index[s.ID] = i
		}
	}

	w, err := pool.NewWindow(e.maxConcurrent, 0)
	if err != nil {
		return outcomes, &ConfigurationError{Detail: err.Error(), Err: ErrInvalidConcurrency}
	}

	done := make(chan completion, len(steps))

	var (
		observed []*StepFailure
		inFlight int
		stopped  bool
		ctxErr   error
	)

	record := func(c completion) {
		inFlight--
		outcomes[c.index] = c.outcome
		if c.outcome.Status != StatusFailed {
			return
		}
		observed = append(observed, failureOf(c.outcome))
		if e.exitOnError && !stopped {
			stopped = true
			w.Stop()
			e.logger.Warn("stopping workflow scheduling after failure",
				slog.String("run_id", r.id),
				slog.String("step", c.outcome.Step.Name()),
				slog.Int("in_flight", inFlight),
			)
		}
	}

	for {
		if !stopped {
			r.markBlocked(ctx, steps, outcomes, index)

			for i := range steps {
				if inFlight >= e.maxConcurrent {
					break
				}
				if outcomes[i].Status != StatusPending || !depsSatisfied(steps[i], outcomes, index) {
					continue
				}
				if err := ctx.Err(); err != nil {
					ctxErr = err
					stopped = true
					w.Stop()
					break
				}

				step, ref := steps[i], outcomes[i].Step
				outcomes[i].Status = StatusRunning
				ok := w.Go(ctx, func(stepCtx context.Context) error {
					o := r.runStep(stepCtx, step, ref)
					done <- completion{index: i, outcome: o}
					if o.Status == StatusFailed && e.exitOnError {
						return o.Err
					}
					return nil
				})
				if !ok {
					outcomes[i].Status = StatusPending
					stopped = true
					break
				}
				inFlight++
			}
		}

		if inFlight == 0 {
			break
		}

		record(<-done)
	drain:
		for inFlight > 0 {
			select {
			case c := <-done:
				record(c)
			default:
				break drain
			}
		}
	}

	_ = w.Wait()

	// Dependents of failures stay blocked even when scheduling stopped early.
	r.markBlocked(ctx, steps, outcomes, index)

	return outcomes, r.concurrentResult(outcomes, observed, ctxErr)
}

func (r *run) concurrentResult(outcomes []Outcome, observed []*StepFailure, ctxErr error) error {
	var blocked []BlockedStep
	var notStarted []string
	for _, o := range outcomes {
		switch o.Status {
		case StatusBlocked:
			blocked = append(blocked, BlockedStep{StepID: o.Step.ID, Title: o.Step.Title, BlockedBy: o.BlockedBy})
		case StatusPending:
			notStarted = append(notStarted, o.Step.Name())
		}
	}

	if len(observed) == 0 {
		if ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
		}
		return nil
	}

	failures := observed
	if !r.engine.exitOnError {
		failures = failures[:0:0]
		for _, o := range outcomes {
			if o.Status == StatusFailed {
				failures = append(failures, failureOf(o))
			}
		}
	}

	return &AggregateFailure{Failures: failures, Blocked: blocked, NotStarted: notStarted}
}

// markBlocked moves pending steps with a failed or blocked dependency to
// Blocked, repeating until nothing changes. BlockedBy lists the failed
// steps at the root of the chain.
func (r *run) markBlocked(ctx context.Context, steps []Step, outcomes []Outcome, index map[string]int) {
	for changed := true; changed; {
		changed = false
		for i, s := range steps {
			if outcomes[i].Status != StatusPending {
				continue
			}

			var roots []string
			for _, dep := range s.Dependencies {
				d := outcomes[index[dep]]
				switch d.Status {
				case StatusFailed:
					roots = appendUnique(roots, d.Step.Name())
				case StatusBlocked:
					for _, b := range d.BlockedBy {
						roots = appendUnique(roots, b)
					}
				}
			}
			if len(roots) == 0 {
				continue
			}

			outcomes[i].Status = StatusBlocked
			outcomes[i].BlockedBy = roots
			changed = true

			r.engine.logger.Warn("step blocked",
				slog.String("run_id", r.id),
				slog.String("step", outcomes[i].Step.Name()),
				slog.Any("blocked_by", roots),
			)
			r.finish(ctx, outcomes[i], false)
		}
	}
}

func depsSatisfied(s Step, outcomes []Outcome, index map[string]int) bool {
	for _, dep := range s.Dependencies {
		if !outcomes[index[dep]].Status.Satisfies() {
			return false
		}
	}
	return true
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
