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
)

// sequential runs steps one at a time in declaration order.
//
// Used for the top-level batch in sequential mode and for every subtask
// list in either mode. Dependencies are already satisfied by ordering and
// validation, so they are not consulted here.
func (r *run) sequential(ctx context.Context, steps []Step, parent []int) ([]Outcome, error) {
	outcomes := pendingOutcomes(steps, parent)
	var failures []*StepFailure

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return outcomes, interrupted(outcomes, failures, nil, err)
		}

		outcomes[i] = r.runStep(ctx, s, outcomes[i].Step)
		if outcomes[i].Status != StatusFailed {
			continue
		}

		sf := failureOf(outcomes[i])
		if r.engine.exitOnError {
			return outcomes, sf
		}
		failures = append(failures, sf)
	}

	if len(failures) > 0 {
		return outcomes, &AggregateFailure{Failures: failures}
	}
	return outcomes, nil
}

// interrupted builds the error for a run whose context ended early.
func interrupted(outcomes []Outcome, failures []*StepFailure, blocked []BlockedStep, cause error) error {
	var notStarted []string
	for _, o := range outcomes {
		if o.Status == StatusPending {
			notStarted = append(notStarted, o.Step.Name())
		}
	}

	if len(failures) == 0 {
		return fmt.Errorf("%w: %w", ErrInterrupted, cause)
	}
	return &AggregateFailure{Failures: failures, Blocked: blocked, NotStarted: notStarted}
}
