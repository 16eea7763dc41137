// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine executes trees of workflow steps against a shared context.
//
// # Overview
//
// A batch is a flat list of Steps. Each step is a leaf with a TaskFunc or a
// group with subtasks. Steps may declare dependencies on other steps of the
// same batch by ID. The batch is validated before anything runs: dangling
// dependencies, cycles, duplicate IDs and steps with both a task and
// subtasks are rejected with a *ConfigurationError.
//
// # Modes
//
// Sequential (default): steps run in declaration order. A step may only
// depend on steps declared before it, so ordering honors every dependency.
//
// Concurrent: steps run as soon as all dependencies have succeeded or been
// skipped, with at most MaxConcurrent in flight through a pool.Window. A
// step whose dependency failed is Blocked and never runs.
//
// Subtasks always run sequentially, in either mode, under the same failure
// policy as the top-level batch.
//
// # Failure Policy
//
// With exit-on-error (default) the first failure stops any new step from
// starting. Running steps are never cancelled; they are awaited. Sequential
// runs return the *StepFailure, concurrent runs return an
// *AggregateFailure that also lists blocked and never-started steps.
//
// Without exit-on-error every independent step runs and all failures are
// returned together in an *AggregateFailure, in declaration order.
//
// # Example
//
//	eng, err := engine.New(engine.WithConcurrent(true), engine.WithMaxConcurrent(2))
//	if err != nil {
//	    return err
//	}
//	wc, err := eng.Execute(ctx, []engine.Step{
//	    engine.Leaf("fetch", fetch, engine.WithID("fetch")),
//	    engine.Leaf("build", build, engine.WithID("build"), engine.WithDependencies("fetch")),
//	}, nil)
package engine
