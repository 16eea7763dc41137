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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the engine package.
var (
	// ErrNilContext is returned when a nil context.Context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidConcurrency is returned when maxConcurrent is not positive.
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")

	// ErrDanglingDependency is returned when a dependency names no step in the batch.
	ErrDanglingDependency = errors.New("dependency does not resolve to a step in the batch")

	// ErrCycleDetected is returned when the dependency graph has a cycle.
	ErrCycleDetected = errors.New("cycle detected in step dependencies")

	// ErrForwardDependency is returned when a step run in declaration order
	// depends on a step declared after it.
	ErrForwardDependency = errors.New("dependency is declared after the step")

	// ErrDuplicateID is returned when two steps of a batch share an ID.
	ErrDuplicateID = errors.New("duplicate step id")

	// ErrAmbiguousStep is returned when a step sets both a task and subtasks.
	ErrAmbiguousStep = errors.New("step has both a task and subtasks")

	// ErrMissingID is returned when a step declares dependencies without an ID.
	ErrMissingID = errors.New("step with dependencies must have an id")

	// ErrStepPanicked wraps a panic raised by a task.
	ErrStepPanicked = errors.New("step panicked")

	// ErrInterrupted is returned when the context ends before all steps start.
	ErrInterrupted = errors.New("workflow interrupted")
)

// ConfigurationError reports a malformed engine setup or step batch.
//
// It is always returned before any step runs.
type ConfigurationError struct {
	// Step names the offending step, empty for engine settings.
	Step string

	// Cycle is the dependency path when Err is ErrCycleDetected.
	Cycle []string

	Detail string
	Err    error
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("workflow configuration: ")
	if e.Step != "" {
		fmt.Fprintf(&b, "step %q: ", e.Step)
	}
	b.WriteString(e.Err.Error())
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Cycle, " -> "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StepFailure wraps the error of a failed step.
type StepFailure struct {
	StepID string
	Title  string
	Err    error
}

// Error returns the error message.
func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.name(), e.Err)
}

// Unwrap returns the underlying error.
func (e *StepFailure) Unwrap() error {
	return e.Err
}

func (e *StepFailure) name() string {
	if e.StepID != "" {
		return e.StepID
	}
	return e.Title
}

// NewStepFailure creates a StepFailure for ref.
func NewStepFailure(ref StepRef, err error) *StepFailure {
	return &StepFailure{StepID: ref.ID, Title: ref.Title, Err: err}
}

// BlockedStep describes a step that never ran because a dependency failed.
type BlockedStep struct {
	StepID    string
	Title     string
	BlockedBy []string
}

// AggregateFailure collects every failure of a run.
//
// Description:
//
//	Failures holds the failed steps. Blocked holds steps that were never run
//	because a dependency failed. NotStarted holds steps that were still
//	pending when scheduling stopped.
type AggregateFailure struct {
	Failures   []*StepFailure
	Blocked    []BlockedStep
	NotStarted []string
}

// Error returns the error message.
func (e *AggregateFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d step(s) failed", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.name(), f.Err)
	}
	if len(e.Blocked) > 0 {
		names := make([]string, len(e.Blocked))
		for i, bs := range e.Blocked {
			names[i] = bs.StepID
		}
		fmt.Fprintf(&b, "; blocked: %s", strings.Join(names, ", "))
	}
	if len(e.NotStarted) > 0 {
		fmt.Fprintf(&b, "; not started: %s", strings.Join(e.NotStarted, ", "))
	}
	return b.String()
}

// Unwrap returns the individual step failures.
func (e *AggregateFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// FailedIDs returns the names of the failed steps in order.
func (e *AggregateFailure) FailedIDs() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.name()
	}
	return out
}
