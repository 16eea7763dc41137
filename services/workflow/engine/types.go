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
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Step Definition
// =============================================================================

// TaskFunc is the body of a leaf step.
//
// The returned value is recorded in the step's Outcome. Tasks share wc with
// every other step of the run; writes from steps with no dependency between
// them may interleave in any order.
type TaskFunc func(ctx context.Context, wc *Context, h Helpers) (any, error)

// SkipFunc decides, immediately before a step would run, whether to skip it.
type SkipFunc func(wc *Context) bool

// Helpers is the presentation surface handed to a running task.
//
// Calls are side effects for the Reporter and never affect scheduling.
type Helpers interface {
	// SetTitle replaces the display title of the running step.
	SetTitle(title string)

	// Status emits a one-line progress message for the running step.
	Status(msg string)
}

// Step is one node of a workflow batch.
//
// Description:
//
//	A step is either a leaf (Task set) or a group (Subtasks set). Setting
//	both is rejected before anything runs. A step with neither is a no-op
//	that succeeds.
//
//	ID is required when the step declares Dependencies or when another step
//	depends on it. Dependencies name steps of the same batch; subtasks form
//	their own batch and always run sequentially.
type Step struct {
	ID           string
	Title        string
	Task         TaskFunc
	Subtasks     []Step
	Skip         SkipFunc
	Dependencies []string
}

// StepOption configures a Step built with Leaf or Group.
type StepOption func(*Step)

// WithID sets the step ID.
func WithID(id string) StepOption {
	return func(s *Step) { s.ID = id }
}

// WithSkip sets the skip predicate.
func WithSkip(fn SkipFunc) StepOption {
	return func(s *Step) { s.Skip = fn }
}

// WithDependencies appends dependency IDs.
func WithDependencies(ids ...string) StepOption {
	return func(s *Step) { s.Dependencies = append(s.Dependencies, ids...) }
}

// Leaf creates a step that runs task.
func Leaf(title string, task TaskFunc, opts ...StepOption) Step {
	s := Step{Title: title, Task: task}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Group creates a step whose subtasks run sequentially.
func Group(title string, subtasks []Step, opts ...StepOption) Step {
	s := Step{Title: title, Subtasks: subtasks}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// IsGroup reports whether the step has subtasks.
func (s Step) IsGroup() bool {
	return len(s.Subtasks) > 0
}

// =============================================================================
// Outcomes
// =============================================================================

// Status is the lifecycle state of a step.
//
// Pending -> {Skipped | Running -> {Succeeded | Failed}} | Blocked.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusSkipped, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Satisfies reports whether a dependency in this status lets dependents run.
func (s Status) Satisfies() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// StepRef identifies a step within a run.
//
// Path is the index path from the top-level batch, so {1, 0} is the first
// subtask of the second top-level step.
type StepRef struct {
	ID    string
	Title string
	Path  []int
}

// Name returns the ID, else the title, else the index path.
func (r StepRef) Name() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Title != "" {
		return r.Title
	}
	return "#" + r.PathString()
}

// PathString formats Path as "1.0".
func (r StepRef) PathString() string {
	parts := make([]string, len(r.Path))
	for i, p := range r.Path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// Depth is the nesting level, 0 for top-level steps.
func (r StepRef) Depth() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}

func childRef(parent []int, index int, s Step) StepRef {
	path := make([]int, len(parent)+1)
	copy(path, parent)
	path[len(parent)] = index
	return StepRef{ID: s.ID, Title: s.Title, Path: path}
}

// Outcome is the result of one step.
type Outcome struct {
	Step   StepRef
	Status Status

	// Value is what the task returned. Nil for groups and non-leaf outcomes.
	Value any

	// Err is a *StepFailure when Status is StatusFailed.
	Err error

	// BlockedBy lists the failed steps that prevented this one from running.
	BlockedBy []string

	// Children holds subtask outcomes for groups, in declaration order.
	Children []Outcome

	Duration time.Duration
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusFailed:
		return fmt.Sprintf("%s: %s (%v)", o.Step.Name(), o.Status, o.Err)
	case StatusBlocked:
		return fmt.Sprintf("%s: %s by %s", o.Step.Name(), o.Status, strings.Join(o.BlockedBy, ", "))
	default:
		return fmt.Sprintf("%s: %s", o.Step.Name(), o.Status)
	}
}

func pendingOutcomes(steps []Step, parent []int) []Outcome {
	out := make([]Outcome, len(steps))
	for i, s := range steps {
		out[i] = Outcome{Step: childRef(parent, i, s), Status: StatusPending}
	}
	return out
}

// Report is the full record of one run.
type Report struct {
	RunID    string
	Outcomes []Outcome
	Duration time.Duration
	Context  *Context
}

// Find returns the outcome of the step with the given ID at any depth.
func (r *Report) Find(id string) (Outcome, bool) {
	var walk func([]Outcome) (Outcome, bool)
	walk = func(outcomes []Outcome) (Outcome, bool) {
		for _, o := range outcomes {
			if o.Step.ID == id {
				return o, true
			}
			if found, ok := walk(o.Children); ok {
				return found, true
			}
		}
		return Outcome{}, false
	}
	return walk(r.Outcomes)
}

// Count returns how many top-level steps ended in status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Succeeded reports whether no top-level step failed, was blocked or was left pending.
func (r *Report) Succeeded() bool {
	for _, o := range r.Outcomes {
		if !o.Status.Satisfies() {
			return false
		}
	}
	return true
}

// =============================================================================
// Reporting
// =============================================================================

// Reporter receives step lifecycle events.
//
// In concurrent mode events arrive from several goroutines at once, so
// implementations must be safe for concurrent use. Skipped and blocked
// steps get StepFinished without a preceding StepStarted.
type Reporter interface {
	// StepStarted is called before a step's task runs. The returned Helpers
	// are passed to the task; nil means no-op helpers.
	StepStarted(step StepRef) Helpers

	// StepFinished is called once per step that reaches a terminal status.
	StepFinished(step StepRef, outcome Outcome)
}

// NopReporter ignores all events.
type NopReporter struct{}

// StepStarted implements Reporter.
func (NopReporter) StepStarted(StepRef) Helpers { return nopHelpers{} }

// StepFinished implements Reporter.
func (NopReporter) StepFinished(StepRef, Outcome) {}

type nopHelpers struct{}

func (nopHelpers) SetTitle(string) {}
func (nopHelpers) Status(string)   {}
