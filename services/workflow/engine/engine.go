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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"
)

// DefaultMaxConcurrent is the concurrent-mode window size when none is set.
const DefaultMaxConcurrent = 4

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrent selects dependency-graph scheduling instead of sequential
// declaration order.
func WithConcurrent(concurrent bool) Option {
	return func(e *Engine) { e.concurrent = concurrent }
}

// WithExitOnError sets the failure policy. True (the default) stops
// scheduling at the first failure.
func WithExitOnError(exit bool) Option {
	return func(e *Engine) { e.exitOnError = exit }
}

// WithMaxConcurrent sets how many steps may run at once in concurrent mode.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) { e.maxConcurrent = n }
}

// WithStepTimeout applies a deadline to every task's context.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithReporter sets the lifecycle event sink.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine executes step batches.
//
// Description:
//
//	In sequential mode steps run one at a time in declaration order, each
//	group fully finishing its subtasks before the next step starts. In
//	concurrent mode the batch is a dependency graph: a step is started once
//	every dependency has succeeded or been skipped, with at most
//	maxConcurrent steps running at once. A step whose dependency failed is
//	Blocked and never runs.
//
//	Started tasks are never cancelled by the engine. Under exitOnError the
//	first failure only stops new steps from starting.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. Each Run has its own state.
type Engine struct {
	concurrent    bool
	exitOnError   bool
	maxConcurrent int
	stepTimeout   time.Duration
	reporter      Reporter
	logger        *slog.Logger

	metrics engineMetrics
}

// New creates an engine.
//
// Outputs:
//
//	*Engine - The engine.
//	error - *ConfigurationError wrapping ErrInvalidConcurrency if
//	        WithMaxConcurrent was given a value <= 0.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		exitOnError:   true,
		maxConcurrent: DefaultMaxConcurrent,
		reporter:      NopReporter{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.maxConcurrent <= 0 {
		return nil, &ConfigurationError{
			Detail: fmt.Sprintf("maxConcurrent=%d", e.maxConcurrent),
			Err:    ErrInvalidConcurrency,
		}
	}
	return e, nil
}

// Concurrent reports whether the engine schedules by dependency graph.
func (e *Engine) Concurrent() bool { return e.concurrent }

// ExitOnError reports the failure policy.
func (e *Engine) ExitOnError() bool { return e.exitOnError }

// MaxConcurrent returns the concurrent-mode window size.
func (e *Engine) MaxConcurrent() int { return e.maxConcurrent }

func (e *Engine) mode() string {
	if e.concurrent {
		return "concurrent"
	}
	return "sequential"
}

// Execute runs steps against wc and returns the shared context.
//
// Inputs:
//
//	ctx - Passed to every task. Cancellation stops new steps from starting.
//	steps - The top-level batch.
//	wc - The shared context, mutated in place. Nil starts from empty.
//
// Outputs:
//
//	*Context - The shared context, including writes made before a failure.
//	error - *ConfigurationError before anything ran, *StepFailure in
//	        sequential exit-on-error mode, *AggregateFailure otherwise.
func (e *Engine) Execute(ctx context.Context, steps []Step, wc *Context) (*Context, error) {
	if wc == nil {
		wc = NewContext()
	}
	_, err := e.Run(ctx, steps, wc)
	return wc, err
}

// Run is Execute that also returns the per-step Report.
//
// The Report is nil only when the batch fails validation or ctx is nil.
func (e *Engine) Run(ctx context.Context, steps []Step, wc *Context) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	validate := Validate
	if !e.concurrent {
		validate = ValidateSequential
	}
	if err := validate(steps); err != nil {
		e.logger.Warn("workflow rejected", slog.String("error", err.Error()))
		return nil, err
	}
	if wc == nil {
		wc = NewContext()
	}

	e.metrics.init(e.logger)

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "workflow.Run",
		trace.WithAttributes(
			attribute.String("workflow.run_id", runID),
			attribute.Int("workflow.step_count", len(steps)),
			attribute.String("workflow.mode", e.mode()),
			attribute.Bool("workflow.exit_on_error", e.exitOnError),
		),
	)
	defer span.End()

	start := time.Now()
	e.logger.Info("workflow started",
		slog.String("run_id", runID),
		slog.Int("steps", len(steps)),
		slog.String("mode", e.mode()),
		slog.Bool("exit_on_error", e.exitOnError),
	)

	r := &run{engine: e, id: runID, wc: wc}

	var outcomes []Outcome
	var err error
	if e.concurrent {
		outcomes, err = r.concurrent(ctx, steps)
	} else {
		outcomes, err = r.sequential(ctx, steps, nil)
	}

	duration := time.Since(start)
	e.metrics.runDone(ctx, duration, e.mode(), err != nil)

	report := &Report{
		RunID:    runID,
		Outcomes: outcomes,
		Duration: duration,
		Context:  wc,
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("workflow failed",
			slog.String("run_id", runID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return report, err
	}

	span.SetStatus(codes.Ok, "")
	e.logger.Info("workflow completed",
		slog.String("run_id", runID),
		slog.Duration("duration", duration),
	)
	return report, nil
}

// run is the state of one Run call.
type run struct {
	engine *Engine
	id     string
	wc     *Context
}

// runStep takes one step from Pending to a terminal status.
func (r *run) runStep(ctx context.Context, s Step, ref StepRef) Outcome {
	e := r.engine
	out := Outcome{Step: ref}

	skip, err := r.shouldSkip(s)
	if err != nil {
		out.Status = StatusFailed
		out.Err = NewStepFailure(ref, err)
		e.logger.Error("step skip check failed",
			slog.String("run_id", r.id),
			slog.String("step", ref.Name()),
			slog.String("error", err.Error()),
		)
		r.finish(ctx, out, false)
		return out
	}
	if skip {
		out.Status = StatusSkipped
		e.logger.Debug("step skipped",
			slog.String("run_id", r.id),
			slog.String("step", ref.Name()),
		)
		r.finish(ctx, out, false)
		return out
	}

	ctx, span := tracer.Start(ctx, "workflow.Step",
		trace.WithAttributes(
			attribute.String("workflow.run_id", r.id),
			attribute.String("workflow.step", ref.Name()),
			attribute.String("workflow.step_path", ref.PathString()),
			attribute.StringSlice("workflow.dependencies", s.Dependencies),
			attribute.Bool("workflow.group", s.IsGroup()),
		),
	)
	defer span.End()

	h := e.reporter.StepStarted(ref)
	if h == nil {
		h = nopHelpers{}
	}
	e.metrics.stepStarted(ctx)

	start := time.Now()
	switch {
	case s.Task != nil:
		out.Value, err = r.invoke(ctx, s, h)
	case s.IsGroup():
		out.Children, err = r.sequential(ctx, s.Subtasks, ref.Path)
	}
	out.Duration = time.Since(start)

	if err != nil {
		out.Status = StatusFailed
		out.Err = NewStepFailure(ref, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("step failed",
			slog.String("run_id", r.id),
			slog.String("step", ref.Name()),
			slog.Duration("duration", out.Duration),
			slog.String("error", err.Error()),
		)
	} else {
		out.Status = StatusSucceeded
		span.SetStatus(codes.Ok, "")
		e.logger.Debug("step completed",
			slog.String("run_id", r.id),
			slog.String("step", ref.Name()),
			slog.Duration("duration", out.Duration),
		)
	}

	r.finish(ctx, out, true)
	return out
}

// invoke calls the task, applying the step timeout and turning a panic
// into an error.
func (r *run) invoke(ctx context.Context, s Step, h Helpers) (value any, err error) {
	if t := r.engine.stepTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrStepPanicked, p)
		}
	}()

	return s.Task(ctx, r.wc, h)
}

// shouldSkip evaluates the step's skip predicate, turning a panic into an
// error.
func (r *run) shouldSkip(s Step) (skip bool, err error) {
	if s.Skip == nil {
		return false, nil
	}
	defer func() {
		if p := recover(); p != nil {
			skip = false
			err = fmt.Errorf("%w: skip check: %v", ErrStepPanicked, p)
		}
	}()
	return s.Skip(r.wc), nil
}

func (r *run) finish(ctx context.Context, out Outcome, ran bool) {
	r.engine.metrics.stepDone(ctx, out, ran)
	r.engine.reporter.StepFinished(out.Step, out)
}

func failureOf(o Outcome) *StepFailure {
	if sf, ok := o.Err.(*StepFailure); ok {
		return sf
	}
	return NewStepFailure(o.Step, o.Err)
}
