// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/stepflow/services/workflow/engine"
	"github.com/AleutianAI/stepflow/services/workflow/history"
)

// ManualInterventionMessage is logged when automated recovery fails.
const ManualInterventionMessage = "automated recovery failed, manual intervention required"

// Recorder persists recovery runs. *history.Store implements it.
type Recorder interface {
	Save(ctx context.Context, rec *history.Record) error
}

// RecovererOption configures a Recoverer.
type RecovererOption func(*Recoverer)

// WithHistory records every run.
func WithHistory(r Recorder) RecovererOption {
	return func(rc *Recoverer) { rc.history = r }
}

// WithLogger sets the recoverer logger.
func WithLogger(logger *slog.Logger) RecovererOption {
	return func(rc *Recoverer) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// Summary reports what a recovery run did.
type Summary struct {
	RunID          string
	Classification Classification
	Recovered      bool

	// Remediations is the number of category-specific steps in the batch.
	Remediations int

	Outcomes []engine.Outcome

	// Err is why recovery did not succeed, nil when Recovered.
	Err error

	Duration time.Duration
}

// Recoverer chains analysis, batch construction and execution.
//
// Thread Safety:
//
//	Recoverer is safe for concurrent use.
type Recoverer struct {
	analyzer *Analyzer
	builder  *Builder
	engine   *engine.Engine
	history  Recorder
	logger   *slog.Logger
}

// NewRecoverer creates a recoverer.
//
// Inputs:
//
//	analyzer - Classifies failures. Nil uses NewAnalyzer(nil).
//	builder - Builds batches. Nil uses DefaultPlaybook with an ExecRunner.
//	eng - Runs batches. Nil uses a concurrent engine with the default bound.
//
// Outputs:
//
//	*Recoverer - The recoverer.
//	error - Non-nil if the default engine cannot be created.
func NewRecoverer(analyzer *Analyzer, builder *Builder, eng *engine.Engine, opts ...RecovererOption) (*Recoverer, error) {
	r := &Recoverer{
		analyzer: analyzer,
		builder:  builder,
		engine:   eng,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.analyzer == nil {
		r.analyzer = NewAnalyzer(nil, WithAnalyzerLogger(r.logger))
	}
	if r.builder == nil {
		r.builder = NewBuilder(DefaultPlaybook(), nil)
	}
	if r.engine == nil {
		e, err := engine.New(engine.WithConcurrent(true), engine.WithLogger(r.logger))
		if err != nil {
			return nil, err
		}
		r.engine = e
	}
	return r, nil
}

// Analyze classifies f.
func (r *Recoverer) Analyze(ctx context.Context, f Failure) (Classification, error) {
	return r.analyzer.Analyze(ctx, f)
}

// BuildRecoverySteps builds the remediation batch for c.
func (r *Recoverer) BuildRecoverySteps(c Classification, f Failure) []engine.Step {
	return r.builder.BuildRecoverySteps(c, f)
}

// Run attempts automated recovery of f.
//
// Description:
//
//	Classifies f, builds the remediation batch, and executes it. Failures
//	at any stage are logged as a diagnostic and reported in the Summary;
//	Run itself never returns an error.
func (r *Recoverer) Run(ctx context.Context, f Failure) Summary {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	sum := Summary{}

	c, err := r.analyzer.Analyze(ctx, f)
	if err != nil {
		r.logger.Warn("failure analysis failed, continuing as unknown",
			slog.String("error", err.Error()),
		)
		c = Classification{
			Fingerprint: Fingerprint(f),
			Category:    CategoryUnknown,
			Severity:    SeverityMedium,
			Summary:     "analysis failed",
		}
	}
	sum.Classification = c

	steps := r.builder.BuildRecoverySteps(c, f)
	sum.Remediations = len(steps) - 2

	r.logger.Info("automated recovery started",
		slog.String("fingerprint", shortFingerprint(c.Fingerprint)),
		slog.String("category", string(c.Category)),
		slog.String("severity", string(c.Severity)),
		slog.Int("remediation_steps", sum.Remediations),
	)

	report, err := r.engine.Run(ctx, steps, engine.NewContext())
	if report != nil {
		sum.RunID = report.RunID
		sum.Outcomes = report.Outcomes
		for _, o := range report.Outcomes {
			RecordStep(o.Step.Name(), string(o.Status))
		}
	} else {
		sum.RunID = uuid.NewString()
	}
	sum.Err = err
	sum.Recovered = err == nil
	sum.Duration = time.Since(start)

	if err != nil {
		r.logger.Error(ManualInterventionMessage,
			slog.String("run_id", sum.RunID),
			slog.String("category", string(c.Category)),
			slog.String("original_failure", f.Message),
			slog.String("recovery_error", err.Error()),
		)
	} else {
		r.logger.Info("automated recovery succeeded",
			slog.String("run_id", sum.RunID),
			slog.String("category", string(c.Category)),
			slog.Duration("duration", sum.Duration),
		)
	}

	RecordRun(c.Category, sum.Recovered, sum.Duration.Seconds())
	r.record(ctx, f, sum, start)

	return sum
}

func (r *Recoverer) record(ctx context.Context, f Failure, sum Summary, start time.Time) {
	if r.history == nil {
		return
	}

	rec := &history.Record{
		ID:          sum.RunID,
		StartedAt:   start,
		Duration:    sum.Duration,
		Fingerprint: sum.Classification.Fingerprint,
		Category:    string(sum.Classification.Category),
		Severity:    string(sum.Classification.Severity),
		Fixable:     sum.Classification.Fixable,
		Message:     f.Message,
		Recovered:   sum.Recovered,
	}
	if sum.Err != nil {
		rec.Error = sum.Err.Error()
	}
	for _, o := range sum.Outcomes {
		sr := history.StepRecord{
			ID:        o.Step.ID,
			Title:     o.Step.Title,
			Status:    string(o.Status),
			BlockedBy: o.BlockedBy,
			Duration:  o.Duration,
		}
		if o.Err != nil {
			sr.Error = o.Err.Error()
		}
		rec.Steps = append(rec.Steps, sr)
	}

	if err := r.history.Save(ctx, rec); err != nil {
		r.logger.Warn("failed to record recovery history", slog.String("error", err.Error()))
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
