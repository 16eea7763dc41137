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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("stepflow.engine")
	meter  = otel.Meter("stepflow.engine")
)

// engineMetrics holds the engine instruments. Any instrument may be nil if
// creation failed.
type engineMetrics struct {
	once         sync.Once
	stepLatency  metric.Float64Histogram
	stepOutcomes metric.Int64Counter
	activeSteps  metric.Int64UpDownCounter
	runLatency   metric.Float64Histogram
}

func (m *engineMetrics) init(logger *slog.Logger) {
	m.once.Do(func() {
		var initErrors []string

		var err error
		m.stepLatency, err = meter.Float64Histogram("workflow_step_duration_seconds",
			metric.WithDescription("Time spent executing each workflow step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_latency: "+err.Error())
		}

		m.stepOutcomes, err = meter.Int64Counter("workflow_step_outcomes_total",
			metric.WithDescription("Workflow steps by terminal status"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_outcomes: "+err.Error())
		}

		m.activeSteps, err = meter.Int64UpDownCounter("workflow_active_steps",
			metric.WithDescription("Number of currently running workflow steps"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_steps: "+err.Error())
		}

		m.runLatency, err = meter.Float64Histogram("workflow_run_duration_seconds",
			metric.WithDescription("Total workflow run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Error("failed to initialize some workflow metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

func (m *engineMetrics) stepStarted(ctx context.Context) {
	if m.activeSteps != nil {
		m.activeSteps.Add(ctx, 1)
	}
}

func (m *engineMetrics) stepDone(ctx context.Context, o Outcome, ran bool) {
	if ran && m.activeSteps != nil {
		m.activeSteps.Add(ctx, -1)
	}
	if ran && m.stepLatency != nil {
		m.stepLatency.Record(ctx, o.Duration.Seconds(),
			metric.WithAttributes(attribute.String("step", o.Step.Name())),
		)
	}
	if m.stepOutcomes != nil {
		m.stepOutcomes.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", string(o.Status))),
		)
	}
}

func (m *engineMetrics) runDone(ctx context.Context, d time.Duration, mode string, failed bool) {
	if m.runLatency != nil {
		m.runLatency.Record(ctx, d.Seconds(),
			metric.WithAttributes(
				attribute.String("mode", mode),
				attribute.Bool("failed", failed),
			),
		)
	}
}
