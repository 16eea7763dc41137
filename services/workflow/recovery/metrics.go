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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Recovery
// =============================================================================

var (
	// recoveryRuns counts recovery runs.
	// Labels: category, result (recovered, failed)
	recoveryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Subsystem: "recovery",
		Name:      "runs_total",
		Help:      "Total automated recovery runs",
	}, []string{"category", "result"})

	// recoveryDuration measures end-to-end recovery time.
	// Labels: category
	recoveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stepflow",
		Subsystem: "recovery",
		Name:      "duration_seconds",
		Help:      "Automated recovery duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"category"})

	// classificationLookups counts classification cache lookups.
	// Labels: result (hit, miss)
	classificationLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Subsystem: "recovery",
		Name:      "classification_cache_total",
		Help:      "Classification cache lookups by result",
	}, []string{"result"})

	// remediationSteps counts remediation step outcomes.
	// Labels: step, status
	remediationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Subsystem: "recovery",
		Name:      "steps_total",
		Help:      "Recovery workflow steps by terminal status",
	}, []string{"step", "status"})
)

// RecordCacheHit increments the classification cache hit counter.
func RecordCacheHit() {
	classificationLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss increments the classification cache miss counter.
func RecordCacheMiss() {
	classificationLookups.WithLabelValues("miss").Inc()
}

// RecordRun records a finished recovery run.
func RecordRun(category Category, recovered bool, seconds float64) {
	result := "failed"
	if recovered {
		result = "recovered"
	}
	recoveryRuns.WithLabelValues(string(category), result).Inc()
	recoveryDuration.WithLabelValues(string(category)).Observe(seconds)
}

// RecordStep records the terminal status of one recovery step.
func RecordStep(step, status string) {
	remediationSteps.WithLabelValues(step, status).Inc()
}
