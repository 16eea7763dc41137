// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("stepflow.cache")

// Metrics for cache operations.
var (
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
	cacheEvictions   metric.Int64Counter
	cacheExpirations metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"workflow_cache_hits_total",
			metric.WithDescription("Total number of cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"workflow_cache_misses_total",
			metric.WithDescription("Total number of cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheEvictions, err = meter.Int64Counter(
			"workflow_cache_evictions_total",
			metric.WithDescription("Entries evicted by capacity pressure"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheExpirations, err = meter.Int64Counter(
			"workflow_cache_expirations_total",
			metric.WithDescription("Entries removed after their TTL elapsed"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordCounter(c metric.Int64Counter, name string, n int64) {
	if c == nil || n == 0 {
		return
	}
	c.Add(context.Background(), n, metric.WithAttributes(attribute.String("cache", name)))
}
