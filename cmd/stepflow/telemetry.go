// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/stepflow/pkg/logging"
)

// Metric exporters selectable with --metrics.
const (
	metricsNone       = ""
	metricsStdout     = "stdout"
	metricsPrometheus = "prometheus"
)

// ErrUnknownExporter is returned for an unsupported --metrics value.
var ErrUnknownExporter = errors.New("unknown metrics exporter")

// telemetry owns the providers installed for one CLI invocation.
type telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	// registry holds the otel collector in prometheus mode. It is gathered
	// together with the default registry, where the recovery metrics live.
	registry *prometheus.Registry
	out      io.Writer
}

func newResource() *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", logging.DefaultService))
}

// startTelemetry installs global providers. Spans are exported
// synchronously so a short run flushes everything before exit.
func startTelemetry(traceSpans bool, metrics string, out io.Writer) (*telemetry, error) {
	t := &telemetry{out: out}
	res := newResource()

	if traceSpans {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(t.tp)
	}

	switch metrics {
	case metricsNone:
	case metricsStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
	case metricsPrometheus:
		t.registry = prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownExporter, metrics, metricsStdout, metricsPrometheus)
	}
	if t.mp != nil {
		otel.SetMeterProvider(t.mp)
	}
	return t, nil
}

// shutdown flushes spans and metrics. In prometheus mode the text
// exposition is written to out first.
func (t *telemetry) shutdown(ctx context.Context) error {
	var errs []error
	if t.registry != nil {
		if err := writeExposition(t.out, prometheus.Gatherers{prometheus.DefaultGatherer, t.registry}); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func writeExposition(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
