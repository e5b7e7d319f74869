// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for document operations.
var (
	tracer = otel.Tracer("speechviz.document")
	meter  = otel.Meter("speechviz.document")
)

// Metrics for import and encode operations.
var (
	importLatency   metric.Float64Histogram
	importTotal     metric.Int64Counter
	nodesImported   metric.Int64Histogram
	nodesSkipped    metric.Int64Histogram
	encodeLatency   metric.Float64Histogram
	segmentsEncoded metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		importLatency, err = meter.Float64Histogram(
			"document_import_duration_seconds",
			metric.WithDescription("Duration of annotation document imports"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		importTotal, err = meter.Int64Counter(
			"document_import_total",
			metric.WithDescription("Total number of annotation document imports"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesImported, err = meter.Int64Histogram(
			"document_nodes_imported",
			metric.WithDescription("Number of tree nodes created per import"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesSkipped, err = meter.Int64Histogram(
			"document_nodes_skipped",
			metric.WithDescription("Number of entries skipped per import"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		encodeLatency, err = meter.Float64Histogram(
			"document_encode_duration_seconds",
			metric.WithDescription("Duration of save payload encoding"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		segmentsEncoded, err = meter.Int64Histogram(
			"document_segments_encoded",
			metric.WithDescription("Number of segment records per save payload"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordImportMetrics records metrics for one import.
func recordImportMetrics(ctx context.Context, duration time.Duration, imported, skipped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	importLatency.Record(ctx, duration.Seconds(), attrs)
	importTotal.Add(ctx, 1, attrs)

	if success {
		nodesImported.Record(ctx, int64(imported))
		nodesSkipped.Record(ctx, int64(skipped))
	}
}

// recordEncodeMetrics records metrics for one save encoding.
func recordEncodeMetrics(ctx context.Context, duration time.Duration, segments int) {
	if err := initMetrics(); err != nil {
		return
	}

	encodeLatency.Record(ctx, duration.Seconds())
	segmentsEncoded.Record(ctx, int64(segments))
}

// startImportSpan creates a span for an import operation.
func startImportSpan(ctx context.Context, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Importer.Import",
		trace.WithAttributes(
			attribute.Int("document.payload_bytes", size),
		),
	)
}

// setImportSpanResult sets the result attributes on an import span.
func setImportSpanResult(span trace.Span, version string, imported, skipped int) {
	span.SetAttributes(
		attribute.String("document.format_version", version),
		attribute.Int("document.nodes_imported", imported),
		attribute.Int("document.nodes_skipped", skipped),
	)
}

// startEncodeSpan creates a span for a save encoding operation.
func startEncodeSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "document.Encode")
}

// startApplySpan creates a span for replaying a save payload.
func startApplySpan(ctx context.Context, segments, moved int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Importer.Apply",
		trace.WithAttributes(
			attribute.Int("document.segments", segments),
			attribute.Int("document.moved", moved),
		),
	)
}
