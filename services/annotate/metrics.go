// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package annotate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for the annotation service.
var (
	tracer = otel.Tracer("speechviz.annotate")
	meter  = otel.Meter("speechviz.annotate")
)

// Metrics for document sessions and edit commands.
var (
	commandLatency metric.Float64Histogram
	commandTotal   metric.Int64Counter
	openDocuments  metric.Int64UpDownCounter
	wsConnections  metric.Int64UpDownCounter
	savesTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandLatency, err = meter.Float64Histogram(
			"annotate_command_duration_seconds",
			metric.WithDescription("Duration of edit commands applied to documents"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"annotate_command_total",
			metric.WithDescription("Total number of edit commands by action and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		openDocuments, err = meter.Int64UpDownCounter(
			"annotate_documents_open",
			metric.WithDescription("Number of documents with a live session"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		wsConnections, err = meter.Int64UpDownCounter(
			"annotate_ws_connections",
			metric.WithDescription("Number of connected websocket clients"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		savesTotal, err = meter.Int64Counter(
			"annotate_saves_total",
			metric.WithDescription("Total number of document saves"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCommandMetrics records one applied (or failed) edit command.
func recordCommandMetrics(ctx context.Context, action string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", success),
	)

	commandLatency.Record(ctx, duration.Seconds(), attrs)
	commandTotal.Add(ctx, 1, attrs)
}

// recordOpenDocuments adjusts the live session gauge.
func recordOpenDocuments(ctx context.Context, delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	openDocuments.Add(ctx, delta)
}

// recordWSConnections adjusts the websocket client gauge.
func recordWSConnections(ctx context.Context, delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	wsConnections.Add(ctx, delta)
}

// recordSave counts one document save.
func recordSave(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	savesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// startCommandSpan creates a span for one edit command.
func startCommandSpan(ctx context.Context, document, action string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Service.ApplyCommand",
		trace.WithAttributes(
			attribute.String("annotate.document", document),
			attribute.String("annotate.action", action),
		),
	)
}

// startOpenSpan creates a span for loading a document session.
func startOpenSpan(ctx context.Context, document string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Service.Open",
		trace.WithAttributes(
			attribute.String("annotate.document", document),
		),
	)
}

// startSaveSpan creates a span for saving a document.
func startSaveSpan(ctx context.Context, document string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Service.Save",
		trace.WithAttributes(
			attribute.String("annotate.document", document),
		),
	)
}
