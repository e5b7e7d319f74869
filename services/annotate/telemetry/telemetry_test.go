// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "speechviz-annotate" {
		t.Errorf("ServiceName = %q, want speechviz-annotate", cfg.ServiceName)
	}
	if cfg.MetricExporter == "" {
		t.Error("MetricExporter should have a default")
	}
	if cfg.OTLPEndpoint == "" {
		t.Error("OTLPEndpoint should have a default")
	}
}

func TestInit(t *testing.T) {
	t.Run("nil context is rejected", func(t *testing.T) {
		//nolint:staticcheck // testing the nil-context guard
		_, err := Init(nil, DefaultConfig())
		if !errors.Is(err, ErrNilContext) {
			t.Errorf("err = %v, want ErrNilContext", err)
		}
	})

	t.Run("disabled exporters succeed without backends", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "none"
		cfg.MetricExporter = "none"

		shutdown, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	})

	t.Run("unknown trace exporter fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "carrier-pigeon"
		cfg.MetricExporter = "none"

		if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
			t.Errorf("err = %v, want ErrUnknownExporter", err)
		}
	})

	t.Run("stdout exporters initialize", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "stdout"
		cfg.MetricExporter = "stdout"

		shutdown, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	})
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	if MetricsHandler() == nil {
		t.Error("MetricsHandler() = nil with prometheus exporter enabled")
	}
}
