// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink streams applied edit events into InfluxDB, one point per
// event. The sink decouples writes from the edit path with a buffered
// channel: a slow or down InfluxDB drops points, never blocks an edit.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/evfinkn/speechviz-sub000/services/annotate"
)

// Config configures the edit telemetry sink.
type Config struct {
	// URL is the InfluxDB server URL.
	URL string

	// Token is the API token.
	Token string

	// Org and Bucket address where points land.
	Org    string
	Bucket string

	// Measurement is the measurement name. Default: annotation_edits
	Measurement string

	// BufferSize is the pending-point queue length. Default: 1024
	BufferSize int

	// FlushTimeout bounds one write batch. Default: 5s
	FlushTimeout time.Duration

	// Logger for sink diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Measurement:  "annotation_edits",
		BufferSize:   1024,
		FlushTimeout: 5 * time.Second,
	}
}

// Sink subscribes to a service's edit events and writes them to InfluxDB.
//
// Thread Safety: Safe for concurrent use; event handling is lock-free on
// the hot path.
type Sink struct {
	config   Config
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger

	points chan *write.Point
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	subscription string
	emitter      *annotate.Emitter
}

// New creates a sink and verifies the InfluxDB connection.
func New(ctx context.Context, config Config) (*Sink, error) {
	defaults := DefaultConfig()
	if config.Measurement == "" {
		config.Measurement = defaults.Measurement
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = defaults.FlushTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	client := influxdb2.NewClient(config.URL, config.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	config.Logger.Info("edit sink connected",
		"url", config.URL, "status", health.Status)

	s := &Sink{
		config:   config,
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Bucket),
		logger:   config.Logger.With("component", "edit_sink"),
		points:   make(chan *write.Point, config.BufferSize),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Attach subscribes the sink to the emitter. Call Detach or Close to
// unsubscribe.
func (s *Sink) Attach(emitter *annotate.Emitter) {
	s.emitter = emitter
	s.subscription = emitter.Subscribe(s.handle)
}

// Detach unsubscribes from the emitter.
func (s *Sink) Detach() {
	if s.emitter != nil && s.subscription != "" {
		s.emitter.Unsubscribe(s.subscription)
		s.subscription = ""
	}
}

// Close detaches, drains pending points and closes the client.
func (s *Sink) Close() {
	s.once.Do(func() {
		s.Detach()
		close(s.done)
		s.wg.Wait()
		s.client.Close()
	})
}

// handle queues one event. Full buffer drops the point.
func (s *Sink) handle(event annotate.Event) {
	select {
	case s.points <- pointFor(s.config.Measurement, event):
	default:
		s.logger.Warn("point buffer full, dropping event",
			"document", event.Document, "action", event.Action)
	}
}

// pointFor maps an edit event onto an influx point.
func pointFor(measurement string, event annotate.Event) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"document": event.Document,
			"action":   event.Action,
		},
		map[string]interface{}{
			"event_id":   event.ID,
			"node_id":    event.NodeID,
			"session_id": event.SessionID,
			"count":      1,
		},
		event.Timestamp,
	)
}

// writeLoop flushes queued points in batches.
func (s *Sink) writeLoop() {
	defer s.wg.Done()

	flush := func(batch []*write.Point) {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.config.FlushTimeout)
		defer cancel()
		if err := s.writeAPI.WritePoint(ctx, batch...); err != nil {
			s.logger.Warn("point write failed",
				"points", len(batch), "error", err)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var batch []*write.Point
	for {
		select {
		case <-s.done:
			// Drain whatever is queued, then flush once.
			for {
				select {
				case p := <-s.points:
					batch = append(batch, p)
				default:
					flush(batch)
					return
				}
			}
		case p := <-s.points:
			batch = append(batch, p)
			if len(batch) >= 100 {
				flush(batch)
				batch = nil
			}
		case <-ticker.C:
			flush(batch)
			batch = nil
		}
	}
}
