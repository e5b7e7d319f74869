// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search indexes segment transcripts in Weaviate and answers
// keyword queries over them. The client wraps the Weaviate SDK with a
// circuit breaker, retry with jittered backoff and a background health
// checker so a down index degrades search instead of the whole service.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the connection state of the search backend.
type State int32

const (
	// StateConnected indicates normal operation.
	StateConnected State = iota
	// StateDegraded indicates the backend is unreachable but the client works.
	StateDegraded
	// StateCircuitOpen indicates the circuit breaker is blocking requests.
	StateCircuitOpen
	// StateHalfOpen indicates the breaker is testing with a single request.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ClientConfig configures the resilient search client.
type ClientConfig struct {
	// URL is the Weaviate server URL (e.g. "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retries for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries. Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0). Default: 0.25
	RetryJitter float64

	// CircuitThreshold is the failure count that opens the circuit.
	// Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures.
	// Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open before
	// half-opening. Default: 30s
	CircuitCooldown time.Duration

	// HealthCheckInterval is the health probe period when connected.
	// Default: 15s
	HealthCheckInterval time.Duration

	// DegradedCheckInterval is the probe period when degraded. Default: 5s
	DegradedCheckInterval time.Duration

	// HealthCheckTimeout bounds one health probe. Default: 5s
	HealthCheckTimeout time.Duration

	// AllowStartDegraded starts the client even when the backend is down.
	// Default: true — search is an optional feature.
	AllowStartDegraded bool

	// Logger for client operations. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		RetryJitter:           0.25,
		CircuitThreshold:      5,
		CircuitWindow:         30 * time.Second,
		CircuitCooldown:       30 * time.Second,
		HealthCheckInterval:   15 * time.Second,
		DegradedCheckInterval: 5 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		AllowStartDegraded:    true,
	}
}

// applyDefaults fills zero values with defaults.
func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = defaults.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = defaults.DegradedCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	if c.CircuitWindow <= 0 {
		return errors.New("circuit_window must be positive")
	}
	return nil
}

// Client wraps the Weaviate client with resilience features.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	client *weaviate.Client
	config ClientConfig
	logger *slog.Logger

	state           atomic.Int32
	circuitOpenTime atomic.Int64 // unix millis when the circuit opened
	closed          atomic.Bool

	// Sliding window of failure timestamps, sized CircuitThreshold.
	failures   []time.Time
	failureIdx int
	failureMu  sync.Mutex

	// Only one probe request is allowed while half-open.
	halfOpenTest atomic.Bool

	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewClient creates a resilient search client. With AllowStartDegraded
// (the default) an unreachable backend yields a working client in
// degraded state; queries fail fast until the health checker recovers it.
func NewClient(config ClientConfig) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := weaviate.Config{Host: config.URL, Scheme: "http"}
	switch {
	case strings.HasPrefix(config.URL, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(config.URL, "https://")
	case strings.HasPrefix(config.URL, "http://"):
		cfg.Host = strings.TrimPrefix(config.URL, "http://")
	}

	wc, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	c := &Client{
		client:       wc,
		config:       config,
		logger:       config.Logger.With("component", "search_client"),
		failures:     make([]time.Time, config.CircuitThreshold),
		healthCancel: healthCancel,
	}
	c.state.Store(int32(StateDegraded)) // degraded until proven healthy

	if err := c.checkHealth(context.Background()); err != nil {
		if !config.AllowStartDegraded {
			healthCancel()
			return nil, fmt.Errorf("search backend not available: %w", err)
		}
		c.logger.Warn("search backend unavailable at startup, starting degraded",
			"url", config.URL, "error", err)
	} else {
		c.transitionState(StateConnected)
	}

	c.healthWg.Add(1)
	go c.runHealthChecker(healthCtx)

	c.logger.Info("search client initialized",
		"url", config.URL, "state", c.GetState().String())
	return c, nil
}

// Weaviate returns the underlying SDK client for direct operations.
func (c *Client) Weaviate() *weaviate.Client { return c.client }

// GetState returns the current connection state.
func (c *Client) GetState() State { return State(c.state.Load()) }

// IsAvailable reports whether requests may be attempted.
func (c *Client) IsAvailable() bool {
	state := c.GetState()
	return state == StateConnected || state == StateHalfOpen
}

// Close stops the health checker. The client rejects requests afterward.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.healthCancel()
		c.healthWg.Wait()
	}
}

// Execute runs fn with retry and circuit breaker protection.
func (c *Client) Execute(ctx context.Context, op string, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := otel.Tracer("speechviz.search").Start(ctx, "search."+op,
		trace.WithAttributes(attribute.String("state", c.GetState().String())))
	defer span.End()

	switch c.GetState() {
	case StateCircuitOpen:
		if !c.shouldTryHalfOpen() {
			span.SetStatus(codes.Error, "circuit open")
			return ErrCircuitOpen
		}
		c.transitionState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if !c.halfOpenTest.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "circuit open (half-open busy)")
			return ErrCircuitOpen
		}
		defer c.halfOpenTest.Store(false)
	case StateDegraded:
		span.SetStatus(codes.Error, "degraded")
		return ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds())))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			c.recordSuccess()
			span.SetStatus(codes.Ok, "success")
			return nil
		}
		if !isRetryable(lastErr) {
			break
		}
	}

	c.recordFailure()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return fmt.Errorf("%s: %w", op, lastErr)
}

// calculateBackoff returns the jittered exponential backoff for attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.config.RetryBackoff << (attempt - 1)
	if backoff > c.config.MaxRetryBackoff {
		backoff = c.config.MaxRetryBackoff
	}
	if c.config.RetryJitter > 0 {
		jitter := float64(backoff) * c.config.RetryJitter
		backoff += time.Duration((rand.Float64()*2 - 1) * jitter)
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

// isRetryable reports whether an error class is worth retrying.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF")
}

// recordSuccess resets the breaker state after a successful request.
func (c *Client) recordSuccess() {
	if c.GetState() != StateConnected {
		c.transitionState(StateConnected)
	}
	c.failureMu.Lock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureIdx = 0
	c.failureMu.Unlock()
}

// recordFailure adds one failure to the sliding window, opening the
// circuit when the window fills inside CircuitWindow.
func (c *Client) recordFailure() {
	now := time.Now()

	c.failureMu.Lock()
	c.failures[c.failureIdx] = now
	c.failureIdx = (c.failureIdx + 1) % len(c.failures)

	cutoff := now.Add(-c.config.CircuitWindow)
	recent := 0
	for _, t := range c.failures {
		if !t.IsZero() && t.After(cutoff) {
			recent++
		}
	}
	c.failureMu.Unlock()

	if recent >= c.config.CircuitThreshold {
		c.circuitOpenTime.Store(now.UnixMilli())
		c.transitionState(StateCircuitOpen)
	}
}

// shouldTryHalfOpen reports whether the open circuit's cooldown expired.
func (c *Client) shouldTryHalfOpen() bool {
	opened := time.UnixMilli(c.circuitOpenTime.Load())
	return time.Since(opened) >= c.config.CircuitCooldown
}

// transitionState moves to a new state, logging the edge.
func (c *Client) transitionState(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev != next {
		c.logger.Info("search connection state changed",
			"from", prev.String(), "to", next.String())
	}
}

// checkHealth probes the backend's ready endpoint.
func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	ready, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ready {
		return ErrUnavailable
	}
	return nil
}

// runHealthChecker probes periodically, faster while degraded.
func (c *Client) runHealthChecker(ctx context.Context) {
	defer c.healthWg.Done()

	for {
		interval := c.config.HealthCheckInterval
		if !c.IsAvailable() {
			interval = c.config.DegradedCheckInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		err := c.checkHealth(ctx)
		switch state := c.GetState(); {
		case err == nil && state != StateConnected && state != StateCircuitOpen:
			c.transitionState(StateConnected)
		case err != nil && state == StateConnected:
			c.transitionState(StateDegraded)
		}
	}
}
