// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the portfolio chat
// service.
//
// # Description
//
// Metrics cover routed messages, run outcomes and polling effort, the size
// of the in-memory conversation set, eviction sweeps and rate limiting.
// They are exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *ChatMetrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for chat metrics
const chatSubsystem = "portfolio_chat"

// ChatMetrics holds all Prometheus metrics for the service.
//
// # Fields
//
//   - MessagesTotal: Routed messages by endpoint and status
//   - RunOutcomesTotal: Engine run outcomes by outcome
//   - PollAttempts: Histogram of status polls per run
//   - RunDurationSeconds: Histogram of run wall time by outcome
//   - ActiveConversations: Gauge of conversations held in memory
//   - SweptTotal: Counter of entries removed by sweeps, by target
//   - RateLimitedTotal: Counter of rejected requests
type ChatMetrics struct {
	// MessagesTotal counts routed messages.
	// Labels: endpoint (chatbot, websocket), status (success, error)
	MessagesTotal *prometheus.CounterVec

	// RunOutcomesTotal counts run outcomes.
	// Labels: outcome (completed, failed, timed_out, cancelled, error, panic)
	RunOutcomesTotal *prometheus.CounterVec

	// PollAttempts observes status polls per run.
	PollAttempts prometheus.Histogram

	// RunDurationSeconds observes run wall time.
	// Labels: outcome
	RunDurationSeconds *prometheus.HistogramVec

	// ActiveConversations tracks conversations held in memory.
	ActiveConversations prometheus.Gauge

	// SweptTotal counts entries removed by eviction sweeps.
	// Labels: target (store, registry, engine)
	SweptTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewChatMetrics creates metrics registered with reg.
//
// # Description
//
// Tests pass a fresh prometheus.NewRegistry() so they never collide with the
// default registry.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	f := promauto.With(reg)
	return &ChatMetrics{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "messages_total",
				Help:      "Total routed messages by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RunOutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "run_outcomes_total",
				Help:      "Total engine runs by outcome",
			},
			[]string{"outcome"},
		),
		PollAttempts: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "poll_attempts",
				Help:      "Status polls per engine run",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 30, 50},
			},
		),
		RunDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Engine run duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		ActiveConversations: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_conversations",
				Help:      "Conversations currently held in memory",
			},
		),
		SweptTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "swept_total",
				Help:      "Entries removed by eviction sweeps",
			},
			[]string{"target"},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint labels the transport a message arrived on.
type Endpoint string

const (
	EndpointChatbot   Endpoint = "chatbot"
	EndpointWebSocket Endpoint = "websocket"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordMessage records one routed message.
func (m *ChatMetrics) RecordMessage(endpoint Endpoint, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.MessagesTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordRun records one run with its poll count and duration.
func (m *ChatMetrics) RecordRun(outcome string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.RunOutcomesTotal.WithLabelValues(outcome).Inc()
	m.PollAttempts.Observe(float64(attempts))
	m.RunDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetActiveConversations sets the in-memory conversation count.
func (m *ChatMetrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.ActiveConversations.Set(float64(n))
}

// RecordSwept records entries removed from target by a sweep.
func (m *ChatMetrics) RecordSwept(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptTotal.WithLabelValues(target).Add(float64(n))
}

// RecordRateLimited records one rejected request.
func (m *ChatMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
