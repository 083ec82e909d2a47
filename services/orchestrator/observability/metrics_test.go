// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

func newTestMetrics(t *testing.T) (*ChatMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewChatMetrics(reg), reg
}

// ============================================================================
// Recording Tests
// ============================================================================

func TestRecordMessage(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordMessage(EndpointChatbot, true)
	m.RecordMessage(EndpointChatbot, true)
	m.RecordMessage(EndpointWebSocket, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("chatbot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("websocket", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("chatbot", "error")))
}

func TestRecordRun(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordRun("completed", 3, 3*time.Second)
	m.RecordRun("timed_out", 50, 50*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunOutcomesTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunOutcomesTotal.WithLabelValues("timed_out")))

	count, err := testutil.GatherAndCount(reg, "aleutian_portfolio_chat_poll_attempts")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGaugesAndCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetActiveConversations(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveConversations))

	m.RecordSwept("store", 3)
	m.RecordSwept("store", 0)
	m.RecordSwept("registry", 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweptTotal.WithLabelValues("store")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweptTotal.WithLabelValues("registry")))

	m.RecordRateLimited()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *ChatMetrics
	assert.NotPanics(t, func() {
		m.RecordMessage(EndpointChatbot, true)
		m.RecordRun("completed", 1, time.Second)
		m.SetActiveConversations(1)
		m.RecordSwept("store", 1)
		m.RecordRateLimited()
	})
}

func TestNewChatMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewChatMetrics(reg)
	assert.Panics(t, func() { NewChatMetrics(reg) })
}
