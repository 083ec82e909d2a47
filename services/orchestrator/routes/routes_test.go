// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/services"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type echoRouter struct{}

func (echoRouter) RouteMessage(_ context.Context, message, _ string, _ *datatypes.Context) services.Result {
	return services.Result{Response: "echo " + message, ConversationID: "thread_1", Success: true}
}

func (echoRouter) ConversationHistory(id string, _ int) (string, int, bool) {
	return "user: hi", 1, id == "thread_1"
}

func hasRoute(routes gin.RoutesInfo, method, path string) bool {
	for _, r := range routes {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Router: echoRouter{}, Configured: true})

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/api/chatbot"},
		{"GET", "/api/chatbot/ws"},
		{"GET", "/api/conversations/:id/history"},
	}
	routes := router.Routes()
	for _, e := range expected {
		assert.True(t, hasRoute(routes, e.method, e.path), "missing route %s %s", e.method, e.path)
	}
}

func TestSetupRoutes_ChatbotRoundTrip(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Router: echoRouter{}, Configured: true})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/chatbot", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"echo hello","threadId":"thread_1"}`, strings.TrimSpace(w.Body.String()))
}

func TestSetupRoutes_MetricsFromGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewChatMetrics(reg)
	metrics.RecordMessage(observability.EndpointChatbot, true)

	router := gin.New()
	SetupRoutes(router, Deps{Router: echoRouter{}, Configured: true, Metrics: metrics, Gatherer: reg})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_portfolio_chat_messages_total")
}

func TestSetupRoutes_RateLimitAppliesToChatOnly(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1},
		clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)), nil)
	router := gin.New()
	SetupRoutes(router, Deps{Router: echoRouter{}, Configured: true, Limiter: limiter})

	post := func() int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/chatbot", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
