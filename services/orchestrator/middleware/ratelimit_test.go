// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter(l *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(l.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func doRequest(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestRateLimiter_RejectsAfterBurst(t *testing.T) {
	metrics := observability.NewChatMetrics(prometheus.NewRegistry())
	l := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2}, clock.NewFake(epoch), metrics)
	router := newLimitedRouter(l)

	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1:1234").Code)

	w := doRequest(router, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1}, clock.NewFake(epoch), nil)
	router := newLimitedRouter(l)

	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "10.0.0.2:1").Code)
	assert.Equal(t, 2, l.Len())
}

func TestRateLimiter_Refills(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2}, clk, nil)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clk.Advance(30 * time.Second)
	assert.True(t, l.Allow("a"), "one token refills every 30s at 2/min")
	assert.False(t, l.Allow("a"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{}, clock.NewFake(epoch), nil)
	router := newLimitedRouter(l)

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, doRequest(router, "10.0.0.1:1").Code)
	}
	assert.False(t, l.Enabled())
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.Sweep(time.Second))
}

func TestRateLimiter_Sweep(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1}, clk, nil)

	l.Allow("old")
	clk.Advance(2 * time.Hour)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep(time.Hour))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Allow("old"), "forgotten client starts with a full bucket")
}
