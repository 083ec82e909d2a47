// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the portfolio chat service.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per client IP. Requests that find the
// bucket empty are rejected with 429 before they reach a handler.
//
//	Request
//	   │
//	   ▼
//	RateLimiter.Middleware
//	   │
//	   ├─► limiter for c.ClientIP()
//	   │
//	   ├─► Allow() == false ─► 429 {"error":"rate limit exceeded"}
//	   │
//	   └─► c.Next()
//
// Idle buckets are forgotten by Sweep, which the orchestrator runs on the
// same schedule as conversation eviction.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

// ErrRateLimited is the error body of a rejected request.
const ErrRateLimited = "rate limit exceeded"

// RateLimitConfig configures per-client limits.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per client. Zero or less
	// disables limiting.
	RequestsPerMinute int

	// Burst is the bucket size. Defaults to RequestsPerMinute when zero.
	Burst int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket limiter.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	cfg     RateLimitConfig
	clock   clock.Clock
	metrics *observability.ChatMetrics

	mu      sync.Mutex
	clients map[string]*clientBucket
}

// NewRateLimiter creates a limiter.
//
// # Inputs
//
//   - cfg: Limits. RequestsPerMinute <= 0 disables limiting.
//   - clk: Time source for bucket bookkeeping. Nil uses the system clock.
//   - metrics: Optional. May be nil.
//
// # Outputs
//
//   - *RateLimiter: Ready to use.
func NewRateLimiter(cfg RateLimitConfig, clk clock.Clock, metrics *observability.ChatMetrics) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	return &RateLimiter{
		cfg:     cfg,
		clock:   clk,
		metrics: metrics,
		clients: make(map[string]*clientBucket),
	}
}

// Enabled reports whether requests are limited at all.
func (l *RateLimiter) Enabled() bool {
	return l != nil && l.cfg.RequestsPerMinute > 0
}

// Allow takes one token from the client's bucket.
func (l *RateLimiter) Allow(clientIP string) bool {
	if !l.Enabled() {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	b, ok := l.clients[clientIP]
	if !ok {
		perSecond := rate.Limit(float64(l.cfg.RequestsPerMinute) / 60.0)
		b = &clientBucket{limiter: rate.NewLimiter(perSecond, l.cfg.Burst)}
		l.clients[clientIP] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Middleware returns the gin middleware.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			slog.Warn("Rate limit exceeded", "client_ip", ip, "path", c.FullPath())
			l.metrics.RecordRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ErrRateLimited})
			return
		}
		c.Next()
	}
}

// Sweep forgets clients not seen within maxAge and returns how many were
// removed. A forgotten client starts again with a full bucket.
func (l *RateLimiter) Sweep(maxAge time.Duration) int {
	if !l.Enabled() {
		return 0
	}
	cutoff := l.clock.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
