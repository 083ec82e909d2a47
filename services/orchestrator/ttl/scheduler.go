// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl evicts idle conversations on a schedule.
//
// # Description
//
// The scheduler sweeps every registered target (state store, thread
// registry, emulated engine transcripts) once at start and then on every
// tick. There are no per-entry timers; age is judged by each target against
// its own last-activity timestamps.
//
// # Thread Safety
//
// Start, Stop and RunNow are safe for concurrent use.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianPortfolio/pkg/extensions"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

// =============================================================================
// Configuration
// =============================================================================

// SchedulerConfig configures the eviction scheduler.
type SchedulerConfig struct {
	// Interval is the time between sweeps. Default: 1h
	Interval time.Duration

	// MaxAge is the idle time after which entries are evicted. Default: 24h
	MaxAge time.Duration
}

// DefaultSchedulerConfig returns production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 1 * time.Hour,
		MaxAge:   24 * time.Hour,
	}
}

// Target is one sweepable collection.
type Target struct {
	// Name labels the target in logs and metrics, e.g. "store".
	Name    string
	Sweeper conversation.Sweeper
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	StartTime time.Time
	EndTime   time.Time
	// Removed maps target name to entries removed.
	Removed map[string]int
}

// Total returns the number of entries removed across all targets.
func (r SweepResult) Total() int {
	n := 0
	for _, v := range r.Removed {
		n += v
	}
	return n
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs sweeps periodically.
//
// # Description
//
// Start launches a background loop that sweeps immediately and then every
// Interval until Stop is called or the context is cancelled. Stop blocks
// until the loop has exited.
type Scheduler struct {
	targets []Target
	config  SchedulerConfig
	clock   clock.Clock
	metrics *observability.ChatMetrics
	audit   extensions.AuditLogger

	mu      sync.Mutex
	done    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMetrics records swept counts.
func WithMetrics(m *observability.ChatMetrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAudit records one audit event per sweep that removed something.
func WithAudit(a extensions.AuditLogger) SchedulerOption {
	return func(s *Scheduler) { s.audit = a }
}

// NewScheduler creates a scheduler over targets.
//
// # Inputs
//
//   - clk: Time source for sweep timestamps.
//   - config: Interval and max age. Non-positive values use defaults.
//   - targets: Collections to sweep, in order.
func NewScheduler(clk clock.Clock, config SchedulerConfig, targets []Target, opts ...SchedulerOption) *Scheduler {
	d := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = d.MaxAge
	}
	s := &Scheduler{
		targets: targets,
		config:  config,
		clock:   clk,
		audit:   &extensions.NopAuditLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})

	slog.Info("Conversation eviction scheduler starting",
		"interval", s.config.Interval.String(),
		"max_age", s.config.MaxAge.String(),
		"targets", len(s.targets),
	)

	s.wg.Add(1)
	go s.runLoop(ctx, s.done)
	return nil
}

// Stop halts the loop and waits for it to exit. Stopping a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	slog.Info("Conversation eviction scheduler stopping")
	close(s.done)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// RunNow performs one sweep synchronously.
func (s *Scheduler) RunNow(ctx context.Context) SweepResult {
	result := SweepResult{
		StartTime: s.clock.Now(),
		Removed:   make(map[string]int, len(s.targets)),
	}
	for _, t := range s.targets {
		n := t.Sweeper.Sweep(s.config.MaxAge)
		result.Removed[t.Name] = n
		s.metrics.RecordSwept(t.Name, n)
	}
	result.EndTime = s.clock.Now()

	if total := result.Total(); total > 0 {
		slog.Info("Conversation sweep completed", "removed", result.Removed, "total", total)
		event := extensions.AuditEvent{
			EventType: extensions.EventConversationSwept,
			Timestamp: result.EndTime,
			Outcome:   "success",
			Metadata:  map[string]any{"removed": total},
		}
		if err := s.audit.Log(ctx, event); err != nil {
			slog.Warn("Audit log failed", "event_type", event.EventType, "error", err)
		}
	} else {
		slog.Debug("Conversation sweep completed (nothing idle)")
	}
	return result
}

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunNow(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Conversation eviction scheduler stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Conversation eviction scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.RunNow(ctx)
		}
	}
}
