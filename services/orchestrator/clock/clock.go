// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clock provides the time source and sleep capability used by the
// orchestrator.
//
// # Description
//
// Conversation eviction compares against Now() and the run completion
// protocol waits between polls with Sleep(). Both go through the Clock
// interface so tests can drive time without real wall-clock delay.
//
// # Thread Safety
//
// All implementations in this package are safe for concurrent use.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time capability injected into the state store, thread
// registry and run completion protocol.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks the calling goroutine for d or until ctx is done.
	//
	// # Outputs
	//
	//   - error: ctx.Err() if the context ended first, nil otherwise.
	Sleep(ctx context.Context, d time.Duration) error
}

// =============================================================================
// Real Clock
// =============================================================================

type realClock struct{}

// New returns a Clock backed by the system time.
func New() Clock {
	return realClock{}
}

// Now returns time.Now().
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep waits on a timer. Only the calling goroutine is suspended; other
// conversations keep making progress.
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// Fake Clock (for testing)
// =============================================================================

// Fake is a manually driven Clock.
//
// # Description
//
// Sleep returns immediately and advances the fake time by the requested
// duration, recording each call. Advance moves time forward explicitly.
//
// # Examples
//
//	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := conversation.NewStateStore(fc)
//	fc.Advance(25 * time.Hour)
//	store.Sweep(24 * time.Hour)
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep records d and advances the fake time by d without blocking.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns a copy of every duration passed to Sleep, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
