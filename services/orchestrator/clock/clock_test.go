// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock_SleepReturnsAfterDuration(t *testing.T) {
	c := New()
	start := time.Now()
	require.NoError(t, c.Sleep(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRealClock_SleepHonorsCancellation(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealClock_ZeroDuration(t *testing.T) {
	assert.NoError(t, New().Sleep(context.Background(), 0))
}

func TestFake_SleepAdvancesTime(t *testing.T) {
	fc := NewFake(epoch)

	require.NoError(t, fc.Sleep(context.Background(), time.Second))
	require.NoError(t, fc.Sleep(context.Background(), 2*time.Second))

	assert.Equal(t, epoch.Add(3*time.Second), fc.Now())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fc.Sleeps())
}

func TestFake_SleepCancelledContext(t *testing.T) {
	fc := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, fc.Sleep(ctx, time.Second), context.Canceled)
	assert.Empty(t, fc.Sleeps())
	assert.Equal(t, epoch, fc.Now())
}

func TestFake_AdvanceConcurrent(t *testing.T) {
	fc := NewFake(epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc.Advance(time.Minute)
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(50*time.Minute), fc.Now())
}
