// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"sync"
)

// conversationLocks serializes work per conversation id.
//
// # Description
//
// Each id maps to a one-slot channel; holding the lock means occupying the
// slot. Acquisition honors ctx, so a waiter whose client went away stops
// waiting. Entries are reference counted and removed when nobody holds or
// waits on them, so idle conversations cost nothing.
//
// # Thread Safety
//
// Safe for concurrent use.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	slot chan struct{}
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// acquire blocks until the lock for id is held or ctx is done. The returned
// release func must be called exactly once.
func (l *conversationLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &conversationLock{slot: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.slot <- struct{}{}:
		return func() {
			<-lk.slot
			l.unref(id, lk)
		}, nil
	case <-ctx.Done():
		l.unref(id, lk)
		return nil, ctx.Err()
	}
}

func (l *conversationLocks) unref(id string, lk *conversationLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// len returns the number of ids currently held or waited on.
func (l *conversationLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
