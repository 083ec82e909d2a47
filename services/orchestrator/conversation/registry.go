// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
)

// ThreadRegistry maps client-supplied conversation handles to engine
// conversation ids.
//
// # Description
//
// A handle the registry has issued before is returned unchanged. Anything
// else (absent, stale, garbage) is "not found" and falls through to creating
// a fresh conversation on the engine. An unknown handle is never an error and
// is never substituted by a different existing conversation.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type ThreadRegistry struct {
	creator ConversationCreator
	clock   clock.Clock

	mu    sync.RWMutex
	known map[string]time.Time // id -> last resolved
}

// NewThreadRegistry creates an empty registry.
//
// # Inputs
//
//   - creator: Engine capability used to create conversations.
//   - clk: Time source for last-resolved bookkeeping.
func NewThreadRegistry(creator ConversationCreator, clk clock.Clock) *ThreadRegistry {
	return &ThreadRegistry{
		creator: creator,
		clock:   clk,
		known:   make(map[string]time.Time),
	}
}

// Resolve returns the conversation id to use for clientHandle.
//
// # Description
//
// Known handles are returned as-is. An empty or unknown handle triggers
// CreateConversation on the engine; the new id is registered and returned.
//
// # Inputs
//
//   - ctx: Context for the engine call.
//   - clientHandle: Handle presented by the client. May be empty.
//
// # Outputs
//
//   - string: Conversation id.
//   - bool: True when a new conversation was created.
//   - error: Non-nil only when the engine failed to create a conversation.
func (r *ThreadRegistry) Resolve(ctx context.Context, clientHandle string) (string, bool, error) {
	if clientHandle != "" {
		r.mu.Lock()
		_, ok := r.known[clientHandle]
		if ok {
			r.known[clientHandle] = r.clock.Now()
		}
		r.mu.Unlock()

		if ok {
			slog.Debug("Using existing conversation", "conversation_id", clientHandle)
			return clientHandle, false, nil
		}
		slog.Info("Unknown conversation handle, creating a new conversation",
			"client_handle_len", len(clientHandle))
	}

	id, err := r.creator.CreateConversation(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to create conversation: %w", err)
	}

	r.mu.Lock()
	r.known[id] = r.clock.Now()
	r.mu.Unlock()

	slog.Debug("Created new conversation", "conversation_id", id)
	return id, true, nil
}

// Known reports whether id was issued by this registry and not yet swept.
func (r *ThreadRegistry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[id]
	return ok
}

// Len returns the number of registered handles.
func (r *ThreadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}

// Sweep forgets handles not resolved within maxAge.
//
// A forgotten handle presented later is treated like any unknown handle and
// gets a new conversation.
func (r *ThreadRegistry) Sweep(maxAge time.Duration) int {
	cutoff := r.clock.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, lastSeen := range r.known {
		if lastSeen.Before(cutoff) {
			delete(r.known, id)
			removed++
		}
	}
	return removed
}

var _ Sweeper = (*ThreadRegistry)(nil)
