// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation provides per-conversation state for the orchestrator.
//
// # Description
//
// This package holds the three leaf components of message routing:
//   - ThreadRegistry: decides whether a client handle is reused or a new
//     conversation is created on the reasoning engine.
//   - StateStore: in-memory conversation state (context, history, activity)
//     keyed by conversation id, with sweep-based eviction.
//   - Compose: deterministic rendering of a Context into a prompt preamble.
//
// # Thread Safety
//
// ThreadRegistry and StateStore are safe for concurrent use. StateStore
// isolates conversations from each other: mutating one conversation never
// waits on another conversation's lock.
//
// # Lifecycle
//
// Nothing here is a package-level singleton. The orchestrator constructs one
// registry and one store per process (or per test) and passes them to the
// components that need them.
package conversation

import (
	"context"
	"time"
)

// ConversationCreator creates a new conversation on the reasoning engine.
//
// # Description
//
// The ThreadRegistry only needs this one capability of the engine, so it
// depends on this narrow interface rather than the full engine.
//
// # Outputs
//
//   - string: The new, never previously issued conversation id.
//   - error: Non-nil when the engine could not create a conversation.
type ConversationCreator interface {
	CreateConversation(ctx context.Context) (string, error)
}

// Sweeper is implemented by components that evict idle entries.
//
// # Outputs
//
//   - int: Number of entries removed.
type Sweeper interface {
	Sweep(maxAge time.Duration) int
}
