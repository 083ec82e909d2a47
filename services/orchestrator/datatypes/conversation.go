// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"slices"
	"time"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the visitor.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the reasoning engine.
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation's message history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata tracks the activity of a conversation.
//
// LastActivity and MessageCount are updated on every appended turn and
// drive time-based eviction.
type Metadata struct {
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
}

// ConversationState is the orchestrator's view of one conversation.
//
// # Description
//
// Values of this type handed out by the state store are snapshots: the
// history slice is a copy and may be read freely without locking.
//
// # Fields
//
//   - ConversationID: Engine-issued (or locally generated) handle.
//   - Context: Last known context, merged field by field.
//   - MessageHistory: Append-only, insertion-ordered turns.
//   - Metadata: Start / last activity / message count.
type ConversationState struct {
	ConversationID string   `json:"conversationId"`
	Context        Context  `json:"context"`
	MessageHistory []Turn   `json:"messageHistory"`
	Metadata       Metadata `json:"metadata"`
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s ConversationState) Clone() ConversationState {
	s.MessageHistory = slices.Clone(s.MessageHistory)
	return s
}
