// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types.
const (
	EventConversationCreated = "conversation.created"
	EventMessageRouted       = "message.routed"
	EventConversationSwept   = "conversation.swept"
)

// AuditEvent is one recorded event.
type AuditEvent struct {
	// EventType is "category.action", e.g. "message.routed".
	EventType string

	// Timestamp is when the event occurred. Zero means "now".
	Timestamp time.Time

	// ConversationID is the conversation involved, if any.
	ConversationID string

	// Outcome is "success", "failure" or a run outcome name.
	Outcome string

	// Metadata holds event-specific detail. Never message content.
	Metadata map[string]any
}

// AuditLogger records conversation lifecycle events.
//
// Log should return quickly; the router calls it on the request path and
// ignores its error after logging it.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error { return nil }
func (l *NopAuditLogger) Flush(ctx context.Context) error                 { return nil }

// SlogAuditLogger writes events to an slog.Logger at Info level.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates a logger. A nil logger uses slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

// Log implements AuditLogger.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"event_type", event.EventType,
		"timestamp", event.Timestamp,
		"conversation_id", event.ConversationID,
		"outcome", event.Outcome,
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Flush implements AuditLogger. Writes are synchronous.
func (l *SlogAuditLogger) Flush(ctx context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
