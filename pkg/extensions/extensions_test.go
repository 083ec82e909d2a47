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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions_AllNoops(t *testing.T) {
	opts := DefaultOptions()

	_, found, err := opts.KnowledgeLookup.Search(context.Background(), "q", "c1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, opts.AuditLogger.Log(context.Background(), AuditEvent{EventType: EventMessageRouted}))
	assert.NoError(t, opts.AuditLogger.Flush(context.Background()))
}

func TestWithDefaults_FillsNilFields(t *testing.T) {
	opts := ServiceOptions{}.WithDefaults()
	assert.IsType(t, &NopKnowledgeLookup{}, opts.KnowledgeLookup)
	assert.IsType(t, &NopAuditLogger{}, opts.AuditLogger)

	custom := NewSlogAuditLogger(nil)
	opts = ServiceOptions{AuditLogger: custom}.WithDefaults()
	assert.Same(t, custom, opts.AuditLogger)
}

func TestWithBuilders_ReturnCopies(t *testing.T) {
	base := DefaultOptions()
	lookup := &NopKnowledgeLookup{}
	audit := NewSlogAuditLogger(nil)

	changed := base.WithKnowledge(lookup).WithAudit(audit)
	assert.Same(t, lookup, changed.KnowledgeLookup)
	assert.Same(t, audit, changed.AuditLogger)
	assert.NotSame(t, audit, base.AuditLogger)
}

func TestSlogAuditLogger_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	audit := NewSlogAuditLogger(logger)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := audit.Log(context.Background(), AuditEvent{
		EventType:      EventConversationCreated,
		Timestamp:      ts,
		ConversationID: "thread_1",
		Outcome:        "success",
		Metadata:       map[string]any{"message_length": 12},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, EventConversationCreated, line["event_type"])
	assert.Equal(t, "thread_1", line["conversation_id"])
	assert.Equal(t, float64(12), line["message_length"])
}
