// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

func TestNewAssistantsEngine_RequiresConfig(t *testing.T) {
	_, err := NewAssistantsEngine(AssistantsConfig{APIKey: "sk-test"})
	assert.ErrorIs(t, err, ErrEngineNotConfigured)

	_, err = NewAssistantsEngine(AssistantsConfig{AssistantID: "asst_1"})
	assert.ErrorIs(t, err, ErrEngineNotConfigured)
}

func TestAssistantsRunState(t *testing.T) {
	tests := []struct {
		in   openai.RunStatus
		want RunState
	}{
		{openai.RunStatusQueued, RunStateQueued},
		{openai.RunStatusInProgress, RunStateInProgress},
		{openai.RunStatusCompleted, RunStateCompleted},
		{openai.RunStatusFailed, RunStateFailed},
		{openai.RunStatusCancelled, RunStateOther},
		{openai.RunStatusExpired, RunStateOther},
		{openai.RunStatus("something_new"), RunStateOther},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, assistantsRunState(tt.in))
		})
	}
}

func TestAssistantsTurns_ExtractsTextAndAnnotations(t *testing.T) {
	msgs := []openai.Message{
		{
			Role: "assistant",
			Content: []openai.MessageContent{
				{Type: "image_file"},
				{Type: "text", Text: &openai.MessageText{
					Value: "See resume【4:0†source】.",
					Annotations: []any{
						map[string]any{"type": "file_citation", "text": "【4:0†source】"},
						map[string]any{"type": "file_path"},
						"not an object",
					},
				}},
			},
		},
		{Role: "user", Content: []openai.MessageContent{{Type: "image_file"}}},
	}

	turns := assistantsTurns(msgs)
	require.Len(t, turns, 2)
	assert.Equal(t, datatypes.RoleAssistant, turns[0].Role)
	require.NotNil(t, turns[0].Text)
	assert.Equal(t, "See resume【4:0†source】.", turns[0].Text.Value)
	assert.Equal(t, []string{"【4:0†source】"}, turns[0].Text.Annotations)
	assert.Nil(t, turns[1].Text)
}

// TestAssistantsEngine_Lifecycle drives the engine against a stub API server.
func TestAssistantsEngine_Lifecycle(t *testing.T) {
	var gotMessage map[string]any
	var gotRun map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "thread_abc", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		gotMessage = decodeBody(t, r)
		writeJSON(w, map[string]any{"id": "msg_1", "object": "thread.message", "role": "user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
		gotRun = decodeBody(t, r)
		writeJSON(w, map[string]any{"id": "run_1", "object": "thread.run", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":         "run_1",
			"object":     "thread.run",
			"status":     "failed",
			"last_error": map[string]any{"code": "server_error", "message": "boom"},
		})
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"id": "msg_2", "role": "assistant", "content": []any{
					map[string]any{"type": "text", "text": map[string]any{"value": "newer", "annotations": []any{}}},
				}},
				map[string]any{"id": "msg_1", "role": "user", "content": []any{
					map[string]any{"type": "text", "text": map[string]any{"value": "older", "annotations": []any{}}},
				}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, err := NewAssistantsEngine(AssistantsConfig{APIKey: "sk-test", AssistantID: "asst_1", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	ctx := context.Background()

	id, err := e.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", id)

	require.NoError(t, e.AppendTurn(ctx, id, datatypes.RoleUser, "hello"))
	assert.Equal(t, "user", gotMessage["role"])
	assert.Equal(t, "hello", gotMessage["content"])

	run, err := e.StartRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunHandle{ConversationID: "thread_abc", RunID: "run_1"}, run)
	assert.Equal(t, "asst_1", gotRun["assistant_id"])

	status, err := e.GetRunStatus(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, RunStateFailed, status.State)
	assert.Equal(t, "server_error: boom", status.Detail)

	turns, err := e.ListTurns(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "older", turns[0].Text.Value, "turns are chronological")
	assert.Equal(t, "newer", turns[1].Text.Value)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
