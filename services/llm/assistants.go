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
	"fmt"
	"log/slog"
	"slices"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.portfolio.llm")

// assistantsListLimit bounds how many recent messages ListTurns fetches.
const assistantsListLimit = 20

// AssistantsConfig configures AssistantsEngine.
type AssistantsConfig struct {
	APIKey      string
	AssistantID string
	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL string
}

// AssistantsEngine implements ReasoningEngine on the OpenAI Assistants API.
//
// # Description
//
// Conversations map to threads and runs map to assistant runs on the
// configured assistant. The API owns all state; this type is a thin adapter.
//
// # Thread Safety
//
// Safe for concurrent use.
type AssistantsEngine struct {
	client      *openai.Client
	assistantID string
}

// NewAssistantsEngine creates an engine bound to one assistant.
//
// # Outputs
//
//   - *AssistantsEngine: Ready engine.
//   - error: ErrEngineNotConfigured if the key or assistant id is missing.
func NewAssistantsEngine(cfg AssistantsConfig) (*AssistantsEngine, error) {
	if cfg.APIKey == "" || cfg.AssistantID == "" {
		return nil, fmt.Errorf("assistants engine: %w", ErrEngineNotConfigured)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing assistants engine", "assistant_id", cfg.AssistantID)
	return &AssistantsEngine{
		client:      openai.NewClientWithConfig(clientCfg),
		assistantID: cfg.AssistantID,
	}, nil
}

// CreateConversation creates a new thread.
func (e *AssistantsEngine) CreateConversation(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "AssistantsEngine.CreateConversation")
	defer span.End()

	thread, err := e.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", spanError(span, fmt.Errorf("create thread: %w", err))
	}
	span.SetAttributes(attribute.String("conversation.id", thread.ID))
	return thread.ID, nil
}

// AppendTurn adds a message to the thread.
func (e *AssistantsEngine) AppendTurn(ctx context.Context, conversationID string, role datatypes.Role, content string) error {
	ctx, span := tracer.Start(ctx, "AssistantsEngine.AppendTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("content.length", len(content)),
	)

	_, err := e.client.CreateMessage(ctx, conversationID, openai.MessageRequest{
		Role:    string(role),
		Content: content,
	})
	if err != nil {
		return spanError(span, fmt.Errorf("create message: %w", err))
	}
	return nil
}

// StartRun starts the configured assistant on the thread.
func (e *AssistantsEngine) StartRun(ctx context.Context, conversationID string) (RunHandle, error) {
	ctx, span := tracer.Start(ctx, "AssistantsEngine.StartRun")
	defer span.End()

	run, err := e.client.CreateRun(ctx, conversationID, openai.RunRequest{
		AssistantID: e.assistantID,
	})
	if err != nil {
		return RunHandle{}, spanError(span, fmt.Errorf("create run: %w", err))
	}
	span.SetAttributes(attribute.String("run.id", run.ID))
	return RunHandle{ConversationID: conversationID, RunID: run.ID}, nil
}

// GetRunStatus retrieves the run and normalizes its status.
func (e *AssistantsEngine) GetRunStatus(ctx context.Context, run RunHandle) (RunStatus, error) {
	r, err := e.client.RetrieveRun(ctx, run.ConversationID, run.RunID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("retrieve run: %w", err)
	}
	status := RunStatus{
		State: assistantsRunState(r.Status),
		Raw:   string(r.Status),
	}
	if r.LastError != nil {
		status.Detail = fmt.Sprintf("%s: %s", r.LastError.Code, r.LastError.Message)
	}
	return status, nil
}

// ListTurns returns the most recent messages in chronological order.
func (e *AssistantsEngine) ListTurns(ctx context.Context, conversationID string) ([]EngineTurn, error) {
	ctx, span := tracer.Start(ctx, "AssistantsEngine.ListTurns")
	defer span.End()

	limit := assistantsListLimit
	order := "desc"
	list, err := e.client.ListMessage(ctx, conversationID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("list messages: %w", err))
	}

	turns := assistantsTurns(list.Messages)
	slices.Reverse(turns)
	return turns, nil
}

// assistantsRunState maps API statuses onto RunState.
func assistantsRunState(s openai.RunStatus) RunState {
	switch s {
	case openai.RunStatusQueued:
		return RunStateQueued
	case openai.RunStatusInProgress:
		return RunStateInProgress
	case openai.RunStatusCompleted:
		return RunStateCompleted
	case openai.RunStatusFailed:
		return RunStateFailed
	default:
		return RunStateOther
	}
}

// assistantsTurns converts API messages, keeping their order. The first text
// content block of a message is its text payload.
func assistantsTurns(msgs []openai.Message) []EngineTurn {
	turns := make([]EngineTurn, 0, len(msgs))
	for _, m := range msgs {
		turn := EngineTurn{Role: datatypes.Role(m.Role)}
		for _, c := range m.Content {
			if c.Type != "text" || c.Text == nil {
				continue
			}
			turn.Text = &TurnText{
				Value:       c.Text.Value,
				Annotations: annotationSpans(c.Text.Annotations),
			}
			break
		}
		turns = append(turns, turn)
	}
	return turns
}

// annotationSpans extracts the "text" field of each annotation object.
// Annotations without one are ignored.
func annotationSpans(raw []any) []string {
	var spans []string
	for _, a := range raw {
		obj, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := obj["text"].(string); ok && text != "" {
			spans = append(spans, text)
		}
	}
	return spans
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

var _ ReasoningEngine = (*AssistantsEngine)(nil)
