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
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel/attribute"
)

// OllamaChatConfig configures OllamaChatClient.
type OllamaChatConfig struct {
	BaseURL string
	Model   string
}

// OllamaChatClient is a ChatClient over a local Ollama server.
type OllamaChatClient struct {
	llm   llms.Model
	model string
}

// NewOllamaChatClient creates a client. The server URL is required.
func NewOllamaChatClient(cfg OllamaChatConfig) (*OllamaChatClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama chat client: base url: %w", ErrEngineNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-oss"
		slog.Warn("Ollama model not set, defaulting to gpt-oss")
	}
	model, err := ollama.New(
		ollama.WithServerURL(strings.TrimSuffix(cfg.BaseURL, "/")),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	slog.Info("Initializing Ollama chat client", "base_url", cfg.BaseURL, "model", cfg.Model)
	return &OllamaChatClient{llm: model, model: cfg.Model}, nil
}

// Chat implements ChatClient.
func (o *OllamaChatClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaChatClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	resp, err := o.llm.GenerateContent(ctx, toLangchainMessages(messages))
	if err != nil {
		return "", spanError(span, fmt.Errorf("Ollama call failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", spanError(span, fmt.Errorf("Ollama returned no choices"))
	}
	return resp.Choices[0].Content, nil
}

func toLangchainMessages(messages []ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case ChatRoleSystem:
			role = llms.ChatMessageTypeSystem
		case ChatRoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

var _ ChatClient = (*OllamaChatClient)(nil)
