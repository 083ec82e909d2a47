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

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIChatConfig configures OpenAIChatClient.
type OpenAIChatConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
}

// OpenAIChatClient is a ChatClient over OpenAI chat completions.
type OpenAIChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIChatClient creates a client. The model defaults to gpt-4o-mini.
func NewOpenAIChatClient(cfg OpenAIChatConfig) (*OpenAIChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai chat client: %w", ErrEngineNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI chat client", "model", cfg.Model)
	return &OpenAIChatClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Chat implements ChatClient.
func (o *OpenAIChatClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIChatClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: o.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", spanError(span, fmt.Errorf("OpenAI API call failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", spanError(span, fmt.Errorf("OpenAI returned no choices"))
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

var _ ChatClient = (*OpenAIChatClient)(nil)
