// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the portfolio chat orchestrator.
//
// This file contains the inbound chatbot request/response types. Conversation
// state types live in conversation.go and the structured context in context.go.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxContextFieldBytes is the maximum size of a single context field.
	// Pasted job descriptions and file summaries can be long, so this is
	// looser than the message limit.
	MaxContextFieldBytes = 256 * 1024 // 256KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = chatValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateMaxBytes checks byte length (not rune count) against MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// validateNotBlank rejects strings that are empty after trimming whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// Chatbot Request Types
// =============================================================================

// ChatbotRequest is the body of POST /api/chatbot and of each WebSocket frame.
//
// # Description
//
// Carries one visitor message, the optional conversation handle the client
// received on a previous reply, and optional contextual material. Field names
// follow the browser client's wire format.
//
// # Fields
//
//   - Message: Required. The visitor's message, at most 32KB.
//   - ThreadID: Optional. Opaque handle from a previous response.
//   - Context: Optional. Pre-flattened contextual material.
//
// # Examples
//
//	req := ChatbotRequest{
//	    Message:  "Am I qualified?",
//	    ThreadID: "thread_abc123",
//	    Context:  &Context{PastedText: "Job req: Senior Engineer"},
//	}
//	if err := req.Validate(); err != nil {
//	    return err
//	}
type ChatbotRequest struct {
	Message  string   `json:"message" validate:"required,notblank,maxbytes"`
	ThreadID string   `json:"threadId,omitempty" validate:"omitempty,max=256"`
	Context  *Context `json:"context,omitempty"`
}

// Validate checks the request against its struct tags and the context limits.
//
// # Outputs
//
//   - error: validator.ValidationErrors when a field is invalid, nil otherwise.
func (r *ChatbotRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if r.Context != nil {
		return chatValidate.Struct(r.Context)
	}
	return nil
}

// ChatbotResponse is the single NDJSON line (or WebSocket frame) sent back.
//
// Exactly one of Response or Error is populated.
type ChatbotResponse struct {
	Response string `json:"response,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HistoryResponse is returned by GET /api/conversations/:id/history.
type HistoryResponse struct {
	ThreadID     string `json:"threadId"`
	History      string `json:"history"`
	MessageCount int    `json:"messageCount"`
}
