// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm adapts reasoning backends to the conversation/run lifecycle the
// orchestrator drives: create a conversation, append turns, start a run, poll
// the run, then list the produced turns.
//
// Two engines are provided. AssistantsEngine talks to a hosted assistants API
// that owns conversations and runs natively. CompletionsEngine emulates the
// same lifecycle on top of any stateless chat backend (OpenAI chat
// completions, Ollama) by keeping the turns in memory and executing each run
// on a goroutine.
package llm

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// Errors returned by engines.
var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrUnknownRun          = errors.New("unknown run")
	ErrEngineNotConfigured = errors.New("reasoning engine not configured")
)

// RunState is the engine-reported status of a run.
type RunState string

const (
	RunStateQueued     RunState = "queued"
	RunStateInProgress RunState = "in_progress"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
	// RunStateOther covers every other terminal status (cancelled, expired,
	// requires_action, anything new). Raw carries the original value.
	RunStateOther RunState = "other"
)

// Pending reports whether a caller should keep polling.
func (s RunState) Pending() bool {
	return s == RunStateQueued || s == RunStateInProgress
}

// RunHandle identifies one run on one conversation.
type RunHandle struct {
	ConversationID string
	RunID          string
}

// RunStatus is one poll result.
//
// # Fields
//
//   - State: Normalized status.
//   - Raw: Status string as reported by the backend.
//   - Detail: Backend error detail for failed runs. For logs only.
type RunStatus struct {
	State  RunState
	Raw    string
	Detail string
}

// TurnText is the text payload of a turn plus the annotation spans the
// backend embedded in it.
type TurnText struct {
	Value       string
	Annotations []string
}

// EngineTurn is one turn as stored by the engine. Text is nil for turns that
// carry no text payload (images, tool output).
type EngineTurn struct {
	Role datatypes.Role
	Text *TurnText
}

// ReasoningEngine is the capability set the orchestrator needs from a
// backend.
//
// # Description
//
// ListTurns returns turns in chronological order (oldest first).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ReasoningEngine interface {
	CreateConversation(ctx context.Context) (string, error)
	AppendTurn(ctx context.Context, conversationID string, role datatypes.Role, content string) error
	StartRun(ctx context.Context, conversationID string) (RunHandle, error)
	GetRunStatus(ctx context.Context, run RunHandle) (RunStatus, error)
	ListTurns(ctx context.Context, conversationID string) ([]EngineTurn, error)
}
