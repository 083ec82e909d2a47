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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// =============================================================================
// Chat Client Contract
// =============================================================================

// Chat message roles understood by ChatClient implementations.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one message sent to a stateless chat backend.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatClient is a stateless chat backend: full transcript in, one reply out.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// =============================================================================
// Completions Engine
// =============================================================================

// DefaultPersonaPrompt is the system prompt used when none is configured.
const DefaultPersonaPrompt = "You are a helpful assistant answering questions about the portfolio owner's background and experience."

// CompletionsConfig configures CompletionsEngine.
type CompletionsConfig struct {
	// PersonaPrompt is sent as the system message of every run.
	PersonaPrompt string
	// RunTimeout bounds a single backend call.
	RunTimeout time.Duration
	// MaxTranscriptTurns caps how many trailing turns are sent per run.
	// Zero sends everything.
	MaxTranscriptTurns int
}

// DefaultCompletionsConfig returns production defaults.
func DefaultCompletionsConfig() CompletionsConfig {
	return CompletionsConfig{
		PersonaPrompt:      DefaultPersonaPrompt,
		RunTimeout:         2 * time.Minute,
		MaxTranscriptTurns: 40,
	}
}

// CompletionsEngine emulates conversations and runs over a ChatClient.
//
// # Description
//
// Conversations are in-memory transcripts keyed by a generated id. StartRun
// snapshots the transcript and calls the chat backend on a goroutine; the
// reply is appended as an assistant turn when the call succeeds. A run is
// forgotten once a caller has observed it in a terminal state.
//
// # Limitations
//
//   - Annotation spans are never produced.
//   - Transcripts live in process memory and are removed by Sweep.
//
// # Thread Safety
//
// Safe for concurrent use. Close waits for in-flight runs.
type CompletionsEngine struct {
	chat   ChatClient
	clock  clock.Clock
	config CompletionsConfig

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.Mutex
	conversations map[string]*completionsThread
	runs          map[string]*completionsRun
}

type completionsThread struct {
	turns    []EngineTurn
	lastUsed time.Time
}

type completionsRun struct {
	conversationID string
	state          RunState
	detail         string
	finished       time.Time
}

// NewCompletionsEngine creates an engine over chat.
func NewCompletionsEngine(chat ChatClient, clk clock.Clock, cfg CompletionsConfig) *CompletionsEngine {
	defaults := DefaultCompletionsConfig()
	if cfg.PersonaPrompt == "" {
		cfg.PersonaPrompt = defaults.PersonaPrompt
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaults.RunTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CompletionsEngine{
		chat:          chat,
		clock:         clk,
		config:        cfg,
		baseCtx:       ctx,
		cancel:        cancel,
		conversations: make(map[string]*completionsThread),
		runs:          make(map[string]*completionsRun),
	}
}

// CreateConversation allocates an empty transcript.
func (e *CompletionsEngine) CreateConversation(ctx context.Context) (string, error) {
	id := "conv_" + uuid.NewString()
	e.mu.Lock()
	e.conversations[id] = &completionsThread{lastUsed: e.clock.Now()}
	e.mu.Unlock()
	return id, nil
}

// AppendTurn appends to the transcript.
func (e *CompletionsEngine) AppendTurn(ctx context.Context, conversationID string, role datatypes.Role, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.conversations[conversationID]
	if !ok {
		return fmt.Errorf("append turn to %s: %w", conversationID, ErrUnknownConversation)
	}
	t.turns = append(t.turns, EngineTurn{Role: role, Text: &TurnText{Value: content}})
	t.lastUsed = e.clock.Now()
	return nil
}

// StartRun snapshots the transcript and starts the backend call.
func (e *CompletionsEngine) StartRun(ctx context.Context, conversationID string) (RunHandle, error) {
	e.mu.Lock()
	t, ok := e.conversations[conversationID]
	if !ok {
		e.mu.Unlock()
		return RunHandle{}, fmt.Errorf("start run on %s: %w", conversationID, ErrUnknownConversation)
	}
	t.lastUsed = e.clock.Now()
	messages := e.transcript(t.turns)
	runID := "run_" + uuid.NewString()
	e.runs[runID] = &completionsRun{conversationID: conversationID, state: RunStateQueued}
	e.mu.Unlock()

	e.wg.Add(1)
	go e.execute(runID, conversationID, messages)

	return RunHandle{ConversationID: conversationID, RunID: runID}, nil
}

// execute runs on its own goroutine, detached from the request context so a
// client disconnect does not abandon a half-finished run.
func (e *CompletionsEngine) execute(runID, conversationID string, messages []ChatMessage) {
	defer e.wg.Done()

	e.setRunState(runID, RunStateInProgress, "")

	ctx, cancel := context.WithTimeout(e.baseCtx, e.config.RunTimeout)
	defer cancel()

	reply, err := e.chat.Chat(ctx, messages)
	if err != nil {
		slog.Warn("Chat backend call failed", "run_id", runID, "error", err)
		e.setRunState(runID, RunStateFailed, err.Error())
		return
	}

	e.mu.Lock()
	if t, ok := e.conversations[conversationID]; ok {
		t.turns = append(t.turns, EngineTurn{Role: datatypes.RoleAssistant, Text: &TurnText{Value: reply}})
		t.lastUsed = e.clock.Now()
	}
	e.mu.Unlock()

	e.setRunState(runID, RunStateCompleted, "")
}

func (e *CompletionsEngine) setRunState(runID string, state RunState, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return
	}
	r.state = state
	r.detail = detail
	if !state.Pending() {
		r.finished = e.clock.Now()
	}
}

// GetRunStatus reports the run state. Terminal runs are forgotten after
// being reported once.
func (e *CompletionsEngine) GetRunStatus(ctx context.Context, run RunHandle) (RunStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[run.RunID]
	if !ok || r.conversationID != run.ConversationID {
		return RunStatus{}, fmt.Errorf("run %s: %w", run.RunID, ErrUnknownRun)
	}
	status := RunStatus{State: r.state, Raw: string(r.state), Detail: r.detail}
	if !r.state.Pending() {
		delete(e.runs, run.RunID)
	}
	return status, nil
}

// ListTurns returns a copy of the transcript.
func (e *CompletionsEngine) ListTurns(ctx context.Context, conversationID string) ([]EngineTurn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("list turns of %s: %w", conversationID, ErrUnknownConversation)
	}
	out := make([]EngineTurn, len(t.turns))
	copy(out, t.turns)
	return out, nil
}

// Sweep removes transcripts idle for longer than maxAge along with finished
// runs nobody collected. In-flight runs are kept.
func (e *CompletionsEngine) Sweep(maxAge time.Duration) int {
	cutoff := e.clock.Now().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, t := range e.conversations {
		if t.lastUsed.Before(cutoff) {
			delete(e.conversations, id)
			removed++
		}
	}
	for id, r := range e.runs {
		if !r.state.Pending() && r.finished.Before(cutoff) {
			delete(e.runs, id)
		}
	}
	return removed
}

// Close cancels in-flight runs and waits for their goroutines.
func (e *CompletionsEngine) Close() {
	e.cancel()
	e.wg.Wait()
}

// transcript builds the backend payload. Caller holds e.mu.
func (e *CompletionsEngine) transcript(turns []EngineTurn) []ChatMessage {
	if n := e.config.MaxTranscriptTurns; n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	messages := make([]ChatMessage, 0, len(turns)+1)
	messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: e.config.PersonaPrompt})
	for _, t := range turns {
		if t.Text == nil {
			continue
		}
		role := ChatRoleUser
		if t.Role == datatypes.RoleAssistant {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: t.Text.Value})
	}
	return messages
}

var _ ReasoningEngine = (*CompletionsEngine)(nil)
