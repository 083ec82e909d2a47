// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmtest provides an in-memory llm.ReasoningEngine for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianPortfolio/services/llm"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// FakeEngine is a scriptable llm.ReasoningEngine.
//
// # Description
//
// Each run walks through Script one status per GetRunStatus call; the last
// entry repeats forever. An empty Script completes on the first check. When
// a run is first reported completed, Reply (if set) is appended to the
// conversation as an assistant turn.
//
// Error fields make the matching method fail. Fields must be set before the
// engine is shared between goroutines.
//
// # Thread Safety
//
// Safe for concurrent use.
type FakeEngine struct {
	Script []llm.RunState
	Reply  *llm.TurnText
	// ReplyFunc, when set, produces the reply from the latest user turn and
	// takes precedence over Reply.
	ReplyFunc func(prompt string) *llm.TurnText
	// ReplyWithoutText appends an assistant turn with no text payload
	// instead of Reply.
	ReplyWithoutText bool
	Detail           string

	CreateErr error
	AppendErr error
	StartErr  error
	StatusErr error
	ListErr   error

	// OnStatus is called before each status check with the 1-based call
	// number for that run.
	OnStatus func(run llm.RunHandle, call int)

	mu            sync.Mutex
	next          int
	conversations map[string][]llm.EngineTurn
	runs          map[string]*fakeRun
	statusCalls   int
}

type fakeRun struct {
	conversationID string
	calls          int
	replied        bool
}

// NewFakeEngine returns an engine whose runs complete with reply.
func NewFakeEngine(reply string) *FakeEngine {
	return &FakeEngine{Reply: &llm.TurnText{Value: reply}}
}

func (f *FakeEngine) init() {
	if f.conversations == nil {
		f.conversations = make(map[string][]llm.EngineTurn)
		f.runs = make(map[string]*fakeRun)
	}
}

// CreateConversation implements llm.ReasoningEngine.
func (f *FakeEngine) CreateConversation(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.next++
	id := fmt.Sprintf("thread_%d", f.next)
	f.conversations[id] = nil
	return id, nil
}

// AppendTurn implements llm.ReasoningEngine.
func (f *FakeEngine) AppendTurn(ctx context.Context, conversationID string, role datatypes.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.AppendErr != nil {
		return f.AppendErr
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return llm.ErrUnknownConversation
	}
	f.conversations[conversationID] = append(f.conversations[conversationID],
		llm.EngineTurn{Role: role, Text: &llm.TurnText{Value: content}})
	return nil
}

// StartRun implements llm.ReasoningEngine.
func (f *FakeEngine) StartRun(ctx context.Context, conversationID string) (llm.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.StartErr != nil {
		return llm.RunHandle{}, f.StartErr
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return llm.RunHandle{}, llm.ErrUnknownConversation
	}
	f.next++
	id := fmt.Sprintf("run_%d", f.next)
	f.runs[id] = &fakeRun{conversationID: conversationID}
	return llm.RunHandle{ConversationID: conversationID, RunID: id}, nil
}

// GetRunStatus implements llm.ReasoningEngine.
func (f *FakeEngine) GetRunStatus(ctx context.Context, run llm.RunHandle) (llm.RunStatus, error) {
	f.mu.Lock()
	f.init()
	r, ok := f.runs[run.RunID]
	if !ok {
		f.mu.Unlock()
		return llm.RunStatus{}, llm.ErrUnknownRun
	}
	r.calls++
	f.statusCalls++
	call := r.calls
	hook := f.OnStatus
	f.mu.Unlock()

	if hook != nil {
		hook(run, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return llm.RunStatus{}, f.StatusErr
	}

	state := llm.RunStateCompleted
	if n := len(f.Script); n > 0 {
		state = f.Script[min(call, n)-1]
	}
	if state == llm.RunStateCompleted && !r.replied {
		r.replied = true
		if f.ReplyWithoutText {
			f.conversations[r.conversationID] = append(f.conversations[r.conversationID],
				llm.EngineTurn{Role: datatypes.RoleAssistant})
		} else if reply := f.reply(r.conversationID); reply != nil {
			f.conversations[r.conversationID] = append(f.conversations[r.conversationID],
				llm.EngineTurn{Role: datatypes.RoleAssistant, Text: reply})
		}
	}
	status := llm.RunStatus{State: state, Raw: string(state)}
	if state == llm.RunStateFailed {
		status.Detail = f.Detail
	}
	return status, nil
}

// reply picks the assistant payload. Caller holds f.mu.
func (f *FakeEngine) reply(conversationID string) *llm.TurnText {
	if f.ReplyFunc == nil {
		return f.Reply
	}
	turns := f.conversations[conversationID]
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == datatypes.RoleUser && turns[i].Text != nil {
			return f.ReplyFunc(turns[i].Text.Value)
		}
	}
	return f.ReplyFunc("")
}

// ListTurns implements llm.ReasoningEngine.
func (f *FakeEngine) ListTurns(ctx context.Context, conversationID string) ([]llm.EngineTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	turns, ok := f.conversations[conversationID]
	if !ok {
		return nil, llm.ErrUnknownConversation
	}
	return append([]llm.EngineTurn(nil), turns...), nil
}

// Turns returns the turns recorded for a conversation.
func (f *FakeEngine) Turns(conversationID string) []llm.EngineTurn {
	turns, _ := f.ListTurns(context.Background(), conversationID)
	return turns
}

// StatusCalls returns the total number of GetRunStatus calls.
func (f *FakeEngine) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// Conversations returns the number of conversations created.
func (f *FakeEngine) Conversations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

var _ llm.ReasoningEngine = (*FakeEngine)(nil)
