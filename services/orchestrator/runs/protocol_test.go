// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPortfolio/services/llm"
	"github.com/AleutianAI/AleutianPortfolio/services/llm/llmtest"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// =============================================================================
// Test Helpers
// =============================================================================

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newConversation(t *testing.T, engine *llmtest.FakeEngine) string {
	t.Helper()
	id, err := engine.CreateConversation(context.Background())
	require.NoError(t, err)
	return id
}

func repeat(state llm.RunState, n int) []llm.RunState {
	out := make([]llm.RunState, n)
	for i := range out {
		out[i] = state
	}
	return out
}

// =============================================================================
// Outcome Classification Tests
// =============================================================================

func TestExecute_CompletesImmediately(t *testing.T) {
	engine := llmtest.NewFakeEngine("I build distributed systems.")
	fc := clock.NewFake(epoch)
	p := NewProtocol(engine, fc, DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "Tell me about yourself")
	require.NoError(t, err)

	assert.Equal(t, Completed, out.Kind)
	assert.Equal(t, "I build distributed systems.", out.Text)
	assert.Zero(t, out.Attempts)
	assert.Empty(t, fc.Sleeps(), "no wait when the first check is terminal")

	turns := engine.Turns(id)
	require.Len(t, turns, 2)
	assert.Equal(t, datatypes.RoleUser, turns[0].Role)
	assert.Equal(t, "Tell me about yourself", turns[0].Text.Value)
}

func TestExecute_PollsUntilCompleted(t *testing.T) {
	engine := llmtest.NewFakeEngine("done")
	engine.Script = []llm.RunState{
		llm.RunStateQueued,
		llm.RunStateInProgress,
		llm.RunStateInProgress,
		llm.RunStateCompleted,
	}
	fc := clock.NewFake(epoch)
	p := NewProtocol(engine, fc, DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)

	assert.Equal(t, Completed, out.Kind)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, fc.Sleeps())
	assert.Equal(t, 4, engine.StatusCalls())
}

func TestExecute_StripsAnnotations(t *testing.T) {
	engine := &llmtest.FakeEngine{Reply: &llm.TurnText{
		Value:       "Led the platform team【4:0†resume.pdf】 for three years【4:1†resume.pdf】.",
		Annotations: []string{"【4:0†resume.pdf】", "", "【4:1†resume.pdf】"},
	}}
	p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Kind)
	assert.Equal(t, "Led the platform team for three years.", out.Text)
}

func TestExecute_FailedStatus(t *testing.T) {
	engine := llmtest.NewFakeEngine("unused")
	engine.Script = []llm.RunState{llm.RunStateInProgress, llm.RunStateFailed}
	engine.Detail = "server_error: upstream exploded"
	p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonAssistantFailed, out.Reason)
	assert.NotContains(t, out.Reason, "upstream", "engine detail is never surfaced")
}

func TestExecute_OtherTerminalStatusIsCancelled(t *testing.T) {
	engine := llmtest.NewFakeEngine("unused")
	engine.Script = []llm.RunState{llm.RunStateOther}
	p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, out.Kind)
}

func TestExecute_NoUsableResponse(t *testing.T) {
	tests := []struct {
		name  string
		reply *llm.TurnText
	}{
		{"no assistant turn", nil},
		{"empty text", &llm.TurnText{Value: ""}},
		{"only annotations", &llm.TurnText{Value: "【1†a】", Annotations: []string{"【1†a】"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &llmtest.FakeEngine{Reply: tt.reply}
			p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
			id := newConversation(t, engine)

			out, err := p.Execute(context.Background(), id, "q")
			require.NoError(t, err)
			assert.Equal(t, Failed, out.Kind)
			assert.Equal(t, ReasonNoUsableResponse, out.Reason)
		})
	}
}

func TestExecute_AssistantTurnWithoutTextPayload(t *testing.T) {
	engine := &llmtest.FakeEngine{ReplyWithoutText: true}
	p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
	id := newConversation(t, engine)

	// An older assistant turn with text must not be picked over the newest.
	require.NoError(t, engine.AppendTurn(context.Background(), id, datatypes.RoleAssistant, "stale"))

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonNoUsableResponse, out.Reason)
}

// =============================================================================
// Budget / Cancellation Tests
// =============================================================================

func TestExecute_TimesOutAfterMaxAttempts(t *testing.T) {
	engine := llmtest.NewFakeEngine("never")
	engine.Script = []llm.RunState{llm.RunStateInProgress}
	fc := clock.NewFake(epoch)
	p := NewProtocol(engine, fc, DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)

	assert.Equal(t, TimedOut, out.Kind)
	assert.Equal(t, 50, out.Attempts)
	assert.Len(t, fc.Sleeps(), 50)
	assert.Equal(t, 51, engine.StatusCalls(), "initial check plus one per attempt")
	assert.Equal(t, epoch.Add(50*time.Second), fc.Now())
}

func TestExecute_CompletesOnLastAttempt(t *testing.T) {
	engine := llmtest.NewFakeEngine("just in time")
	engine.Script = append(repeat(llm.RunStateQueued, 3), llm.RunStateCompleted)
	p := NewProtocol(engine, clock.NewFake(epoch), Config{PollInterval: time.Second, MaxAttempts: 3})
	id := newConversation(t, engine)

	out, err := p.Execute(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Kind)
	assert.Equal(t, 3, out.Attempts)
}

func TestExecute_ContextCancelledWhilePolling(t *testing.T) {
	engine := llmtest.NewFakeEngine("never")
	engine.Script = []llm.RunState{llm.RunStateQueued}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.OnStatus = func(run llm.RunHandle, call int) {
		if call == 3 {
			cancel()
		}
	}
	p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())
	id := newConversation(t, engine)

	out, err := p.Execute(ctx, id, "q")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, out.Kind)
	assert.Equal(t, 2, out.Attempts)
}

func TestExecute_EngineErrorsAreReturned(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(*llmtest.FakeEngine)
		want  string
	}{
		{"append", func(f *llmtest.FakeEngine) { f.AppendErr = boom }, "failed to append turn"},
		{"start", func(f *llmtest.FakeEngine) { f.StartErr = boom }, "failed to start run"},
		{"status", func(f *llmtest.FakeEngine) { f.StatusErr = boom }, "failed to get run status"},
		{"list", func(f *llmtest.FakeEngine) { f.ListErr = boom }, "failed to list turns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := llmtest.NewFakeEngine("x")
			id := newConversation(t, engine)
			tt.setup(engine)
			p := NewProtocol(engine, clock.NewFake(epoch), DefaultConfig())

			_, err := p.Execute(context.Background(), id, "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecute_SlowRunDoesNotBlockOthers(t *testing.T) {
	slow := llmtest.NewFakeEngine("slow")
	slow.Script = []llm.RunState{llm.RunStateInProgress}
	release := make(chan struct{})
	slow.OnStatus = func(run llm.RunHandle, call int) {
		if call == 2 {
			<-release
		}
	}
	fast := llmtest.NewFakeEngine("fast")

	slowID := newConversation(t, slow)
	fastID := newConversation(t, fast)
	slowP := NewProtocol(slow, clock.NewFake(epoch), Config{PollInterval: time.Second, MaxAttempts: 2})
	fastP := NewProtocol(fast, clock.NewFake(epoch), DefaultConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		out, err := slowP.Execute(context.Background(), slowID, "q")
		assert.NoError(t, err)
		assert.Equal(t, TimedOut, out.Kind)
	}()

	out, err := fastP.Execute(context.Background(), fastID, "q")
	require.NoError(t, err)
	assert.Equal(t, "fast", out.Text)

	close(release)
	wg.Wait()
}

// =============================================================================
// Helpers / Config Tests
// =============================================================================

func TestStripAnnotations_FirstOccurrenceOnly(t *testing.T) {
	assert.Equal(t, "a b [1]", StripAnnotations("a [1]b [1]", []string{"[1]"}))
	assert.Equal(t, "a b ", StripAnnotations("a [1]b [1]", []string{"[1]", "[1]"}))
	assert.Equal(t, "unchanged", StripAnnotations("unchanged", nil))
}

func TestNewProtocol_FallsBackToDefaults(t *testing.T) {
	p := NewProtocol(llmtest.NewFakeEngine(""), clock.NewFake(epoch), Config{})
	assert.Equal(t, DefaultConfig(), p.Config())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{PollInterval: 0, MaxAttempts: 1}.Validate())
	assert.Error(t, Config{PollInterval: time.Second, MaxAttempts: 0}.Validate())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}
