// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runs drives one reasoning-engine run from submission to a terminal
// outcome.
//
// A run moves through Submitted -> Polling -> one of Completed, Failed,
// TimedOut or Cancelled. Terminal states are final. Waiting between polls
// goes through clock.Clock, so tests advance time instead of sleeping.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianPortfolio/services/llm"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// =============================================================================
// Outcome
// =============================================================================

// Kind tags an Outcome.
type Kind int

const (
	Completed Kind = iota
	Failed
	TimedOut
	Cancelled
)

// String returns the lower-case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Failure reasons carried by Failed outcomes.
const (
	ReasonAssistantFailed  = "assistant failed to respond"
	ReasonNoUsableResponse = "no usable response"
)

// Outcome is the result of one Execute call.
//
// # Fields
//
//   - Kind: Terminal state reached.
//   - Text: Assistant text with annotations stripped. Set only when Completed.
//   - Reason: Failure reason. Set only when Failed.
//   - Attempts: Number of status polls after the initial check.
type Outcome struct {
	Kind     Kind
	Text     string
	Reason   string
	Attempts int
}

// =============================================================================
// Protocol
// =============================================================================

// Config controls polling.
type Config struct {
	// PollInterval is the wait between status checks. Default: 1s
	PollInterval time.Duration
	// MaxAttempts is the number of waits before giving up. Default: 50
	MaxAttempts int
}

// DefaultConfig returns the production polling budget (about 50 seconds).
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxAttempts:  50,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// state is the protocol's position within one Execute call.
type state int

const (
	stateSubmitted state = iota
	statePolling
	stateDone
)

// Protocol executes runs against a ReasoningEngine.
//
// # Thread Safety
//
// Stateless between calls; safe for concurrent use. Each Execute call blocks
// only its own goroutine.
type Protocol struct {
	engine llm.ReasoningEngine
	clock  clock.Clock
	config Config
}

// NewProtocol creates a Protocol. Invalid config fields fall back to
// DefaultConfig values.
func NewProtocol(engine llm.ReasoningEngine, clk clock.Clock, cfg Config) *Protocol {
	d := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	return &Protocol{engine: engine, clock: clk, config: cfg}
}

// Config returns the effective configuration.
func (p *Protocol) Config() Config {
	return p.config
}

// Execute submits prompt to the conversation and waits for the run.
//
// # Description
//
// The prompt is appended as a user turn, a run is started and its status is
// checked once. While the engine reports queued or in_progress the protocol
// waits PollInterval and checks again, at most MaxAttempts times. Running
// out of attempts yields TimedOut; the engine-side run is left alone.
//
// # Inputs
//
//   - ctx: Cancellation for waits and engine calls. Cancellation yields a
//     Cancelled outcome, not an error.
//   - conversationID: Engine conversation id.
//   - prompt: Effective prompt.
//
// # Outputs
//
//   - Outcome: Terminal outcome. Meaningful only when error is nil.
//   - error: Engine call failure (network, unknown run). Wrapped.
//
// # Examples
//
//	out, err := p.Execute(ctx, "thread_abc", "Tell me about yourself")
//	if err == nil && out.Kind == runs.Completed {
//	    fmt.Println(out.Text)
//	}
func (p *Protocol) Execute(ctx context.Context, conversationID, prompt string) (Outcome, error) {
	var (
		run    llm.RunHandle
		status llm.RunStatus
		out    Outcome
		err    error
	)

	for st := stateSubmitted; st != stateDone; {
		switch st {
		case stateSubmitted:
			run, status, err = p.submit(ctx, conversationID, prompt)
			if err != nil {
				return p.abort(ctx, out, err)
			}
			st = statePolling

		case statePolling:
			if !status.State.Pending() {
				out, err = p.resolve(ctx, run, status, out.Attempts)
				if err != nil {
					return p.abort(ctx, out, err)
				}
				st = stateDone
				continue
			}
			if out.Attempts >= p.config.MaxAttempts {
				slog.Warn("Run did not finish within the polling budget",
					"conversation_id", conversationID,
					"run_id", run.RunID,
					"attempts", out.Attempts,
					"last_status", status.Raw)
				out.Kind = TimedOut
				st = stateDone
				continue
			}
			if err := p.clock.Sleep(ctx, p.config.PollInterval); err != nil {
				out.Kind = Cancelled
				return out, nil
			}
			out.Attempts++
			status, err = p.engine.GetRunStatus(ctx, run)
			if err != nil {
				return p.abort(ctx, out, fmt.Errorf("failed to get run status: %w", err))
			}
		}
	}
	return out, nil
}

// submit appends the prompt, starts the run and takes the first status.
func (p *Protocol) submit(ctx context.Context, conversationID, prompt string) (llm.RunHandle, llm.RunStatus, error) {
	if err := p.engine.AppendTurn(ctx, conversationID, datatypes.RoleUser, prompt); err != nil {
		return llm.RunHandle{}, llm.RunStatus{}, fmt.Errorf("failed to append turn: %w", err)
	}
	run, err := p.engine.StartRun(ctx, conversationID)
	if err != nil {
		return llm.RunHandle{}, llm.RunStatus{}, fmt.Errorf("failed to start run: %w", err)
	}
	status, err := p.engine.GetRunStatus(ctx, run)
	if err != nil {
		return run, llm.RunStatus{}, fmt.Errorf("failed to get run status: %w", err)
	}
	return run, status, nil
}

// resolve classifies a terminal engine status.
func (p *Protocol) resolve(ctx context.Context, run llm.RunHandle, status llm.RunStatus, attempts int) (Outcome, error) {
	out := Outcome{Attempts: attempts}

	switch status.State {
	case llm.RunStateCompleted:
		turns, err := p.engine.ListTurns(ctx, run.ConversationID)
		if err != nil {
			return out, fmt.Errorf("failed to list turns: %w", err)
		}
		text, ok := latestAssistantText(turns)
		if !ok {
			out.Kind = Failed
			out.Reason = ReasonNoUsableResponse
			return out, nil
		}
		out.Kind = Completed
		out.Text = text
		return out, nil

	case llm.RunStateFailed:
		slog.Error("Run failed on the engine",
			"conversation_id", run.ConversationID,
			"run_id", run.RunID,
			"detail", status.Detail)
		out.Kind = Failed
		out.Reason = ReasonAssistantFailed
		return out, nil

	default:
		slog.Info("Run ended without completing",
			"conversation_id", run.ConversationID,
			"run_id", run.RunID,
			"status", status.Raw)
		out.Kind = Cancelled
		return out, nil
	}
}

// abort turns an engine error into the call's result. Errors caused by ctx
// cancellation become a Cancelled outcome.
func (p *Protocol) abort(ctx context.Context, out Outcome, err error) (Outcome, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		out.Kind = Cancelled
		return out, nil
	}
	return out, err
}

// latestAssistantText finds the newest assistant turn and strips its
// annotation spans. A missing turn, a missing text payload or text that is
// empty after stripping is not usable.
func latestAssistantText(turns []llm.EngineTurn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role != datatypes.RoleAssistant {
			continue
		}
		if t.Text == nil {
			return "", false
		}
		text := StripAnnotations(t.Text.Value, t.Text.Annotations)
		return text, strings.TrimSpace(text) != ""
	}
	return "", false
}

// StripAnnotations removes each annotation span from text by exact substring
// match. Each span removes its first remaining occurrence; empty spans are
// skipped.
func StripAnnotations(text string, annotations []string) string {
	for _, a := range annotations {
		if a == "" {
			continue
		}
		text = strings.Replace(text, a, "", 1)
	}
	return text
}
