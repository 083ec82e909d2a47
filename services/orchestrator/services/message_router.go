// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// MessageRouter is the façade the HTTP and WebSocket handlers call. It owns
// no state of its own beyond per-conversation locks; conversation state,
// handle bookkeeping and engine runs are injected collaborators.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianPortfolio/pkg/extensions"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/runs"
)

var routerTracer = otel.Tracer("aleutian.orchestrator.services.message_router")

// Caller-facing error messages.
const (
	ErrMsgTimeout   = "request timeout - please try again"
	ErrMsgCancelled = "request was cancelled"
	ErrMsgInternal  = "internal error"
)

// DefaultLookupTimeout bounds one advisory knowledge lookup.
const DefaultLookupTimeout = 3 * time.Second

// Result is the normalized outcome of RouteMessage.
//
// # Fields
//
//   - Response: Assistant text. Empty unless Success.
//   - ConversationID: Conversation the message was routed to. Clients send
//     it back to continue the conversation.
//   - Success: Whether an assistant response was produced.
//   - Error: User-safe error message. Empty when Success.
type Result struct {
	Response       string
	ConversationID string
	Success        bool
	Error          string
}

// RouterDeps are the collaborators of a MessageRouter.
//
// Registry, Store, Protocol and Clock are required. The rest default to
// no-ops.
type RouterDeps struct {
	Registry *conversation.ThreadRegistry
	Store    *conversation.StateStore
	Protocol *runs.Protocol
	Clock    clock.Clock
	Options  extensions.ServiceOptions
	Metrics  *observability.ChatMetrics

	// HistoryWindow is the default turn count for ConversationHistory.
	HistoryWindow int
	// LookupTimeout bounds each knowledge lookup.
	LookupTimeout time.Duration
}

// MessageRouter routes one visitor message through the conversation
// pipeline.
//
// # Description
//
// The pipeline is: resolve the conversation handle, get or create its
// state and merge the supplied context, record the user turn, fire an
// advisory knowledge lookup, compose the prompt, execute the engine run,
// and on success record the assistant turn.
//
// Messages for the same conversation are processed one at a time in arrival
// order. Different conversations never wait for each other.
//
// # Thread Safety
//
// Safe for concurrent use. Close waits for background lookups.
type MessageRouter struct {
	registry *conversation.ThreadRegistry
	store    *conversation.StateStore
	protocol *runs.Protocol
	clock    clock.Clock
	lookup   extensions.KnowledgeLookup
	audit    extensions.AuditLogger
	metrics  *observability.ChatMetrics

	historyWindow int
	lookupTimeout time.Duration

	locks   *conversationLocks
	lookups sync.WaitGroup
}

// NewMessageRouter creates a router.
//
// # Outputs
//
//   - *MessageRouter: Ready router.
//   - error: Non-nil if a required dependency is missing.
func NewMessageRouter(deps RouterDeps) (*MessageRouter, error) {
	if deps.Registry == nil || deps.Store == nil || deps.Protocol == nil || deps.Clock == nil {
		return nil, fmt.Errorf("message router: registry, store, protocol and clock are required")
	}
	opts := deps.Options.WithDefaults()
	if deps.HistoryWindow <= 0 {
		deps.HistoryWindow = conversation.DefaultHistoryWindow
	}
	if deps.LookupTimeout <= 0 {
		deps.LookupTimeout = DefaultLookupTimeout
	}
	return &MessageRouter{
		registry:      deps.Registry,
		store:         deps.Store,
		protocol:      deps.Protocol,
		clock:         deps.Clock,
		lookup:        opts.KnowledgeLookup,
		audit:         opts.AuditLogger,
		metrics:       deps.Metrics,
		historyWindow: deps.HistoryWindow,
		lookupTimeout: deps.LookupTimeout,
		locks:         newConversationLocks(),
	}, nil
}

// RouteMessage runs the pipeline for one message.
//
// # Description
//
// Never panics and never returns a raw internal error: every failure is
// folded into Result. The user turn recorded before the engine run is kept
// even when the run fails.
//
// # Inputs
//
//   - ctx: Request context. Cancellation while waiting on the engine yields
//     a "request was cancelled" result.
//   - message: Non-empty visitor message. Validated by the caller.
//   - clientHandle: Conversation handle from the client. May be empty.
//   - msgCtx: Optional structured context. May be nil.
//
// # Outputs
//
//   - Result: Normalized result.
//
// # Examples
//
//	res := router.RouteMessage(ctx, "Tell me about yourself", "", nil)
//	if res.Success {
//	    fmt.Println(res.Response, res.ConversationID)
//	}
func (r *MessageRouter) RouteMessage(ctx context.Context, message, clientHandle string, msgCtx *datatypes.Context) (result Result) {
	ctx, span := routerTracer.Start(ctx, "MessageRouter.RouteMessage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("message.length", len(message)),
		attribute.Bool("client_handle.present", clientHandle != ""),
		attribute.Bool("context.present", !msgCtx.IsEmpty()),
	)

	conversationID := clientHandle
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Panic while routing message",
				"conversation_id", conversationID,
				"panic", rec,
				"stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			r.metrics.RecordRun("panic", 0, 0)
			result = Result{ConversationID: conversationID, Error: ErrMsgInternal}
		}
	}()

	// 1. Resolve
	id, created, err := r.registry.Resolve(ctx, clientHandle)
	if err != nil {
		slog.Error("Failed to resolve conversation", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		r.metrics.RecordRun("error", 0, 0)
		return Result{ConversationID: clientHandle, Error: ErrMsgInternal}
	}
	conversationID = id
	span.SetAttributes(attribute.String("conversation.id", id), attribute.Bool("conversation.created", created))
	if created {
		r.auditLog(ctx, extensions.AuditEvent{
			EventType:      extensions.EventConversationCreated,
			ConversationID: id,
			Outcome:        "success",
		})
	}

	release, err := r.locks.acquire(ctx, id)
	if err != nil {
		slog.Info("Request cancelled while waiting for conversation", "conversation_id", id)
		r.metrics.RecordRun(runs.Cancelled.String(), 0, 0)
		return Result{ConversationID: id, Error: ErrMsgCancelled}
	}
	defer release()

	// 2. State and context
	r.store.GetOrCreate(id, msgCtx)
	if !msgCtx.IsEmpty() {
		r.store.MergeContext(id, *msgCtx)
	}
	r.metrics.SetActiveConversations(r.store.Len())

	// 3. User turn
	r.store.AppendMessage(id, datatypes.RoleUser, message)

	// 4. Advisory lookup
	r.startLookup(ctx, message, id)

	// 5. Prompt
	prompt := conversation.Compose(message, msgCtx)

	// 6. Engine run
	started := r.clock.Now()
	outcome, err := r.protocol.Execute(ctx, id, prompt)
	elapsed := r.clock.Now().Sub(started)
	if err != nil {
		slog.Error("Engine run failed", "conversation_id", id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine error")
		r.metrics.RecordRun("error", outcome.Attempts, elapsed)
		r.auditRouted(ctx, id, "error", len(message), outcome.Attempts)
		return Result{ConversationID: id, Error: ErrMsgInternal}
	}
	r.metrics.RecordRun(outcome.Kind.String(), outcome.Attempts, elapsed)
	r.auditRouted(ctx, id, outcome.Kind.String(), len(message), outcome.Attempts)
	span.SetAttributes(
		attribute.String("run.outcome", outcome.Kind.String()),
		attribute.Int("run.attempts", outcome.Attempts),
	)

	// 7/8. Result
	if outcome.Kind == runs.Completed {
		r.store.AppendMessage(id, datatypes.RoleAssistant, outcome.Text)
		return Result{Response: outcome.Text, ConversationID: id, Success: true}
	}
	span.SetStatus(codes.Error, outcome.Kind.String())
	return Result{ConversationID: id, Error: errorMessage(outcome)}
}

// errorMessage maps a non-completed outcome to its caller-facing message.
func errorMessage(outcome runs.Outcome) string {
	switch outcome.Kind {
	case runs.TimedOut:
		return ErrMsgTimeout
	case runs.Failed:
		if outcome.Reason != "" {
			return outcome.Reason
		}
		return runs.ReasonAssistantFailed
	case runs.Cancelled:
		return ErrMsgCancelled
	default:
		return ErrMsgInternal
	}
}

// ConversationHistory returns the recent history of a conversation.
//
// # Inputs
//
//   - id: Conversation id.
//   - n: Turn count. Values <= 0 use the configured window.
//
// # Outputs
//
//   - string: "role: content" lines, oldest first.
//   - int: Total turns recorded for the conversation.
//   - bool: False when the conversation is unknown.
func (r *MessageRouter) ConversationHistory(id string, n int) (string, int, bool) {
	state, ok := r.store.Get(id)
	if !ok {
		return "", 0, false
	}
	if n <= 0 {
		n = r.historyWindow
	}
	return r.store.RecentHistory(id, n), state.Metadata.MessageCount, true
}

// Close waits for in-flight knowledge lookups.
func (r *MessageRouter) Close() {
	r.lookups.Wait()
}

// startLookup runs the knowledge lookup in the background. Its result is
// only logged.
func (r *MessageRouter) startLookup(ctx context.Context, message, id string) {
	if _, nop := r.lookup.(*extensions.NopKnowledgeLookup); nop {
		return
	}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
	r.lookups.Add(1)
	go func() {
		defer r.lookups.Done()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic in knowledge lookup", "conversation_id", id, "panic", rec)
			}
		}()

		text, found, err := r.lookup.Search(lookupCtx, message, id)
		switch {
		case err != nil:
			slog.Warn("Knowledge lookup failed", "conversation_id", id, "error", err)
		case found:
			slog.Info("Knowledge lookup found material", "conversation_id", id, "length", len(text))
		default:
			slog.Debug("Knowledge lookup found nothing", "conversation_id", id)
		}
	}()
}

func (r *MessageRouter) auditRouted(ctx context.Context, id, outcome string, messageLen, attempts int) {
	r.auditLog(ctx, extensions.AuditEvent{
		EventType:      extensions.EventMessageRouted,
		ConversationID: id,
		Outcome:        outcome,
		Metadata: map[string]any{
			"message_length": messageLen,
			"poll_attempts":  attempts,
		},
	})
}

func (r *MessageRouter) auditLog(ctx context.Context, event extensions.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock.Now()
	}
	if err := r.audit.Log(ctx, event); err != nil {
		slog.Warn("Audit log failed", "event_type", event.EventType, "error", err)
	}
}
