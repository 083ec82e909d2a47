// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

// HandleChatbot serves POST /api/chatbot.
//
// # Description
//
// Validates the body, routes the message and writes exactly one NDJSON line:
// {"response","threadId"} on success or {"error","threadId"} on failure.
// Router failures are reported in the body with status 200 so streaming
// clients read them the same way as replies.
//
// # Inputs
//
//   - router: Message router.
//   - configured: False when no reasoning engine is configured; every
//     request then fails with 500 "Assistant not configured".
//   - metrics: Optional. May be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: The handler.
func HandleChatbot(router MessageRouter, configured bool, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatbot")
		defer span.End()

		requestID := uuid.NewString()
		span.SetAttributes(attribute.String("request.id", requestID))

		var req datatypes.ChatbotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad body")
			slog.Warn("Failed to parse chatbot request", "request_id", requestID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRequestBody})
			return
		}
		if err := req.Validate(); err != nil {
			span.SetStatus(codes.Error, "validation")
			c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
			return
		}
		if !configured {
			slog.Error("Chatbot request received but no reasoning engine is configured", "request_id", requestID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrNotConfigured})
			return
		}

		slog.Debug("Processing chatbot message",
			"request_id", requestID,
			"message_length", len(req.Message),
			"has_thread", req.ThreadID != "")

		res := router.RouteMessage(ctx, req.Message, req.ThreadID, req.Context)
		metrics.RecordMessage(observability.EndpointChatbot, res.Success)
		if !res.Success {
			span.SetStatus(codes.Error, res.Error)
		}

		line, err := json.Marshal(toResponse(res))
		if err != nil {
			slog.Error("Failed to encode chatbot response", "request_id", requestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.Header("X-Request-ID", requestID)
		c.Data(http.StatusOK, "application/json", append(line, '\n'))
	}
}
