// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the gin HTTP and WebSocket handlers of the
// portfolio chat service.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/services"
)

var handlerTracer = otel.Tracer("aleutian.orchestrator.handlers")

// Error bodies returned before a message reaches the router.
const (
	ErrMessageRequired    = "Message is required"
	ErrNotConfigured      = "Assistant not configured"
	ErrInvalidRequestBody = "invalid request body"
)

// MessageRouter is the slice of services.MessageRouter the handlers use.
type MessageRouter interface {
	RouteMessage(ctx context.Context, message, clientHandle string, msgCtx *datatypes.Context) services.Result
	ConversationHistory(id string, n int) (string, int, bool)
}

var _ MessageRouter = (*services.MessageRouter)(nil)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// validationMessage turns a ChatbotRequest validation error into the error
// body sent to the client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalidRequestBody
	}
	for _, fe := range verrs {
		if fe.StructField() == "Message" && (fe.Tag() == "required" || fe.Tag() == "notblank") {
			return ErrMessageRequired
		}
	}
	fe := verrs[0]
	return "invalid " + fe.Field() + ": failed " + fe.Tag()
}

// toResponse maps a router result onto the wire type.
func toResponse(res services.Result) datatypes.ChatbotResponse {
	if res.Success {
		return datatypes.ChatbotResponse{Response: res.Response, ThreadID: res.ConversationID}
	}
	return datatypes.ChatbotResponse{ThreadID: res.ConversationID, Error: res.Error}
}
