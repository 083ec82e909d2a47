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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

// wsReadLimit bounds one inbound frame: a full message plus every context
// field at its limit.
const wsReadLimit = datatypes.MaxMessageContentBytes + 7*datatypes.MaxContextFieldBytes + 4096

// wsIdleTimeout closes connections that send nothing for this long.
const wsIdleTimeout = 10 * time.Minute

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleChatWebSocket serves GET /api/chatbot/ws.
//
// # Description
//
// Each inbound frame is a ChatbotRequest and gets exactly one
// ChatbotResponse frame back. The connection remembers the last
// conversation id it was given, so frames may omit threadId after the
// first reply. Frames are handled in order.
func HandleChatWebSocket(router MessageRouter, configured bool, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		connID := uuid.NewString()
		ws.SetReadLimit(wsReadLimit)
		slog.Info("Websocket client connected", "connection_id", connID)

		threadID := ""
		ctx := c.Request.Context()
		for {
			_ = ws.SetReadDeadline(time.Now().Add(wsIdleTimeout))
			var req datatypes.ChatbotRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "connection_id", connID, "error", err.Error())
				return
			}

			if err := req.Validate(); err != nil {
				if sendJSON(ws, datatypes.ChatbotResponse{ThreadID: threadID, Error: validationMessage(err)}) != nil {
					return
				}
				continue
			}
			if !configured {
				_ = sendJSON(ws, datatypes.ChatbotResponse{Error: ErrNotConfigured})
				return
			}

			handle := req.ThreadID
			if handle == "" {
				handle = threadID
			}
			res := router.RouteMessage(ctx, req.Message, handle, req.Context)
			metrics.RecordMessage(observability.EndpointWebSocket, res.Success)
			if res.ConversationID != "" {
				threadID = res.ConversationID
			}
			if sendJSON(ws, toResponse(res)) != nil {
				return
			}
		}
	}
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}
