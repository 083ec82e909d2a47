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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// maxHistoryLimit caps the limit query parameter.
const maxHistoryLimit = 100

// HandleConversationHistory serves GET /api/conversations/:id/history.
//
// The optional limit query parameter selects the number of trailing turns
// (default: the router's history window). Unknown ids return 404.
func HandleConversationHistory(router MessageRouter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
				return
			}
			limit = n
		}

		history, count, ok := router.ConversationHistory(id, limit)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			ThreadID:     id,
			History:      history,
			MessageCount: count,
		})
	}
}
