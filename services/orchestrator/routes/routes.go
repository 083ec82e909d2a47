// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
)

// Deps carries everything the routes need.
//
//   - Router: Required.
//   - Configured: False when no reasoning engine could be built.
//   - Metrics: Optional. Shared by handlers and the rate limiter.
//   - Gatherer: Source for GET /metrics. Nil uses the default registry.
//   - Limiter: Optional. Applied to the chat endpoints only.
type Deps struct {
	Router     handlers.MessageRouter
	Configured bool
	Metrics    *observability.ChatMetrics
	Gatherer   prometheus.Gatherer
	Limiter    *middleware.RateLimiter
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)

	metricsHandler := promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	api := router.Group("/api")
	{
		chat := api.Group("/chatbot")
		if deps.Limiter.Enabled() {
			chat.Use(deps.Limiter.Middleware())
		}
		{
			chat.POST("", handlers.HandleChatbot(deps.Router, deps.Configured, deps.Metrics))
			chat.GET("/ws", handlers.HandleChatWebSocket(deps.Router, deps.Configured, deps.Metrics))
		}

		api.GET("/conversations/:id/history", handlers.HandleConversationHistory(deps.Router))
	}
}
