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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/handlers"
	"github.com/homescan/guidebot/services/chatbot/middleware"
)

// Config carries everything SetupRoutes mounts.
type Config struct {
	Handler *handlers.ChatHandler

	// Health serves GET /health. Nil registers a plain "ok" check.
	Health gin.HandlerFunc

	// Metrics serves GET /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Limiter throttles the message routes per owner. Nil disables it.
	Limiter *middleware.OwnerLimiter

	Options extensions.ServiceOptions
}

// SetupRoutes registers the chatbot API on router.
//
// # Description
//
// Everything under /api/chatbot except the suggested questions requires
// authentication. Sending and streaming are rate limited per owner.
//
//	GET    /health
//	GET    /metrics
//	GET    /api/chatbot/suggested-questions
//	POST   /api/chatbot/messages
//	POST   /api/chatbot/messages/stream
//	GET    /api/chatbot/messages
//	DELETE /api/chatbot/messages
//	GET    /api/chatbot/ws
func SetupRoutes(router *gin.Engine, cfg Config) {
	opts := cfg.Options.Normalize()

	health := cfg.Health
	if health == nil {
		health = handlers.HealthCheck("", false)
	}
	router.GET("/health", health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api/chatbot")
	api.GET("/suggested-questions", cfg.Handler.HandleSuggestions)

	authed := api.Group("", middleware.Auth(opts.AuthProvider, opts.AuditLogger))
	{
		authed.GET("/messages", cfg.Handler.HandleHistory)
		authed.DELETE("/messages", cfg.Handler.HandleClear)

		limited := authed.Group("")
		if cfg.Limiter != nil {
			limited.Use(middleware.RateLimit(cfg.Limiter))
		}
		limited.POST("/messages", cfg.Handler.HandleSend)
		limited.POST("/messages/stream", cfg.Handler.HandleStream)
		limited.GET("/ws", cfg.Handler.HandleWebSocket)
	}
}
