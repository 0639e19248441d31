// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the chatbot HTTP API on gin.
//
// Every handler except suggestions and health runs behind
// middleware.Auth and reads the conversation owner from the request's
// AuthInfo. Generation problems never produce an error status; they
// arrive as a degraded answer with 200.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/conversation"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/middleware"
	"github.com/homescan/guidebot/services/chatbot/orchestrator"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ChatService is the chat pipeline as the handlers see it.
// *orchestrator.Orchestrator implements it.
type ChatService interface {
	Send(ctx context.Context, owner, text, topic string) (orchestrator.Reply, error)
	Stream(ctx context.Context, owner, text, topic string, emit orchestrator.StreamFunc) (orchestrator.Reply, error)
	History(ctx context.Context, owner string) ([]datatypes.Turn, error)
	Clear(ctx context.Context, owner string) error
	SuggestedPrompts(topic string) []knowledge.Suggestion
}

var _ ChatService = (*orchestrator.Orchestrator)(nil)

// =============================================================================
// Struct Definition
// =============================================================================

// ChatHandler serves the conversation endpoints.
//
// # Thread Safety
//
// Safe for concurrent use. The handler holds no per-request state.
type ChatHandler struct {
	svc       ChatService
	audit     extensions.AuditLogger
	heartbeat time.Duration
}

// Option configures a ChatHandler.
type Option func(*ChatHandler)

// WithHeartbeat sets the SSE keepalive interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(h *ChatHandler) {
		h.heartbeat = d
	}
}

// NewChatHandler creates a ChatHandler. A nil audit logger discards
// events.
func NewChatHandler(svc ChatService, audit extensions.AuditLogger, opts ...Option) *ChatHandler {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	h := &ChatHandler{svc: svc, audit: audit, heartbeat: DefaultHeartbeatInterval}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// Handlers
// =============================================================================

// HandleSend answers one message.
//
// # Description
//
// POST /api/chatbot/messages with {text, topic?}. Responds with the bot
// turn as {id, type: "bot", text, timestamp}.
//
// # Outputs
//
//   - 200: TurnResponse, including degraded answers.
//   - 400: Missing, oversized or blank text.
//   - 401: No owner on the request.
//   - 500: The turn store failed.
func (h *ChatHandler) HandleSend(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}
	owner := middleware.Owner(c)

	reply, err := h.svc.Send(c.Request.Context(), owner, req.Text, req.Topic)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.logAnswered(c.Request.Context(), owner, "send", reply)
	c.JSON(http.StatusOK, reply.Turn.Response())
}

// HandleHistory returns the caller's turns, newest first.
func (h *ChatHandler) HandleHistory(c *gin.Context) {
	turns, err := h.svc.History(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	out := make([]datatypes.TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Response())
	}
	c.JSON(http.StatusOK, out)
}

// HandleClear deletes the caller's turns and responds 204.
func (h *ChatHandler) HandleClear(c *gin.Context) {
	owner := middleware.Owner(c)
	if err := h.svc.Clear(c.Request.Context(), owner); err != nil {
		writeServiceError(c, err)
		return
	}

	_ = h.audit.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    extensions.EventHistoryCleared,
		UserID:       owner,
		Action:       "clear",
		ResourceType: "conversation",
		ResourceID:   owner,
		Outcome:      "success",
	})
	c.Status(http.StatusNoContent)
}

// HandleSuggestions returns the suggested questions for ?topic=, or for
// every topic without it. Needs no authentication.
func (h *ChatHandler) HandleSuggestions(c *gin.Context) {
	suggestions := h.svc.SuggestedPrompts(strings.TrimSpace(c.Query("topic")))

	out := make([]datatypes.SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, datatypes.SuggestionResponse{Label: s.Label, Section: s.Section})
	}
	c.JSON(http.StatusOK, out)
}

// =============================================================================
// Helper Functions
// =============================================================================

// bindChatRequest decodes and validates the body. On failure it writes a
// 400 and returns false.
func bindChatRequest(c *gin.Context) (datatypes.ChatRequest, bool) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:   "invalid request body",
			Details: err.Error(),
		})
		return req, false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:   "invalid request",
			Details: err.Error(),
		})
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "message text is empty"})
		return req, false
	}
	return req, true
}

// statusFor maps a service error to an HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest, "message text is empty"
	case errors.Is(err, conversation.ErrInvalidOwner):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	default:
		return http.StatusInternalServerError, "an error occurred while processing your request"
	}
}

func writeServiceError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Chat request failed", "route", c.FullPath(), "error", err)
	}
	c.JSON(status, datatypes.ErrorResponse{Error: msg})
}

func (h *ChatHandler) logAnswered(ctx context.Context, owner, action string, reply orchestrator.Reply) {
	_ = h.audit.Log(ctx, extensions.AuditEvent{
		EventType:    extensions.EventMessageAnswered,
		UserID:       owner,
		Action:       action,
		ResourceType: "turn",
		ResourceID:   reply.Turn.ID,
		Outcome:      "success",
		Metadata:     map[string]any{"path": string(reply.Path)},
	})
}
