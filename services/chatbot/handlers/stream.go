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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/middleware"
	"github.com/homescan/guidebot/services/chatbot/orchestrator"
)

// DefaultHeartbeatInterval keeps idle streams under common 60s proxy
// timeouts.
const DefaultHeartbeatInterval = 15 * time.Second

// errClientGone marks a failed write to the streaming client.
var errClientGone = errors.New("client went away")

// HandleStream answers one message as Server-Sent Events.
//
// # Description
//
// POST /api/chatbot/messages/stream with {text, topic?}. Streams delta
// events, then one final event carrying the persisted turn. A failure
// after the stream started is reported as an error event. Request
// validation failures are answered with a plain 400 before streaming
// starts.
//
// If the client disconnects, the upstream model call is abandoned and no
// bot turn is persisted.
func (h *ChatHandler) HandleStream(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}
	owner := middleware.Owner(c)

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Streaming not supported", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "streaming not supported"})
		return
	}
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	done := make(chan struct{})
	go runHeartbeat(ctx, writer, h.heartbeat, done)

	reply, err := h.svc.Stream(ctx, owner, req.Text, req.Topic, func(ev datatypes.StreamEvent) error {
		if err := writer.WriteEvent(ev); err != nil {
			return fmt.Errorf("%w: %v", errClientGone, err)
		}
		return nil
	})
	close(done)

	if err != nil {
		h.handleStreamError(ctx, owner, err, writer.WriteEvent)
		return
	}
	h.logAnswered(ctx, owner, "stream", reply)
}

// handleStreamError reports err to the client when it is still there.
func (h *ChatHandler) handleStreamError(ctx context.Context, owner string, err error, emit orchestrator.StreamFunc) {
	if errors.Is(err, errClientGone) || ctx.Err() != nil {
		slog.Info("Stream client disconnected", "owner", owner, "error", err)
		_ = h.audit.Log(ctx, extensions.AuditEvent{
			EventType: extensions.EventStreamInterrupted,
			UserID:    owner,
			Action:    "stream",
			Outcome:   "interrupted",
		})
		return
	}

	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Streaming chat failed", "owner", owner, "error", err)
	}
	_ = emit(datatypes.StreamEvent{
		Type:      datatypes.StreamEventError,
		Error:     msg,
		CreatedAt: time.Now().UnixMilli(),
	})
}

// runHeartbeat writes keepalives until done closes or ctx ends.
func runHeartbeat(ctx context.Context, writer SSEWriter, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
		}
	}
}
