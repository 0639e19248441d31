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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/middleware"
)

// wsReadLimit bounds one client frame: a maximal message plus JSON
// framing.
const wsReadLimit = 2 * datatypes.MaxMessageBytes

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
		return fmt.Errorf("%w: %v", errClientGone, err)
	}
	return nil
}

func (c *wsConn) sendError(msg string) error {
	return c.send(datatypes.StreamEvent{
		Type:      datatypes.StreamEventError,
		Error:     msg,
		CreatedAt: time.Now().UnixMilli(),
	})
}

// HandleWebSocket streams answers over a WebSocket.
//
// # Description
//
// GET /api/chatbot/ws upgrades the connection. Each client frame
// {text, topic?} is answered with delta frames and one final frame, all
// StreamEvent JSON. Invalid frames get an error frame and the connection
// stays open. Messages on one connection are answered in order.
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	owner := middleware.Owner(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(wsReadLimit)

	conn := &wsConn{ws: ws}
	ctx := c.Request.Context()
	slog.Info("Websocket client connected", "owner", owner)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Websocket closed unexpectedly", "owner", owner, "error", err)
			} else {
				slog.Info("Websocket client disconnected", "owner", owner)
			}
			return
		}

		var req datatypes.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if conn.sendError("invalid request body") != nil {
				return
			}
			continue
		}
		if err := req.Validate(); err != nil || strings.TrimSpace(req.Text) == "" {
			if conn.sendError("invalid request") != nil {
				return
			}
			continue
		}

		reply, err := h.svc.Stream(ctx, owner, req.Text, req.Topic, func(ev datatypes.StreamEvent) error {
			return conn.send(ev)
		})
		if err != nil {
			if errors.Is(err, errClientGone) {
				h.handleStreamError(ctx, owner, err, nil)
				return
			}
			_, msg := statusFor(err)
			slog.Error("Websocket chat failed", "owner", owner, "error", err)
			if conn.sendError(msg) != nil {
				return
			}
			continue
		}
		h.logAnswered(ctx, owner, "websocket", reply)
	}
}
