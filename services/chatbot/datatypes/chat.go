// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the request, response and stream types of the
// guide chatbot, plus its fixed user-facing messages.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageBytes bounds a single chat message.
	MaxMessageBytes = 4 * 1024

	// MaxTopicLength bounds the topic hint.
	MaxTopicLength = 64
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length, not rune count. Hangul is three
// bytes per syllable in UTF-8.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// =============================================================================
// Turn Roles
// =============================================================================

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayType maps a role to the wire "type" field used by the chat UI.
func (r Role) DisplayType() string {
	if r == RoleAssistant {
		return "bot"
	}
	return "user"
}

// =============================================================================
// Requests and Responses
// =============================================================================

// ChatRequest is the body of POST /api/chatbot/messages and its streaming
// and WebSocket variants.
//
// # Validation
//
//   - Text: required, at most MaxMessageBytes bytes. Whitespace-only text
//     passes validation and is rejected by the orchestrator.
//   - Topic: optional hint such as "moveout".
type ChatRequest struct {
	Text  string `json:"text" validate:"required,maxbytes"`
	Topic string `json:"topic,omitempty" validate:"max=64"`
}

// Validate runs the struct validation tags.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// TurnResponse is one persisted conversation turn as shown to the UI.
type TurnResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SuggestionResponse is one suggested question.
type SuggestionResponse struct {
	Label   string `json:"label"`
	Section string `json:"section,omitempty"`
}

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// Stream Events
// =============================================================================

// StreamEventType names a stream event.
type StreamEventType string

const (
	// StreamEventDelta carries one incremental text chunk.
	StreamEventDelta StreamEventType = "delta"

	// StreamEventFinal carries the normalized, persisted turn. It is
	// always the last event of a successful stream.
	StreamEventFinal StreamEventType = "final"

	// StreamEventError reports a failure outside generation, such as a
	// persistence error. Generation problems arrive as text.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is pushed to streaming clients over SSE or WebSocket.
type StreamEvent struct {
	ID        string          `json:"id,omitempty"`
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content,omitempty"`
	Turn      *TurnResponse   `json:"turn,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
}
