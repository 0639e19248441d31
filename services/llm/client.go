// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the completion API transport: a blocking chat call, a raw
// event-stream call, and the retry policy shared by both.
package llm

import (
	"context"
	"errors"
	"io"
)

// ErrNotConfigured is returned when a client is built without an API key.
var ErrNotConfigured = errors.New("completion API key is not configured")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are optional sampling settings. Nil means the API
// default.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// TokenUsage reports token counts of a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a blocking chat call.
type Completion struct {
	Content      string
	FinishReason string
	Model        string
	Usage        TokenUsage
}

// ChatClient is a completion API backend.
//
// Chat blocks until the full completion is available. ChatStream returns
// the raw server-sent-events body once the upstream accepted the request;
// the caller parses it and must close it. Both honour ctx cancellation.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error)
	ChatStream(ctx context.Context, messages []Message, params GenerationParams) (io.ReadCloser, error)
}
