// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model or fine-tuned model is configured.
const DefaultModel = "gpt-4o-mini"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 * 1024

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API root, e.g. "http://localhost:8080/v1".
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// HTTPClient defaults to http.DefaultClient. Its Timeout should be
	// zero; deadlines come from the request context.
	HTTPClient *http.Client
}

// OpenAIClient talks to the OpenAI chat completions API.
//
// # Description
//
// Chat uses go-openai's CreateChatCompletion. ChatStream posts the same
// request with stream=true and hands back the raw event-stream body so
// the caller controls line buffering and early close.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIClient struct {
	client  *openai.Client
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAIClient creates a client. It returns ErrNotConfigured when the
// API key is empty.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpClient

	slog.Info("Initializing OpenAI client", "model", model, "base_url", oc.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		http:    httpClient,
		baseURL: oc.BaseURL,
		apiKey:  cfg.APIKey,
		model:   model,
	}, nil
}

// Model returns the model name sent with every request.
func (o *OpenAIClient) Model() string {
	return o.model
}

func (o *OpenAIClient) buildRequest(messages []Message, params GenerationParams, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stream:   stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Chat sends a blocking chat completion request.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model, "messages", len(messages))

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(messages, params, false))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: no choices returned")
	}

	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ChatStream sends a streaming chat completion request and returns the
// event-stream body. A non-200 status is returned as *StatusError.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams) (io.ReadCloser, error) {
	body, err := json.Marshal(o.buildRequest(messages, params, true))
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("OpenAI stream returned an error", "status_code", resp.StatusCode, "response", string(msg))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	return resp.Body, nil
}

var _ ChatClient = (*OpenAIClient)(nil)
