// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/llm"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errEmptyCompletion = errors.New("completion contained no text")

// EmitFunc receives one text chunk. Returning an error stops the stream
// and closes the upstream connection.
type EmitFunc func(chunk string) error

// consumerError marks a failure of the EmitFunc, as opposed to the
// upstream transport.
type consumerError struct {
	err error
}

func (e *consumerError) Error() string { return e.err.Error() }
func (e *consumerError) Unwrap() error { return e.err }

// Stream produces an answer incrementally.
//
// # Description
//
// Opening the stream goes through the retry policy. Once open, each
// content delta is passed to emit as it arrives. A transport failure
// mid-stream emits datatypes.StreamErrorMessage once and ends the stream
// cleanly. No self-correction is performed; callers run Correct on the
// completed text.
//
// The whole stream, open and read, is bounded by the policy's
// AttemptTimeout.
//
// # Inputs
//
//   - ctx: Cancelling it aborts the stream.
//   - req: The prompt inputs.
//   - emit: Receives chunks in order.
//
// # Outputs
//
//   - Result: Accumulated raw text and outcome. Emitted error chunks are
//     not part of Text.
//   - error: Only emit's own error, meaning the consumer went away.
func (g *Generator) Stream(ctx context.Context, req Request, emit EmitFunc) (Result, error) {
	ctx, span := tracer.Start(ctx, "generator.Stream",
		trace.WithAttributes(attribute.Bool("in_scope", req.InScope)))
	defer span.End()

	if !g.Configured() {
		g.metrics.RecordModelCall(observability.ModeStreaming, observability.OutcomeNotConfigured, 0)
		span.SetAttributes(attribute.String("outcome", string(OutcomeNotConfigured)))
		return Result{Text: datatypes.NotConfiguredMessage, Outcome: OutcomeNotConfigured}, nil
	}

	start := time.Now()
	res, err := g.stream(ctx, req, emit)
	g.metrics.RecordModelCall(observability.ModeStreaming, string(res.Outcome), time.Since(start))

	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Bool("interrupted", res.Interrupted),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "stream failed")
	}
	return res, err
}

func (g *Generator) stream(ctx context.Context, req Request, emit EmitFunc) (Result, error) {
	if g.retry.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.retry.AttemptTimeout)
		defer cancel()
	}

	// the body outlives the open call, so attempts share ctx
	openPolicy := g.retry
	openPolicy.AttemptTimeout = 0

	msgs := Messages(req, false)
	body, err := llm.Do(ctx, openPolicy, func(ctx context.Context) (io.ReadCloser, error) {
		return g.client.ChatStream(ctx, msgs, g.params())
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}, nil
	}
	defer body.Close()

	text, err := ReadStream(body, emit)
	var ce *consumerError
	switch {
	case errors.As(err, &ce):
		return Result{Text: text, Outcome: OutcomeOK, Interrupted: true}, ce.err
	case err != nil:
		slog.Warn("Completion stream broke", "error", err, "received_chars", len(text))
		if emitErr := emit(datatypes.StreamErrorMessage); emitErr != nil {
			return Result{Text: text, Outcome: OutcomeOK, Interrupted: true}, emitErr
		}
		if strings.TrimSpace(text) == "" {
			return Result{Outcome: OutcomeFailed, Err: err}, nil
		}
		return Result{Text: text, Outcome: OutcomeOK, Interrupted: true, Err: err}, nil
	case strings.TrimSpace(text) == "":
		return Result{Outcome: OutcomeFailed, Err: errEmptyCompletion}, nil
	default:
		return Result{Text: text, Outcome: OutcomeOK}, nil
	}
}

// =============================================================================
// Event-Stream Parsing
// =============================================================================

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

// ReadStream reads a chat-completion event stream line by line and emits
// every content delta.
//
// Only "data:" lines are considered. "[DONE]" ends the stream. Blank
// lines, comments, other fields and unparsable payloads are skipped.
// The stream may also end at EOF without "[DONE]".
//
// It returns the concatenated deltas. A non-nil error is either the
// transport error or a *consumerError wrapping emit's error.
func ReadStream(r io.Reader, emit EmitFunc) (string, error) {
	reader := bufio.NewReader(r)
	var text strings.Builder

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			chunk, done := parseLine(line)
			if done {
				return text.String(), nil
			}
			if chunk != "" {
				text.WriteString(chunk)
				if err := emit(chunk); err != nil {
					return text.String(), &consumerError{err: err}
				}
			}
		}
		if readErr == io.EOF {
			return text.String(), nil
		}
		if readErr != nil {
			return text.String(), readErr
		}
	}
}

// parseLine returns the content of one event-stream line and whether it
// was the end marker.
func parseLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneMarker {
		return "", true
	}
	if payload == "" {
		return "", false
	}

	var event openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		slog.Debug("Skipping unparsable stream payload", "error", err)
		return "", false
	}
	if len(event.Choices) == 0 {
		return "", false
	}
	return event.Choices[0].Delta.Content, false
}
