// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator produces model answers grounded in the guide.
//
// # Description
//
// A Generator assembles the prompt (system instructions, reduced guide
// context, recent history, question), calls the completion API through
// the bounded retry policy, and returns raw model text. It never returns
// a generation failure as an error: the Result's Outcome tells the caller
// whether to use the text, the not-configured message or a fallback.
//
// # Thread Safety
//
// A Generator is immutable after construction and safe for concurrent use.
package generator

import (
	"context"
	"strings"
	"time"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/normalize"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sampling defaults.
const (
	DefaultTemperature float32 = 0.3
	DefaultMaxTokens           = 1000
)

var tracer = otel.Tracer("generator")

// Outcome is how a generation ended.
type Outcome string

const (
	// OutcomeOK means Text holds model output.
	OutcomeOK Outcome = Outcome(observability.OutcomeOK)

	// OutcomeNotConfigured means no API credential is set. Text holds the
	// not-configured message and no call was made.
	OutcomeNotConfigured Outcome = Outcome(observability.OutcomeNotConfigured)

	// OutcomeFailed means retries were exhausted, the failure was not
	// retryable, or the model returned nothing usable.
	OutcomeFailed Outcome = Outcome(observability.OutcomeFailed)
)

// Request is one generation input.
type Request struct {
	// Question is the current user message.
	Question string

	// InScope selects the full instructions. When false the model is told
	// to emit only the fixed refusal.
	InScope bool

	// Context is the reduced guide subtree.
	Context *knowledge.Node

	// History holds earlier turns oldest first, excluding Question.
	History []datatypes.Turn
}

// Result is one generation output.
type Result struct {
	// Text is the raw model output, not normalized.
	Text string

	Outcome Outcome

	// Corrected is true when the self-correction call replaced the text.
	Corrected bool

	// Interrupted is true when a stream broke after some text arrived.
	Interrupted bool

	// Err is the underlying failure for OutcomeFailed, for logging only.
	Err error
}

// Generator calls the completion API.
type Generator struct {
	client      llm.ChatClient
	retry       llm.RetryPolicy
	temperature float32
	maxTokens   int
	metrics     *observability.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(g *Generator) {
		g.retry = p
	}
}

// WithSampling overrides temperature and max output tokens.
func WithSampling(temperature float32, maxTokens int) Option {
	return func(g *Generator) {
		g.temperature = temperature
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

// WithMetrics records call outcomes, retries and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// New creates a Generator. A nil client means no credential is
// configured: every call degrades to the not-configured message.
func New(client llm.ChatClient, opts ...Option) *Generator {
	g := &Generator{
		client:      client,
		retry:       llm.DefaultRetryPolicy(),
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	onRetry := g.retry.OnRetry
	g.retry.OnRetry = func(err error, wait time.Duration) {
		g.metrics.RecordRetry()
		if onRetry != nil {
			onRetry(err, wait)
		}
	}
	return g
}

// Configured reports whether a completion client is available.
func (g *Generator) Configured() bool {
	return g.client != nil
}

func (g *Generator) params() llm.GenerationParams {
	temperature := g.temperature
	maxTokens := g.maxTokens
	return llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}
}

// Generate produces a complete answer.
//
// # Description
//
// Generation is a two-step pipeline: generate, then inspect. If the
// request is in scope but the model answered with the fixed refusal, one
// corrective call is made with a stronger instruction, and its output is
// used when it is non-empty. No further calls are made.
//
// # Inputs
//
//   - ctx: Cancels in-flight and pending attempts.
//   - req: The prompt inputs.
//
// # Outputs
//
//   - Result: Raw text and outcome. Never an error.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "generator.Generate",
		trace.WithAttributes(attribute.Bool("in_scope", req.InScope)))
	defer span.End()

	if !g.Configured() {
		g.metrics.RecordModelCall(observability.ModeBlocking, observability.OutcomeNotConfigured, 0)
		span.SetAttributes(attribute.String("outcome", string(OutcomeNotConfigured)))
		return Result{Text: datatypes.NotConfiguredMessage, Outcome: OutcomeNotConfigured}
	}

	start := time.Now()
	res := g.generate(ctx, req)
	g.metrics.RecordModelCall(observability.ModeBlocking, string(res.Outcome), time.Since(start))

	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Bool("corrected", res.Corrected),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "generation failed")
	}
	return res
}

func (g *Generator) generate(ctx context.Context, req Request) Result {
	text, err := g.complete(ctx, Messages(req, false))
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Outcome: OutcomeFailed, Err: errEmptyCompletion}
	}
	return g.correct(ctx, req, text)
}

// Correct inspects a complete answer and makes the single corrective
// call when an in-scope request was answered with the fixed refusal.
//
// # Description
//
// Any other text comes back unchanged with OutcomeOK. The corrected text
// is used when it is non-empty; otherwise the original is kept. Generate
// runs this itself. Streaming callers run it once the stream completes,
// so both modes settle on the same answer.
//
// # Inputs
//
//   - ctx: Cancels the corrective call.
//   - req: The request that produced text.
//   - text: The complete raw answer.
//
// # Outputs
//
//   - Result: Corrected is true when the corrective output replaced text.
func (g *Generator) Correct(ctx context.Context, req Request, text string) Result {
	if !g.Configured() {
		return Result{Text: text, Outcome: OutcomeOK}
	}
	ctx, span := tracer.Start(ctx, "generator.Correct")
	defer span.End()

	res := g.correct(ctx, req, text)
	span.SetAttributes(attribute.Bool("corrected", res.Corrected))
	return res
}

func (g *Generator) correct(ctx context.Context, req Request, text string) Result {
	if !req.InScope || !normalize.IsOffTopic(text) {
		return Result{Text: text, Outcome: OutcomeOK}
	}

	g.metrics.RecordSelfCorrection()
	corrected, err := g.complete(ctx, Messages(req, true))
	if err != nil || strings.TrimSpace(corrected) == "" {
		return Result{Text: text, Outcome: OutcomeOK}
	}
	return Result{Text: corrected, Outcome: OutcomeOK, Corrected: true}
}

func (g *Generator) complete(ctx context.Context, msgs []llm.Message) (string, error) {
	out, err := llm.Do(ctx, g.retry, func(ctx context.Context) (*llm.Completion, error) {
		return g.client.Chat(ctx, msgs, g.params())
	})
	if err != nil {
		return "", err
	}
	g.metrics.RecordTokens(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out.Content, nil
}
