// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator is the chat pipeline facade.
//
// # Description
//
// For each inbound message the Orchestrator:
//
//  1. persists the user turn,
//  2. classifies scope, answering out-of-scope text with the fixed refusal,
//  3. tries a direct answer rendered from the guide,
//  4. otherwise reduces the guide context, generates and normalizes,
//  5. persists the bot turn.
//
// Send and Stream follow the same decision order and settle the final
// text through the same code, so both produce the same persisted text for
// the same model output.
//
// # Thread Safety
//
// Safe for concurrent use. Requests share no mutable state beyond the
// turn store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homescan/guidebot/services/chatbot/conversation"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/direct"
	"github.com/homescan/guidebot/services/chatbot/fallback"
	"github.com/homescan/guidebot/services/chatbot/generator"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/normalize"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/chatbot/relevance"
	"github.com/homescan/guidebot/services/chatbot/scope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmptyMessage rejects blank message text.
var ErrEmptyMessage = errors.New("message text is empty")

var tracer = otel.Tracer("orchestrator")

// Deps are the Orchestrator's collaborators. Knowledge, Store and
// Generator are required; the rest default to their standard
// implementations.
type Deps struct {
	Knowledge  *knowledge.Base
	Store      conversation.Store
	Generator  *generator.Generator
	Classifier *scope.Classifier
	Resolver   *direct.Resolver
	Reducer    *relevance.Reducer
	Fallback   *fallback.Answerer
	Metrics    *observability.Metrics
}

// Reply is the outcome of one message.
type Reply struct {
	// Turn is the persisted bot turn.
	Turn datatypes.Turn

	// Path is how the answer was produced.
	Path observability.Path

	// Raw is the generator's unmodified text, empty for direct and
	// out-of-scope answers.
	Raw string
}

// StreamFunc receives stream events. Returning an error aborts the
// stream; nothing further is persisted.
type StreamFunc func(datatypes.StreamEvent) error

// Orchestrator runs the chat pipeline.
type Orchestrator struct {
	kb         *knowledge.Base
	store      conversation.Store
	generator  *generator.Generator
	classifier *scope.Classifier
	resolver   *direct.Resolver
	reducer    *relevance.Reducer
	fallback   *fallback.Answerer
	metrics    *observability.Metrics
}

// New validates deps and fills defaults.
func New(d Deps) (*Orchestrator, error) {
	if d.Knowledge == nil {
		return nil, errors.New("knowledge base is required")
	}
	if d.Store == nil {
		return nil, errors.New("turn store is required")
	}
	if d.Generator == nil {
		return nil, errors.New("generator is required")
	}

	o := &Orchestrator{
		kb:         d.Knowledge,
		store:      d.Store,
		generator:  d.Generator,
		classifier: d.Classifier,
		resolver:   d.Resolver,
		reducer:    d.Reducer,
		fallback:   d.Fallback,
		metrics:    d.Metrics,
	}
	if o.classifier == nil {
		o.classifier = scope.NewClassifier()
	}
	if o.resolver == nil {
		o.resolver = direct.NewResolver(d.Knowledge)
	}
	if o.reducer == nil {
		o.reducer = relevance.NewReducer()
	}
	if o.fallback == nil {
		o.fallback = fallback.New(d.Knowledge)
	}
	return o, nil
}

// =============================================================================
// Blocking
// =============================================================================

// Send answers one message and returns the persisted bot turn.
//
// # Inputs
//
//   - ctx: Request context. Cancelling it aborts generation.
//   - owner: Conversation owner from the caller's credential.
//   - text: The question. Blank text returns ErrEmptyMessage.
//   - topic: Optional topic hint such as "moveout".
//
// # Outputs
//
//   - Reply: The bot turn and how it was produced.
//   - error: ErrEmptyMessage, conversation.ErrInvalidOwner or a store
//     failure. Generation failures are never returned; they degrade to a
//     textual answer.
//
// # Examples
//
//	reply, err := o.Send(ctx, "user-1", "보증금 체크리스트 알려줘", "moveout")
func (o *Orchestrator) Send(ctx context.Context, owner, text, topic string) (Reply, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Send",
		trace.WithAttributes(attribute.String("topic", topic)))
	defer span.End()

	pre, err := o.prepare(ctx, owner, text, topic)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Path: pre.path}
	answer := pre.answer
	if pre.request != nil {
		res := o.generator.Generate(ctx, *pre.request)
		answer, reply.Path = o.settle(text, res)
		reply.Raw = res.Text
	}

	reply.Turn, err = o.store.Append(ctx, owner, datatypes.RoleAssistant, answer)
	if err != nil {
		return Reply{}, fmt.Errorf("persist bot turn: %w", err)
	}

	o.metrics.RecordRequest(observability.ModeBlocking, reply.Path)
	span.SetAttributes(attribute.String("path", string(reply.Path)))
	return reply, nil
}

// =============================================================================
// Streaming
// =============================================================================

// Stream answers one message incrementally.
//
// # Description
//
// Emits delta events while the answer is produced, then persists the bot
// turn and emits one final event carrying it. Direct and out-of-scope
// answers arrive as a single delta. A completed stream that refused an
// in-scope question gets the same single correction as Send; the final
// event then carries the corrected turn. If emit fails, the stream stops, the
// upstream call is released and no bot turn is persisted.
//
// # Outputs
//
//   - Reply: The persisted bot turn.
//   - error: Input and store errors as in Send, or emit's error.
func (o *Orchestrator) Stream(ctx context.Context, owner, text, topic string, emit StreamFunc) (Reply, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Stream",
		trace.WithAttributes(attribute.String("topic", topic)))
	defer span.End()

	pre, err := o.prepare(ctx, owner, text, topic)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Path: pre.path}
	answer := pre.answer
	if pre.request == nil {
		if err := emit(deltaEvent(answer)); err != nil {
			o.metrics.RecordClientDisconnect()
			return Reply{}, err
		}
	} else {
		o.metrics.StreamStarted()
		res, err := o.generator.Stream(ctx, *pre.request, func(chunk string) error {
			return emit(deltaEvent(chunk))
		})
		o.metrics.StreamEnded()
		if err != nil {
			o.metrics.RecordClientDisconnect()
			slog.Info("Stream consumer went away", "owner", owner, "error", err)
			return Reply{}, err
		}
		if res.Outcome == generator.OutcomeOK && !res.Interrupted {
			res = o.generator.Correct(ctx, *pre.request, res.Text)
		}
		answer, reply.Path = o.settle(text, res)
		reply.Raw = res.Text

		// nothing was streamed for an unconfigured model
		if res.Outcome == generator.OutcomeNotConfigured {
			if err := emit(deltaEvent(answer)); err != nil {
				o.metrics.RecordClientDisconnect()
				return Reply{}, err
			}
		}
	}

	reply.Turn, err = o.store.Append(ctx, owner, datatypes.RoleAssistant, answer)
	if err != nil {
		return Reply{}, fmt.Errorf("persist bot turn: %w", err)
	}
	o.metrics.RecordRequest(observability.ModeStreaming, reply.Path)
	span.SetAttributes(attribute.String("path", string(reply.Path)))

	resp := reply.Turn.Response()
	if err := emit(datatypes.StreamEvent{
		ID:        reply.Turn.ID,
		Type:      datatypes.StreamEventFinal,
		Turn:      &resp,
		CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		o.metrics.RecordClientDisconnect()
		return reply, err
	}
	return reply, nil
}

func deltaEvent(chunk string) datatypes.StreamEvent {
	return datatypes.StreamEvent{
		Type:      datatypes.StreamEventDelta,
		Content:   chunk,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// =============================================================================
// Shared Pipeline
// =============================================================================

// prepared is the result of the steps before generation. Either answer
// is final, or request must be sent to the generator.
type prepared struct {
	answer  string
	path    observability.Path
	request *generator.Request
}

func (o *Orchestrator) prepare(ctx context.Context, owner, text, topic string) (prepared, error) {
	if strings.TrimSpace(text) == "" {
		return prepared{}, ErrEmptyMessage
	}

	userTurn, err := o.store.Append(ctx, owner, datatypes.RoleUser, text)
	if err != nil {
		return prepared{}, fmt.Errorf("persist user turn: %w", err)
	}

	if !o.classifier.InScope(ctx, topic, text) {
		return prepared{answer: datatypes.OffTopicMessage, path: observability.PathOutOfScope}, nil
	}

	if ans, ok := o.resolver.Resolve(ctx, topic, text); ok {
		slog.Debug("Answered from guide", "label", ans.Candidate.Label, "section", ans.Candidate.SectionPath)
		return prepared{answer: ans.Text, path: observability.PathDirect}, nil
	}

	history, err := o.history(ctx, owner, userTurn.ID)
	if err != nil {
		return prepared{}, err
	}
	reduced, outcome := o.reducer.Reduce(o.kb.Context(topic), text)
	slog.Debug("Reduced guide context", "topic", topic, "outcome", outcome, "sections", reduced.Len())

	return prepared{
		path: observability.PathGenerated,
		request: &generator.Request{
			Question: text,
			InScope:  true,
			Context:  reduced,
			History:  history,
		},
	}, nil
}

// history returns the most recent turns before the current one, oldest
// first.
func (o *Orchestrator) history(ctx context.Context, owner, currentID string) ([]datatypes.Turn, error) {
	turns, err := conversation.Recent(ctx, o.store, owner, generator.MaxHistoryTurns+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]datatypes.Turn, 0, len(turns))
	for _, t := range turns {
		if t.ID != currentID {
			out = append(out, t)
		}
	}
	if len(out) > generator.MaxHistoryTurns {
		out = out[len(out)-generator.MaxHistoryTurns:]
	}
	return out, nil
}

// settle turns a generation result into the text to persist.
func (o *Orchestrator) settle(question string, res generator.Result) (string, observability.Path) {
	switch res.Outcome {
	case generator.OutcomeNotConfigured:
		return datatypes.NotConfiguredMessage, observability.PathNotConfigured
	case generator.OutcomeOK:
		if text := normalize.Normalize(res.Text); text != "" {
			return text, observability.PathGenerated
		}
	default:
		slog.Warn("Generation failed, using fallback answer", "error", res.Err)
	}
	return o.fallback.Answer(question), observability.PathDegraded
}

// =============================================================================
// History
// =============================================================================

// History returns every turn of owner, newest first.
func (o *Orchestrator) History(ctx context.Context, owner string) ([]datatypes.Turn, error) {
	turns, err := o.store.List(ctx, owner, conversation.Descending)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return turns, nil
}

// Clear deletes every turn of owner.
func (o *Orchestrator) Clear(ctx context.Context, owner string) error {
	if err := o.store.DeleteAll(ctx, owner); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

// SuggestedPrompts returns the canned questions for a topic, or for every
// topic when topic is empty. No model is involved.
func (o *Orchestrator) SuggestedPrompts(topic string) []knowledge.Suggestion {
	return o.kb.Suggestions(topic)
}
