// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/homescan/guidebot/services/chatbot/config"
	"github.com/homescan/guidebot/services/chatbot/conversation"
	"github.com/homescan/guidebot/services/chatbot/generator"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/chatbot/orchestrator"
	"github.com/homescan/guidebot/services/llm"
	"github.com/prometheus/client_golang/prometheus"
)

// app is the assembled chat pipeline shared by serve and ask.
type app struct {
	kb      *knowledge.Base
	store   conversation.Store
	gen     *generator.Generator
	orch    *orchestrator.Orchestrator
	metrics *observability.Metrics
}

// buildApp wires the pipeline from cfg. Metrics register with reg; the
// caller owns the returned store and must close it via app.Close.
func buildApp(cfg config.Config, reg prometheus.Registerer) (*app, error) {
	kb, err := loadKnowledge(cfg.Knowledge)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	client, err := newChatClient(cfg.OpenAI)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := observability.NewMetrics(reg)
	gen := generator.New(client,
		generator.WithRetryPolicy(retryPolicy(cfg.OpenAI)),
		generator.WithSampling(cfg.OpenAI.Temperature, cfg.OpenAI.MaxTokens),
		generator.WithMetrics(metrics),
	)

	orch, err := orchestrator.New(orchestrator.Deps{
		Knowledge: kb,
		Store:     store,
		Generator: gen,
		Metrics:   metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{kb: kb, store: store, gen: gen, orch: orch, metrics: metrics}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func loadKnowledge(cfg config.KnowledgeConfig) (*knowledge.Base, error) {
	if cfg.Path == "" {
		return knowledge.LoadDefault()
	}
	kb, err := knowledge.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load knowledge %s: %w", cfg.Path, err)
	}
	slog.Info("Loaded knowledge document", "path", cfg.Path, "topics", kb.Topics())
	return kb, nil
}

func openStore(cfg config.StoreConfig) (conversation.Store, error) {
	switch cfg.Backend {
	case "memory":
		slog.Warn("Using the in-memory turn store, history is lost on restart")
		return conversation.NewMemoryStore(), nil
	case "badger":
		bc := conversation.DefaultBadgerConfig(cfg.Path)
		bc.Logger = slog.Default().With("component", "badger")
		return conversation.OpenBadgerStore(bc)
	case "sqlite":
		return conversation.OpenSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// newChatClient returns nil without an API key so the generator answers
// with the not-configured notice.
func newChatClient(cfg config.OpenAIConfig) (llm.ChatClient, error) {
	if !cfg.Configured() {
		slog.Warn("OPENAI_API_KEY is missing, answers will use the not-configured notice")
		return nil, nil
	}
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if errors.Is(err, llm.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	return client, nil
}

// retryPolicy maps the completion settings onto the generator's policy.
func retryPolicy(c config.OpenAIConfig) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		Delay:          c.RetryDelay,
		AttemptTimeout: c.Timeout,
	}
}
