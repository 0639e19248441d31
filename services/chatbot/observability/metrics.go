// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and tracing for the chatbot.
//
// # Description
//
// Metrics cover the chat pipeline end to end:
//   - Request counters (by mode and resolution path)
//   - Model call outcomes, retries and self-corrections
//   - Generation latency histograms
//   - Active stream gauge and client disconnects
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *Metrics, so tests and the CLI can run
// without a registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "guidebot"

// Mode is the call shape of a chat request.
type Mode string

const (
	ModeBlocking  Mode = "blocking"
	ModeStreaming Mode = "streaming"
)

// Path is how a chat request was answered.
type Path string

const (
	PathOutOfScope    Path = "out_of_scope"
	PathDirect        Path = "direct"
	PathGenerated     Path = "generated"
	PathNotConfigured Path = "not_configured"
	PathDegraded      Path = "degraded"
)

// Model call outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeNotConfigured = "not_configured"
	OutcomeFailed        = "failed"
)

// Metrics holds all Prometheus collectors of the chatbot.
type Metrics struct {
	// ChatRequestsTotal counts answered messages.
	// Labels: mode (blocking, streaming), path (out_of_scope, direct, ...)
	ChatRequestsTotal *prometheus.CounterVec

	// ModelCallsTotal counts generation attempts by final outcome.
	// Labels: outcome (ok, not_configured, failed)
	ModelCallsTotal *prometheus.CounterVec

	// ModelRetriesTotal counts retried completion attempts.
	ModelRetriesTotal prometheus.Counter

	// SelfCorrectionsTotal counts corrective regenerations.
	SelfCorrectionsTotal prometheus.Counter

	// TokensTotal counts tokens reported by the completion API.
	// Labels: direction (input, output)
	TokensTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures model generation time.
	// Labels: mode
	GenerationDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks open streaming responses.
	ActiveStreams prometheus.Gauge

	// StreamDisconnectsTotal counts streams abandoned by the client.
	StreamDisconnectsTotal prometheus.Counter
}

// NewMetrics creates and registers all collectors on reg.
//
// # Inputs
//
//   - reg: Registry to register with. Use prometheus.DefaultRegisterer in
//     the server and prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics on duplicate registration against the same registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chat_requests_total",
				Help:      "Total chat messages answered by mode and resolution path",
			},
			[]string{"mode", "path"},
		),

		ModelCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "model_calls_total",
				Help:      "Total model generations by outcome",
			},
			[]string{"outcome"},
		),

		ModelRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "model_retries_total",
			Help:      "Total retried completion attempts",
		}),

		SelfCorrectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "self_corrections_total",
			Help:      "Total corrective regenerations after a wrongful refusal",
		}),

		TokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction",
			},
			[]string{"direction"},
		),

		GenerationDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "generation_duration_seconds",
				Help:      "Model generation duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
			},
			[]string{"mode"},
		),

		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_streams",
			Help:      "Number of currently open streaming responses",
		}),

		StreamDisconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_disconnects_total",
			Help:      "Total streams abandoned by the client",
		}),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records an answered chat message.
func (m *Metrics) RecordRequest(mode Mode, path Path) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(string(mode), string(path)).Inc()
}

// RecordModelCall records one generation and its duration.
func (m *Metrics) RecordModelCall(mode Mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeNotConfigured {
		m.GenerationDurationSeconds.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	}
}

// RecordRetry counts a retried completion attempt.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.ModelRetriesTotal.Inc()
}

// RecordSelfCorrection counts a corrective regeneration.
func (m *Metrics) RecordSelfCorrection() {
	if m == nil {
		return
	}
	m.SelfCorrectionsTotal.Inc()
}

// RecordTokens records token usage.
func (m *Metrics) RecordTokens(input, output int) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues("input").Add(float64(input))
	m.TokensTotal.WithLabelValues("output").Add(float64(output))
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

// RecordClientDisconnect counts a stream abandoned by the client.
func (m *Metrics) RecordClientDisconnect() {
	if m == nil {
		return
	}
	m.StreamDisconnectsTotal.Inc()
}
