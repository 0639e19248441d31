// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the chatbot server.
const (
	EventMessageAnswered   = "chat.message"
	EventHistoryCleared    = "chat.history_cleared"
	EventAuthFailed        = "auth.failed"
	EventStreamInterrupted = "chat.stream_interrupted"
)

// AuditEvent is a security-relevant event.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    EventMessageAnswered,
//	    UserID:       authInfo.UserID,
//	    Action:       "send",
//	    ResourceType: "turn",
//	    ResourceID:   turn.ID,
//	    Outcome:      "success",
//	    Metadata:     map[string]any{"path": "direct"},
//	}
type AuditEvent struct {
	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the event occurred. Zero means now.
	Timestamp time.Time

	// UserID identifies who performed the action.
	UserID string

	// Action describes the operation, e.g. "send", "stream", "clear".
	Action string

	// ResourceType is the category of resource involved.
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome is "success", "failure" or "interrupted".
	Outcome string

	// Metadata holds event-specific details.
	Metadata map[string]any
}

// AuditLogger records audit events. Log must not block for long; a failed
// write must never fail the request that produced the event.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log implements AuditLogger.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// SlogAuditLogger writes events as structured log records.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger returns an AuditLogger writing to logger, or to the
// default logger when nil.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

// Log implements AuditLogger.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"event_type", event.EventType,
		"timestamp", event.Timestamp,
		"user_id", event.UserID,
		"action", event.Action,
		"outcome", event.Outcome,
	}
	if event.ResourceType != "" {
		attrs = append(attrs, "resource_type", event.ResourceType, "resource_id", event.ResourceID)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
