// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopAuthProvider_AlwaysLocalUser(t *testing.T) {
	p := &NopAuthProvider{}
	for _, token := range []string{"", "garbage", "Bearer x"} {
		info, err := p.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, LocalUserID, info.UserID)
		assert.True(t, info.HasRole("admin"))
		assert.False(t, info.HasRole("auditor"))
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.IsType(t, &NopAuthProvider{}, opts.AuthProvider)
	assert.IsType(t, &NopAuditLogger{}, opts.AuditLogger)
}

func TestServiceOptions_WithAndNormalize(t *testing.T) {
	audit := NewSlogAuditLogger(nil)
	opts := ServiceOptions{}.WithAudit(audit).Normalize()

	assert.Same(t, audit, opts.AuditLogger)
	assert.IsType(t, &NopAuthProvider{}, opts.AuthProvider)

	custom := &NopAuthProvider{}
	assert.Same(t, custom, DefaultOptions().WithAuth(custom).AuthProvider)
}

func TestSlogAuditLogger_WritesRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := logger.Log(context.Background(), AuditEvent{
		EventType:    EventHistoryCleared,
		UserID:       "user-1",
		Action:       "clear",
		ResourceType: "conversation",
		ResourceID:   "user-1",
		Outcome:      "success",
	})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit", record["msg"])
	assert.Equal(t, "audit", record["component"])
	assert.Equal(t, EventHistoryCleared, record["event_type"])
	assert.Equal(t, "user-1", record["user_id"])
	assert.Equal(t, "conversation", record["resource_type"])
	assert.NotEmpty(t, record["timestamp"])
}

func TestNopAuditLogger(t *testing.T) {
	assert.NoError(t, (&NopAuditLogger{}).Log(context.Background(), AuditEvent{}))
}
