// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Doubles
// =============================================================================

type tokenProvider struct {
	valid map[string]string
}

func (p *tokenProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	if owner, ok := p.valid[token]; ok {
		return &extensions.AuthInfo{UserID: owner}, nil
	}
	return nil, fmt.Errorf("bad token: %w", extensions.ErrUnauthorized)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, e extensions.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Owner(c))
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Auth
// =============================================================================

func TestAuth_ValidToken(t *testing.T) {
	r := newRouter(Auth(&tokenProvider{valid: map[string]string{"abc": "user-1"}}, nil))

	w := get(r, "Bearer abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	w = get(r, "bearer   abc ")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejects(t *testing.T) {
	audit := &recordingAudit{}
	r := newRouter(Auth(&tokenProvider{valid: map[string]string{"abc": "user-1"}}, audit))

	for _, header := range []string{"", "Bearer wrong", "Basic abc", "abc"} {
		w := get(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
	}
	require.Len(t, audit.events, 4)
	assert.Equal(t, extensions.EventAuthFailed, audit.events[0].EventType)
}

func TestAuth_LocalProviderAcceptsMissingHeader(t *testing.T) {
	r := newRouter(Auth(&extensions.NopAuthProvider{}, nil))

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, extensions.LocalUserID, w.Body.String())
}

func TestGetAuthInfo_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetAuthInfo(c))
	assert.Empty(t, Owner(c))

	c.Set(authInfoKey, "wrong type")
	assert.Nil(t, GetAuthInfo(c))
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"BEARER ABC", "ABC"},
		{"Bearer", ""},
		{"Token abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, extractBearerToken(c), tt.header)
	}
}

func TestExtractBearerToken_QueryFallback(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/ws?access_token=xyz", nil)
	assert.Equal(t, "xyz", extractBearerToken(c))

	c.Request.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", extractBearerToken(c))
}

// =============================================================================
// Rate Limit
// =============================================================================

func TestRateLimit_PerOwner(t *testing.T) {
	provider := &tokenProvider{valid: map[string]string{"a": "alice", "b": "bob"}}
	limiter := NewOwnerLimiter(0.001, 2)
	r := newRouter(Auth(provider, nil), RateLimit(limiter))

	assert.Equal(t, http.StatusOK, get(r, "Bearer a").Code)
	assert.Equal(t, http.StatusOK, get(r, "Bearer a").Code)

	w := get(r, "Bearer a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// another owner has its own bucket
	assert.Equal(t, http.StatusOK, get(r, "Bearer b").Code)
	assert.Equal(t, 2, limiter.Len())
}

func TestOwnerLimiter_DisabledWhenNonPositive(t *testing.T) {
	l := NewOwnerLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("user-1"))
	}
	assert.Zero(t, l.Len())
}

func TestOwnerLimiter_SweepsIdleOwners(t *testing.T) {
	l := NewOwnerLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("old"))
	now = now.Add(idleLimiterTTL + time.Second)
	assert.True(t, l.Allow("new"))

	assert.Equal(t, 1, l.Len())
}
