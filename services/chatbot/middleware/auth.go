// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the chatbot API.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting AuthInfo in the gin context. Handlers read the conversation
// owner from it.
//
//	Request
//	   │
//	   ▼
//	Auth
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       RateLimit (keyed by owner)
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
)

// =============================================================================
// Context Keys
// =============================================================================

const authInfoKey = "guidebot_auth_info"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the gin context.
//
// # Outputs
//
//   - *extensions.AuthInfo: User info, or nil if Auth has not run.
//
// # Examples
//
//	info := middleware.GetAuthInfo(c)
//	if info == nil {
//	    c.AbortWithStatus(http.StatusUnauthorized)
//	    return
//	}
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// Owner returns the conversation owner of the request, or "" when the
// request is not authenticated.
func Owner(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return ""
}

// =============================================================================
// Auth Middleware
// =============================================================================

// Auth creates a gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header and validates
// it with provider. A missing or malformed header passes an empty token,
// which LocalProvider accepts and JWTProvider rejects. Rejections abort
// with 401 and an ErrorResponse body, and are reported to audit.
//
// # Inputs
//
//   - provider: Validates tokens. Must not be nil.
//   - audit: Receives auth.failed events. Nil disables auditing.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func Auth(provider extensions.AuthProvider, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil || authInfo == nil || authInfo.UserID == "" {
			reason := "authentication failed"
			if errors.Is(err, extensions.ErrUnauthorized) {
				reason = "unauthorized"
			}
			logAuthFailure(c.Request.Context(), audit, c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: reason})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

func logAuthFailure(ctx context.Context, audit extensions.AuditLogger, route string, err error) {
	if audit == nil {
		return
	}
	meta := map[string]any{"route": route}
	if err != nil {
		meta["error"] = err.Error()
	}
	_ = audit.Log(ctx, extensions.AuditEvent{
		EventType: extensions.EventAuthFailed,
		UserID:    "anonymous",
		Action:    "authenticate",
		Outcome:   "failure",
		Metadata:  meta,
	})
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken returns the token of an "Authorization: Bearer
// <token>" header. The scheme is case-insensitive. Without a usable
// header it falls back to the access_token query parameter, since
// browsers cannot set headers on a WebSocket handshake. Returns "" when
// neither is present.
func extractBearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.Query("access_token"))
}
