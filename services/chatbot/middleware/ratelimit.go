// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an owner's bucket survives without requests.
const idleLimiterTTL = 10 * time.Minute

type ownerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// OwnerLimiter keeps one token bucket per conversation owner.
//
// # Thread Safety
//
// Safe for concurrent use.
type OwnerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*ownerLimiter
	now      func() time.Time
}

// NewOwnerLimiter allows perSecond sustained requests per owner with
// bursts up to burst. A non-positive perSecond disables limiting.
func NewOwnerLimiter(perSecond float64, burst int) *OwnerLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &OwnerLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*ownerLimiter),
		now:      time.Now,
	}
}

// Allow reports whether owner may make a request now.
func (l *OwnerLimiter) Allow(owner string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	now := l.now()
	entry, ok := l.limiters[owner]
	if !ok {
		l.sweep(now)
		entry = &ownerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[owner] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds mu.
func (l *OwnerLimiter) sweep(now time.Time) {
	for owner, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(l.limiters, owner)
		}
	}
}

// Len returns the number of tracked owners.
func (l *OwnerLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit rejects requests with 429 once the owner's bucket is empty.
// It must run after Auth.
func RateLimit(l *OwnerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := Owner(c)
		if owner != "" && !l.Allow(owner) {
			slog.Warn("Rate limit exceeded", "owner", owner, "route", c.FullPath())
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: "too many requests",
			})
			return
		}
		c.Next()
	}
}
