// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultAttemptTimeout = 60 * time.Second
)

// StatusError is a non-200 response to a raw HTTP call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// RetryPolicy bounds how a completion call is retried.
//
// # Description
//
// At most MaxAttempts calls are made, separated by a fixed Delay. Each
// attempt runs under its own AttemptTimeout when it is positive. Only
// transient failures are retried (see IsRetryable); everything else
// returns after the first attempt.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration

	// OnRetry, if set, is called before each wait with the failed
	// attempt's error.
	OnRetry func(err error, wait time.Duration)
}

// DefaultRetryPolicy returns 3 attempts, 2s apart, 60s each.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		Delay:          DefaultRetryDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Do runs op under the policy and returns its first successful result or
// the last error.
//
// # Inputs
//
//   - ctx: Cancelling it stops further attempts and is never retried.
//   - p: The policy. Zero MaxAttempts means DefaultMaxAttempts.
//   - op: Receives the per-attempt context.
//
// # Outputs
//
//   - T: op's result.
//   - error: op's last error, unwrapped from any retry bookkeeping.
//
// # Limitations
//
//   - The per-attempt context is cancelled when op returns, so op must not
//     hand back anything that keeps reading from it. Stream openers use a
//     zero AttemptTimeout and bound the stream with ctx instead.
func Do[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		actx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		v, err := op(actx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		slog.Warn("Completion call failed, will retry", "attempt", attempt, "max_attempts", attempts, "error", err)
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}
	v, err := backoff.Retry(ctx, operation, opts...)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}

// IsRetryable reports whether err is a transient completion failure: an
// attempt timeout, an overloaded or unavailable upstream (429, 502, 503),
// or a dropped connection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}

	for _, target := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.EPIPE, io.ErrUnexpectedEOF} {
		if errors.Is(err, target) {
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
