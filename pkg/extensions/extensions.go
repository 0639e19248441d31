// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable identity and audit points of
// the chatbot server.
//
// The server depends only on these interfaces. Local development runs
// with no-op defaults; deployments inject a token-validating
// AuthProvider and an AuditLogger that ships events somewhere durable.
//
//   - auth.go: AuthProvider, AuthInfo, ErrUnauthorized
//   - audit.go: AuditLogger, AuditEvent
//
// # Usage
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(identity.NewJWTProvider(secret, issuer)).
//	    WithAudit(extensions.NewSlogAuditLogger(slog.Default()))
//	routes.Setup(router, orch, opts, metricsHandler)
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups the extension points. Nil fields are treated as
// their no-op defaults by Normalize.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	// Default: NopAuthProvider (every caller is local-user)
	AuthProvider AuthProvider

	// AuditLogger records conversation events.
	// Default: NopAuditLogger (discards events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Normalize fills nil fields with no-op defaults.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &NopAuthProvider{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	return opts
}
