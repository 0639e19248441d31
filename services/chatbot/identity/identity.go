// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity resolves the conversation owner from a bearer token.
//
// Two extensions.AuthProvider implementations are provided:
//
//   - JWTProvider validates HS256 tokens and uses the subject claim,
//     or the email claim when the subject is empty, as the owner.
//   - LocalProvider treats every caller as extensions.LocalUserID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/homescan/guidebot/pkg/extensions"
)

// ErrEmptySecret is returned by NewJWTProvider for a blank secret.
var ErrEmptySecret = errors.New("jwt secret is empty")

// Claims are the token claims the provider reads.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HMAC-SHA256 signed bearer tokens.
//
// # Description
//
// A token is accepted when its signature verifies with the shared secret,
// its time claims (exp, nbf, iat) are valid, its issuer matches when one
// is configured, and it names an owner through sub or email.
//
// # Thread Safety
//
// Safe for concurrent use. The provider is immutable.
type JWTProvider struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTProvider creates a provider. An empty issuer skips the issuer
// check.
func NewJWTProvider(secret, issuer string) (*JWTProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Validate implements extensions.AuthProvider.
func (p *JWTProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", extensions.ErrUnauthorized)
	}

	var claims Claims
	if _, err := p.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, extensions.ErrUnauthorized)
	}

	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return nil, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, extensions.ErrUnauthorized)
	}

	owner := strings.TrimSpace(claims.Subject)
	if owner == "" {
		owner = strings.TrimSpace(claims.Email)
	}
	if owner == "" {
		return nil, fmt.Errorf("token names no subject: %w", extensions.ErrUnauthorized)
	}

	return &extensions.AuthInfo{
		UserID: owner,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// Issue signs a token for owner. Used by tests and the CLI.
func (p *JWTProvider) Issue(claims Claims) (string, error) {
	if p.issuer != "" && claims.Issuer == "" {
		claims.Issuer = p.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// LocalProvider authenticates every caller as the local user.
type LocalProvider struct {
	extensions.NopAuthProvider
}

// NewLocalProvider returns a LocalProvider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// New returns the provider named by kind: "jwt" or "none".
func New(kind, secret, issuer string) (extensions.AuthProvider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "jwt":
		return NewJWTProvider(secret, issuer)
	case "", "none", "local":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", kind)
	}
}

var (
	_ extensions.AuthProvider = (*JWTProvider)(nil)
	_ extensions.AuthProvider = (*LocalProvider)(nil)
)
