// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation persists chat turns per conversation owner.
//
// # Description
//
// A Store is an append-only turn log keyed by owner. Three backends are
// provided:
//
//   - MemoryStore: process-local, used by the CLI and tests.
//   - BadgerStore: embedded key-value store, the default for the server.
//   - SQLiteStore: single-file relational store.
//
// Turns are never modified after Append. Concurrent appends for the same
// owner are not de-duplicated; their order is the order in which the
// backend accepted them.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
)

// ErrInvalidOwner is returned for a blank conversation owner.
var ErrInvalidOwner = errors.New("conversation owner is required")

// Order selects the sort direction of List.
type Order int

const (
	// Ascending lists oldest first.
	Ascending Order = iota

	// Descending lists newest first.
	Descending
)

// Store is a per-owner turn log.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a new turn and returns it with ID and CreatedAt set.
	Append(ctx context.Context, owner string, role datatypes.Role, text string) (datatypes.Turn, error)

	// List returns all turns of owner in the given order.
	List(ctx context.Context, owner string, order Order) ([]datatypes.Turn, error)

	// DeleteAll removes every turn of owner.
	DeleteAll(ctx context.Context, owner string) error

	// Close releases backend resources.
	Close() error
}

// Recent returns up to n most recent turns of owner, oldest first.
func Recent(ctx context.Context, s Store, owner string, n int) ([]datatypes.Turn, error) {
	turns, err := s.List(ctx, owner, Ascending)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

// newTurn builds a turn with a time-ordered ID.
func newTurn(owner string, role datatypes.Role, text string) (datatypes.Turn, error) {
	if strings.TrimSpace(owner) == "" {
		return datatypes.Turn{}, ErrInvalidOwner
	}
	id, err := uuid.NewV7()
	if err != nil {
		return datatypes.Turn{}, err
	}
	return datatypes.Turn{
		ID:        id.String(),
		Owner:     owner,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func checkOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrInvalidOwner
	}
	return nil
}

func reverse(turns []datatypes.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
