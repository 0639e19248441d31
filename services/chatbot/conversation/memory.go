// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"sync"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
)

// MemoryStore keeps turns in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]datatypes.Turn
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]datatypes.Turn)}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, owner string, role datatypes.Role, text string) (datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Turn{}, err
	}
	turn, err := newTurn(owner, role, text)
	if err != nil {
		return datatypes.Turn{}, err
	}

	m.mu.Lock()
	m.turns[owner] = append(m.turns[owner], turn)
	m.mu.Unlock()
	return turn, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, owner string, order Order) ([]datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := append([]datatypes.Turn(nil), m.turns[owner]...)
	m.mu.RUnlock()

	if order == Descending {
		reverse(out)
	}
	return out, nil
}

// DeleteAll implements Store.
func (m *MemoryStore) DeleteAll(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkOwner(owner); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.turns, owner)
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
