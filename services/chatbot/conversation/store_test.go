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
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Backend Matrix
// =============================================================================

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) Store {
			return NewMemoryStore()
		}},
		{name: "badger", open: func(t *testing.T) Store {
			s, err := OpenBadgerStore(InMemoryBadgerConfig())
			require.NoError(t, err)
			return s
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := OpenSQLiteStore(MemoryDSN)
			require.NoError(t, err)
			return s
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

// =============================================================================
// Store Contract
// =============================================================================

func TestStore_AppendAndList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first, err := s.Append(ctx, "user-1", datatypes.RoleUser, "보증금 체크리스트 알려줘")
		require.NoError(t, err)
		second, err := s.Append(ctx, "user-1", datatypes.RoleAssistant, "보증금 관리")
		require.NoError(t, err)

		assert.NotEmpty(t, first.ID)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, "user-1", first.Owner)
		assert.False(t, first.CreatedAt.IsZero())

		asc, err := s.List(ctx, "user-1", Ascending)
		require.NoError(t, err)
		require.Len(t, asc, 2)
		assert.Equal(t, first.ID, asc[0].ID)
		assert.Equal(t, datatypes.RoleUser, asc[0].Role)
		assert.Equal(t, "보증금 체크리스트 알려줘", asc[0].Text)
		assert.True(t, first.CreatedAt.Equal(asc[0].CreatedAt))
		assert.Equal(t, second.ID, asc[1].ID)

		desc, err := s.List(ctx, "user-1", Descending)
		require.NoError(t, err)
		require.Len(t, desc, 2)
		assert.Equal(t, second.ID, desc[0].ID)
		assert.Equal(t, first.ID, desc[1].ID)
	})
}

func TestStore_OwnersAreIsolated(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Append(ctx, "alice@example.com", datatypes.RoleUser, "a")
		require.NoError(t, err)
		_, err = s.Append(ctx, "alice@example.com/x", datatypes.RoleUser, "b")
		require.NoError(t, err)

		turns, err := s.List(ctx, "alice@example.com", Ascending)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "a", turns[0].Text)

		none, err := s.List(ctx, "nobody", Ascending)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStore_DeleteAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := s.Append(ctx, "user-1", datatypes.RoleUser, fmt.Sprintf("q%d", i))
			require.NoError(t, err)
		}
		_, err := s.Append(ctx, "user-2", datatypes.RoleUser, "keep")
		require.NoError(t, err)

		require.NoError(t, s.DeleteAll(ctx, "user-1"))

		gone, err := s.List(ctx, "user-1", Ascending)
		require.NoError(t, err)
		assert.Empty(t, gone)

		kept, err := s.List(ctx, "user-2", Ascending)
		require.NoError(t, err)
		assert.Len(t, kept, 1)

		// clearing an empty conversation is not an error
		assert.NoError(t, s.DeleteAll(ctx, "user-1"))
	})
}

func TestStore_RejectsBlankOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Append(ctx, " ", datatypes.RoleUser, "q")
		assert.ErrorIs(t, err, ErrInvalidOwner)
		_, err = s.List(ctx, "", Ascending)
		assert.ErrorIs(t, err, ErrInvalidOwner)
		assert.ErrorIs(t, s.DeleteAll(ctx, ""), ErrInvalidOwner)
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Append(ctx, "user-1", datatypes.RoleUser, fmt.Sprintf("q%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		turns, err := s.List(ctx, "user-1", Ascending)
		require.NoError(t, err)
		assert.Len(t, turns, 20)
	})
}

func TestRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := s.Append(ctx, "u", datatypes.RoleUser, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	recent, err := Recent(ctx, s, "u", 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "q2", recent[0].Text)
	assert.Equal(t, "q11", recent[9].Text)
}

// =============================================================================
// Durability
// =============================================================================

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultBadgerConfig(dir)
	cfg.GCInterval = 0
	s, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	turn, err := s.Append(ctx, "user-1", datatypes.RoleUser, "저장")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	turns, err := reopened.List(ctx, "user-1", Ascending)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, turn.ID, turns[0].ID)
}

func TestBadgerStore_GCRunnerStops(t *testing.T) {
	cfg := DefaultBadgerConfig(t.TempDir())
	s, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "turns.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	turn, err := s.Append(ctx, "user-1", datatypes.RoleAssistant, "저장")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	turns, err := reopened.List(ctx, "user-1", Ascending)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, turn.ID, turns[0].ID)
	assert.Equal(t, datatypes.RoleAssistant, turns[0].Role)
}
