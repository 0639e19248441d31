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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/homescan/guidebot/services/chatbot/datatypes"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_owner_created ON turns(owner, created_at, id);
`

// SQLiteStore persists turns in a single SQLite file.
//
// # Thread Safety
//
// Safe for concurrent use. Writes are serialized on one connection.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path. MemoryDSN gives
// an in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also keeps
	// an in-memory database alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, owner string, role datatypes.Role, text string) (datatypes.Turn, error) {
	turn, err := newTurn(owner, role, text)
	if err != nil {
		return datatypes.Turn{}, err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO turns (id, owner, role, text, created_at) VALUES (?, ?, ?, ?, ?)",
		turn.ID, turn.Owner, string(turn.Role), turn.Text, turn.CreatedAt.UnixNano())
	if err != nil {
		return datatypes.Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	return turn, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, owner string, order Order) ([]datatypes.Turn, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}

	query := "SELECT id, owner, role, text, created_at FROM turns WHERE owner = ? ORDER BY created_at ASC, id ASC"
	if order == Descending {
		query = "SELECT id, owner, role, text, created_at FROM turns WHERE owner = ? ORDER BY created_at DESC, id DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []datatypes.Turn
	for rows.Next() {
		var (
			turn    datatypes.Turn
			role    string
			created int64
		)
		if err := rows.Scan(&turn.ID, &turn.Owner, &role, &turn.Text, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = datatypes.Role(role)
		turn.CreatedAt = time.Unix(0, created).UTC()
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// DeleteAll implements Store.
func (s *SQLiteStore) DeleteAll(ctx context.Context, owner string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE owner = ?", owner); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
