// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package votestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/voteroom-foundation/voteroom/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
) STRICT;
`

// SQLite is a durable Store on a sqlitepool.Pool. Keys are stored in
// hex text form; values are opaque blobs.
type SQLite struct {
	pool *sqlitepool.Pool
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the store database at path.
// The caller must Close the store when done.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("votestore: opening %s: %w", path, err)
	}
	return &SQLite{pool: pool, now: time.Now}, nil
}

// Close closes the underlying pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key Key) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var value []byte
	err = sqlitex.Execute(conn, `SELECT value FROM kv WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{keyText(key)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("votestore: get: %w", err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key Key, value []byte) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{keyText(key), value, s.now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("votestore: put: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key Key) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM kv WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{keyText(key)},
	})
	if err != nil {
		return fmt.Errorf("votestore: delete: %w", err)
	}
	return nil
}

// DeleteAll implements Store.
func (s *SQLite) DeleteAll(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM kv`, nil); err != nil {
		return fmt.Errorf("votestore: delete all: %w", err)
	}
	return nil
}

func keyText(key Key) string {
	return fmt.Sprintf("%x", key[:])
}
