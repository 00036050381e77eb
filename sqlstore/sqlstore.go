// Copyright 2026 The Serbo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore keeps the instances of a serbo Manager in a SQLite
// database, so that they survive a restart of the supervisor.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/serbo"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("Store is closed")

type migration struct {
	version string
	up      string
}

// migrations are applied in order, each at most once.
var migrations = []migration{
	{
		version: "001_instances",
		up: `
CREATE TABLE instances (
    name TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
}

// Store is a serbo.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ serbo.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time is all SQLite offers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func buildDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	abs = strings.ReplaceAll(abs, "\\", "/")
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", abs), nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS migrations (
    version TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL
)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.Query("SELECT version FROM migrations")
	if err != nil {
		return err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.version, err)
		}
	}
	return nil
}

// Put inserts or updates the record for rec.Name.  The creation time of an
// existing record is kept.
func (s *Store) Put(rec serbo.Record) error {
	if s.db == nil {
		return ErrClosed
	}
	created := rec.Created
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
INSERT INTO instances (name, version, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		rec.Name, rec.Version, created.UnixNano(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", rec.Name, err)
	}
	return nil
}

// Delete removes the record for name.  Removing a missing record is not an
// error.
func (s *Store) Delete(name string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec("DELETE FROM instances WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", name, err)
	}
	return nil
}

// Records returns every record, oldest first.
func (s *Store) Records() ([]serbo.Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.Query("SELECT name, version, created_at FROM instances ORDER BY created_at, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []serbo.Record
	for rows.Next() {
		var rec serbo.Record
		var created int64
		if err := rows.Scan(&rec.Name, &rec.Version, &created); err != nil {
			return nil, err
		}
		rec.Created = time.Unix(0, created)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
