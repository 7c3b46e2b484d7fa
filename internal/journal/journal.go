// Package journal keeps a local record of every attempted CLI operation.
// The remote repository history only shows successful saves; the journal
// additionally captures failed and rejected attempts, which makes "why did
// my checkin disappear" answerable locally. Purely diagnostic: the
// authoritative audit trail remains the repository history.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"pdm-go/internal/journal/migrations"
)

// Entry is one journaled operation attempt.
type Entry struct {
	ID         string
	Operation  string
	Actor      string
	Target     string
	Status     string // "success" or "error"
	ErrorKind  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Journal is a sqlite-backed operation journal.
type Journal struct {
	db *sql.DB
}

// Open opens (creating and migrating if needed) the journal database at
// path. path may be ":memory:" for tests.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal database: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record inserts one finished entry.
func (j *Journal) Record(e Entry) error {
	_, err := j.db.Exec(
		`INSERT INTO operations (id, operation, actor, target, status, error_kind, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Operation, e.Actor, e.Target, e.Status, e.ErrorKind, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (j *Journal) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, operation, actor, target, status, error_kind, started_at, finished_at
		 FROM operations ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Actor, &e.Target, &e.Status, &e.ErrorKind, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading operation rows: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("closing journal database: %w", err)
	}
	return nil
}
