// Package registry persists which ingest files have been folded into the
// consolidated output, keyed by file name and content fingerprint.
package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the registry state of one file identity.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

// Entry is one registered file identity.
type Entry struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Status      Status    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsMerged  int       `json:"rowsMerged"`
	RowsDropped int       `json:"rowsDropped"`
	Reason      string    `json:"reason,omitempty"`
	RunID       string    `json:"runId"`
	ProcessedAt time.Time `json:"processedAt"`
}

// FileID identifies file content: its name inside the ingest directory plus
// a SHA-256 of its bytes.
type FileID struct {
	Name        string
	Fingerprint string
	Size        int64
}

// Fingerprint hashes the file at path.
func Fingerprint(path string) (FileID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileID{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileID{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return FileID{
		Name:        filepath.Base(path),
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Size:        n,
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS processed_files (
	name         TEXT    NOT NULL,
	fingerprint  TEXT    NOT NULL,
	size         INTEGER NOT NULL,
	status       TEXT    NOT NULL,
	rows_read    INTEGER NOT NULL DEFAULT 0,
	rows_merged  INTEGER NOT NULL DEFAULT 0,
	rows_dropped INTEGER NOT NULL DEFAULT 0,
	reason       TEXT    NOT NULL DEFAULT '',
	run_id       TEXT    NOT NULL,
	processed_at TEXT    NOT NULL,
	PRIMARY KEY (name, fingerprint)
)`

// Registry is the SQLite-backed set of processed file identities.
type Registry struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the registry database at path.
func Open(ctx context.Context, path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}
	// One writer; the pragmas below are per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=FULL`,
		`PRAGMA busy_timeout=5000`,
		schemaSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init registry %s: %w", path, err)
		}
	}
	return &Registry{db: db, path: path}, nil
}

// Close releases the database.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database file location.
func (r *Registry) Path() string {
	return r.path
}

// Lookup returns the entry for id, if registered.
func (r *Registry) Lookup(ctx context.Context, id FileID) (Entry, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, fingerprint, size, status, rows_read, rows_merged, rows_dropped, reason, run_id, processed_at
		FROM processed_files WHERE name = ? AND fingerprint = ?`, id.Name, id.Fingerprint)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", id.Name, err)
	}
	return e, true, nil
}

// Record durably upserts an entry. It returns only after the commit.
func (r *Registry) Record(ctx context.Context, e Entry) error {
	if e.Name == "" || e.Fingerprint == "" {
		return errors.New("registry entry needs name and fingerprint")
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_files
			(name, fingerprint, size, status, rows_read, rows_merged, rows_dropped, reason, run_id, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, fingerprint) DO UPDATE SET
			size = excluded.size,
			status = excluded.status,
			rows_read = excluded.rows_read,
			rows_merged = excluded.rows_merged,
			rows_dropped = excluded.rows_dropped,
			reason = excluded.reason,
			run_id = excluded.run_id,
			processed_at = excluded.processed_at`,
		e.Name, e.Fingerprint, e.Size, string(e.Status),
		e.RowsRead, e.RowsMerged, e.RowsDropped, e.Reason,
		e.RunID, e.ProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Name, err)
	}
	return nil
}

// List returns every entry ordered by name, then processing time.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, fingerprint, size, status, rows_read, rows_merged, rows_dropped, reason, run_id, processed_at
		FROM processed_files ORDER BY name, processed_at`)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list registry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget removes every entry for name so the file is ingested again on the
// next scan. It returns the number of removed entries.
func (r *Registry) Forget(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_files WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", name, err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e           Entry
		status      string
		processedAt string
	)
	if err := s.Scan(&e.Name, &e.Fingerprint, &e.Size, &status,
		&e.RowsRead, &e.RowsMerged, &e.RowsDropped, &e.Reason,
		&e.RunID, &processedAt); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	t, err := time.Parse(time.RFC3339Nano, processedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse processed_at %q: %w", processedAt, err)
	}
	e.ProcessedAt = t
	return e, nil
}
