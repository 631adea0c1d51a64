// Package sqlite is a durable docstore.Store on top of the pure-Go SQLite
// driver. Every document is a JSON text row keyed by (collection, id); a batch
// commits inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"

	_ "modernc.org/sqlite"
)

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements, one statement per string.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at)`,
	}
}

// Store is the SQLite-backed document store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, stmt := range append(pragmas, Migrations()...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{}, fmt.Errorf("get %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return docstore.Snapshot{Collection: collection, ID: id, Data: []byte(data)}, nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var result []docstore.Snapshot
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("list %s: scanning: %w", collection, err)
		}
		result = append(result, docstore.Snapshot{Collection: collection, ID: id, Data: []byte(data)})
	}
	return result, rows.Err()
}

// ─── Writes ─────────────────────────────────────────────────────────────────

// NewBatch implements docstore.Store.
func (s *Store) NewBatch() docstore.Batch {
	return docstore.NewOpBatch(s.commit)
}

func (s *Store) commit(ctx context.Context, ops []docstore.Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return fmt.Errorf("commit %s/%s: %w", op.Collection, op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op docstore.Op) error {
	switch {
	case op.Kind == docstore.OpDelete:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID)
		return err

	case op.Merge:
		// json_patch implements RFC 7396, the same semantics as docstore.MergePatch.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES (?, ?, json_patch('{}', ?), datetime('now'))
			ON CONFLICT(collection, id) DO UPDATE SET
				data       = json_patch(documents.data, excluded.data),
				updated_at = datetime('now')
		`, op.Collection, op.ID, string(op.Data))
		return err

	default:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES (?, ?, json(?), datetime('now'))
			ON CONFLICT(collection, id) DO UPDATE SET
				data       = excluded.data,
				updated_at = datetime('now')
		`, op.Collection, op.ID, string(op.Data))
		return err
	}
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ docstore.Store = (*Store)(nil)
