// Package index records commits the server has accepted, so later pushes
// stop walking history at them.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed set of known commits.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the index database at path.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS commits (
		hash       TEXT PRIMARY KEY,
		ref        TEXT NOT NULL DEFAULT '',
		indexed_at TEXT NOT NULL
	);
	`)
	return err
}

// IsKnown reports whether hash has been added.
func (s *Store) IsKnown(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM commits WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: lookup %s: %w", hash, err)
	}
	return n > 0, nil
}

// Add records hashes as known. Adding a known hash again is a no-op.
func (s *Store) Add(ctx context.Context, ref string, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return writeBackoff.do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO commits (hash, ref, indexed_at) VALUES (?, ?, ?)
			 ON CONFLICT(hash) DO NOTHING`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, h := range hashes {
			if _, err := stmt.ExecContext(ctx, h, ref, now); err != nil {
				return fmt.Errorf("index: add %s: %w", h, err)
			}
		}
		return tx.Commit()
	})
}

// Count returns the number of known commits.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
