// Package store is the durable state layer: events, memories, session
// summaries, the session map, the cooldown table, and the full-text
// index, all in one sqlite file written with write-ahead logging.
// Grounded on the teacher's internal/persistence/store.go: single
// *sql.DB with SetMaxOpenConns(1), a schema_migrations ledger, and a
// retryOnBusy wrapper around the few multi-statement transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the single shared *sql.DB for one remem data directory.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path, applies
// pragmas, and runs schema migrations. path must not be empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection for callers (e.g. tests) that
// need to run ad-hoc diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// retryOnBusy retries f when sqlite reports BUSY or LOCKED, with
// exponential backoff and jitter, on top of the driver's own
// busy_timeout. Used for the handful of multi-statement transactions
// where two short-lived processes might race on the same file.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 25 * time.Millisecond
	const maxDelay = 400 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay/2) + 1))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}
