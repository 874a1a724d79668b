package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/mcdev12/sideline/go/internal/sqlutil"
)

// SQLiteKV stores values in a single-file SQLite database.
type SQLiteKV struct {
	db       *sql.DB
	path     string
	maxBytes int
	mu       sync.RWMutex
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for a throwaway store.
func OpenSQLite(path string, maxBytes int) (*SQLiteKV, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxValueBytes
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// SQLite works best with a single connection, and ":memory:" needs one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	if err := applySQLiteMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	return &SQLiteKV{db: db, path: path, maxBytes: maxBytes}, nil
}

// Close closes the database.
func (s *SQLiteKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *SQLiteKV) Path() string {
	return s.path
}

func (s *SQLiteKV) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("database is closed")
	}
	return s.db, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn()
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	if len(value) > s.maxBytes {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		if isSQLiteFull(err) {
			return fmt.Errorf("set %q: %w: %v", key, ErrQuotaExceeded, err)
		}
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// isSQLiteFull reports whether err is SQLite running out of room.
func isSQLiteFull(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrFull || sqliteErr.Code == sqlite3.ErrTooBig
}

// applySQLiteMigrations applies all schema migrations in order.
func applySQLiteMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	migrations := []struct {
		version int
		name    string
		sql     string
	}{
		{1, "create_kv_table", `
			CREATE TABLE IF NOT EXISTS kv (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)
		`},
	}

	for _, m := range migrations {
		err := sqlutil.Run(ctx, db, func(tx *sql.Tx) error {
			var count int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE version = ?`, m.version).Scan(&count); err != nil {
				return fmt.Errorf("could not check migration %d: %w", m.version, err)
			}
			if count > 0 {
				return nil
			}

			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
				return fmt.Errorf("could not record migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
