package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"
)

// PostgresKV stores values in a Postgres table. Values that are valid JSON
// are mirrored into a jsonb column so stored matches can be queried.
type PostgresKV struct {
	pool     *pgxpool.Pool
	maxBytes int
}

// OpenPostgres connects to dsn and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string, maxBytes int) (*PostgresKV, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxValueBytes
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			document   JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create match_kv table: %w", err)
	}

	return &PostgresKV{pool: pool, maxBytes: maxBytes}, nil
}

// Close releases the connection pool.
func (p *PostgresKV) Close() {
	p.pool.Close()
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM match_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	if len(value) > p.maxBytes {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}

	raw := json.RawMessage(value)
	document := pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0 && json.Valid(raw)}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO match_kv (key, value, document, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, document = EXCLUDED.document, updated_at = now()
	`, key, value, document)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM match_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
