package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE items (name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := openDB(t)
		err := Run(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO items (name) VALUES ('a'), ('b')`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := openDB(t)
		boom := errors.New("boom")
		err := Run(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, count(t, db))
	})
}
