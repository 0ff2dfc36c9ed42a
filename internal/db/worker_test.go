package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolpilot/alerts/internal/db"
)

func newWorkerDB(t *testing.T) (*sql.DB, *db.Worker) {
	t.Helper()

	conn := openMemoryDB(t)
	_, err := conn.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)`)
	require.NoError(t, err)

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return conn, w
}

func countRows(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestWorker_CommitsOnSuccess(t *testing.T) {
	conn, w := newWorkerDB(t)

	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('a', '1')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, conn))
}

func TestWorker_RollsBackOnError(t *testing.T) {
	conn, w := newWorkerDB(t)
	boom := errors.New("boom")

	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('a', '1')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, conn))
}

func TestWorker_CancelledContext(t *testing.T) {
	_, w := newWorkerDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_DoAfterClose(t *testing.T) {
	_, w := newWorkerDB(t)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, db.ErrWorkerClosed)
}
