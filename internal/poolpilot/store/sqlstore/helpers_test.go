package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dbpkg "github.com/poolpilot/alerts/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the production
// schema.  The connection is closed automatically when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the database alive while the pool cycles its
	// single connection.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:sqlstore_%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping())
	require.NoError(t, dbpkg.Migrate(context.Background(), conn, dbpkg.DialectSQLite))

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed at test end.
func newTestWriter(t *testing.T, conn *sql.DB) *dbpkg.Worker {
	t.Helper()

	w := dbpkg.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

type alertRow struct {
	id             string
	systemID       string
	snapshot       time.Time
	alertType      string
	summary        any
	classification any
	phone          any
	email          any
	detected       time.Time
	acknowledged   any
}

func insertAlert(t *testing.T, conn *sql.DB, r alertRow) {
	t.Helper()

	if r.systemID == "" {
		r.systemID = "sys-" + r.id
	}
	if r.alertType == "" {
		r.alertType = "ph_high"
	}
	if r.snapshot.IsZero() {
		r.snapshot = r.detected
	}

	_, err := conn.ExecContext(context.Background(), `
INSERT INTO alerts(
  id, system_id, snapshot_ts_ms, alert_type, system_name,
  alert_summary, classification, alert_phone, alert_email,
  detected_at_ms, acknowledged_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		r.id, r.systemID, r.snapshot.UnixMilli(), r.alertType, "Pool "+r.id,
		r.summary, r.classification, r.phone, r.email,
		r.detected.UnixMilli(), r.acknowledged,
	)
	require.NoError(t, err)
}

func ackedAt(t *testing.T, conn *sql.DB, id string) sql.NullInt64 {
	t.Helper()

	var v sql.NullInt64
	err := conn.QueryRowContext(context.Background(),
		`SELECT acknowledged_at_ms FROM alerts WHERE id = ?`, id,
	).Scan(&v)
	require.NoError(t, err)
	return v
}

func claimedAt(t *testing.T, conn *sql.DB, id string) sql.NullInt64 {
	t.Helper()

	var v sql.NullInt64
	err := conn.QueryRowContext(context.Background(),
		`SELECT claimed_at_ms FROM alerts WHERE id = ?`, id,
	).Scan(&v)
	require.NoError(t, err)
	return v
}
