package db_test

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolpilot/alerts/internal/db"
)

func TestParseDialect(t *testing.T) {
	cases := map[string]db.Dialect{
		"":           db.DialectSQLite,
		"sqlite":     db.DialectSQLite,
		"SQLite3":    db.DialectSQLite,
		"postgres":   db.DialectPostgres,
		"postgresql": db.DialectPostgres,
		" pg ":       db.DialectPostgres,
	}
	for in, want := range cases {
		got, err := db.ParseDialect(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, err := db.ParseDialect("bigquery")
	assert.Error(t, err)
}

func ackUpdate(d db.Dialect) (string, []any, error) {
	return d.Builder().
		Update("alerts").
		Set("acknowledged_at_ms", int64(42)).
		Where(sq.Eq{"acknowledged_at_ms": nil}).
		Where(sq.Eq{"id": []string{"a", "b"}}).
		ToSql()
}

func TestBuilder_SQLiteKeepsQuestionMarks(t *testing.T) {
	query, args, err := ackUpdate(db.DialectSQLite)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE alerts SET acknowledged_at_ms = ? WHERE acknowledged_at_ms IS NULL AND id IN (?,?)", query)
	assert.Equal(t, []any{int64(42), "a", "b"}, args)
}

func TestBuilder_PostgresNumbersPlaceholders(t *testing.T) {
	query, args, err := ackUpdate(db.DialectPostgres)
	require.NoError(t, err)

	assert.Equal(t, "UPDATE alerts SET acknowledged_at_ms = $1 WHERE acknowledged_at_ms IS NULL AND id IN ($2,$3)", query)
	assert.Equal(t, []any{int64(42), "a", "b"}, args)
}
