package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "github.com/poolpilot/alerts/internal/db"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/store/sqlstore"
)

func TestRunLogStore_RecordAndRecent(t *testing.T) {
	conn := openTestDB(t)
	s := sqlstore.NewRunLogStore(conn, newTestWriter(t, conn), dbpkg.DialectSQLite)
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, store.RunRecord{
		RunID: "r1", Source: "http", StartedAt: base, FinishedAt: base.Add(time.Second),
		Sent: 2, Skipped: 1, Acknowledged: 2,
	}))
	require.NoError(t, s.RecordRun(ctx, store.RunRecord{
		RunID: "r2", Source: "schedule", StartedAt: base.Add(time.Minute),
		Failed: 1, DryRun: true, Error: "select pending: boom",
	}))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r2", runs[0].RunID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, "select pending: boom", runs[0].Error)
	assert.True(t, runs[0].FinishedAt.Equal(runs[0].StartedAt))

	assert.Equal(t, "r1", runs[1].RunID)
	assert.Equal(t, "http", runs[1].Source)
	assert.Equal(t, 2, runs[1].Sent)
	assert.Equal(t, 1, runs[1].Skipped)
	assert.EqualValues(t, 2, runs[1].Acknowledged)
	assert.Empty(t, runs[1].Error)

	runs, err = s.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunLogStore_PruneOlderThan(t *testing.T) {
	conn := openTestDB(t)
	s := sqlstore.NewRunLogStore(conn, newTestWriter(t, conn), dbpkg.DialectSQLite)
	ctx := context.Background()

	for i, id := range []string{"old1", "old2", "new"} {
		start := base.Add(-72 * time.Hour)
		if id == "new" {
			start = base
		}
		require.NoError(t, s.RecordRun(ctx, store.RunRecord{RunID: id, Source: "cli", StartedAt: start.Add(time.Duration(i) * time.Second)}))
	}

	n, err := s.PruneOlderThan(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)
}
