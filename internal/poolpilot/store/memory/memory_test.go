package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/store/memory"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id, class string, detected time.Time) types.AlertRecord {
	return types.AlertRecord{
		Key:            types.AlertKey{ID: id, SystemID: "sys-" + id, SnapshotAt: detected, AlertType: "ph_high"},
		SystemName:     "Pool " + id,
		AlertType:      "ph_high",
		Summary:        "pH high",
		Classification: class,
		DetectedAt:     detected,
	}
}

func TestAlertStore_SelectAcknowledge(t *testing.T) {
	s := memory.NewAlertStore(types.KeyModeID)
	s.Add(
		rec("b", "valid", base.Add(time.Minute)),
		rec("a", "valid", base),
		rec("c", "pending", base),
	)
	ctx := context.Background()

	got, err := s.SelectPending(ctx, store.SelectQuery{AcceptedClassifications: []string{"valid"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key.ID)
	assert.Equal(t, "b", got[1].Key.ID)

	n, err := s.Acknowledge(ctx, []types.AlertKey{{ID: "a"}}, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Acknowledge(ctx, []types.AlertKey{{ID: "a"}}, base)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err = s.SelectPending(ctx, store.SelectQuery{AcceptedClassifications: []string{"valid"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Key.ID)
}

func TestAlertStore_SkipsBlankSummary(t *testing.T) {
	s := memory.NewAlertStore(types.KeyModeID)
	blank := rec("blank", "valid", base)
	blank.Summary = ""
	s.Add(blank, rec("ok", "valid", base))

	got, err := s.SelectPending(context.Background(), store.SelectQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Key.ID)
}

func TestAlertStore_CompositeMatch(t *testing.T) {
	s := memory.NewAlertStore(types.KeyModeComposite)
	r := rec("a", "valid", base)
	s.Add(r)

	n, err := s.Acknowledge(context.Background(), []types.AlertKey{{SystemID: "sys-a", SnapshotAt: base, AlertType: "ph_high"}}, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, ok := s.Get(r.Key)
	require.True(t, ok)
	assert.NotNil(t, got.AcknowledgedAt)
}

func TestAlertStore_ClaimRelease(t *testing.T) {
	s := memory.NewAlertStore(types.KeyModeID)
	s.Add(rec("a", "valid", base))
	ctx := context.Background()
	keys := []types.AlertKey{{ID: "a"}}

	got, err := s.Claim(ctx, keys, base, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, keys, got)

	got, err = s.Claim(ctx, keys, base, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.ReleaseClaims(ctx, keys))
	got, err = s.Claim(ctx, keys, base, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestRunLogStore_RecentAndPrune(t *testing.T) {
	s := memory.NewRunLogStore()
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, store.RunRecord{RunID: "old", StartedAt: base.Add(-48 * time.Hour)}))
	require.NoError(t, s.RecordRun(ctx, store.RunRecord{RunID: "new", StartedAt: base}))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)

	n, err := s.PruneOlderThan(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	runs, err = s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)
}
