package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	dbpkg "github.com/poolpilot/alerts/internal/db"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
)

type RunLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	sb     sq.StatementBuilderType
}

func NewRunLogStore(db *sql.DB, writer *dbpkg.Worker, dialect dbpkg.Dialect) *RunLogStore {
	return &RunLogStore{db: db, writer: writer, sb: dialect.Builder()}
}

var runColumns = []string{
	"run_id", "trigger_source", "started_at_ms", "finished_at_ms",
	"sent", "skipped", "failed", "acknowledged", "dry_run", "error",
}

func (s *RunLogStore) RecordRun(ctx context.Context, rec store.RunRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = rec.StartedAt
	}

	var dryRun int
	if rec.DryRun {
		dryRun = 1
	}

	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}

	query, args, err := s.sb.Insert("dispatch_runs").
		Columns(runColumns...).
		Values(
			rec.RunID, rec.Source, rec.StartedAt.UTC().UnixMilli(), rec.FinishedAt.UTC().UnixMilli(),
			rec.Sent, rec.Skipped, rec.Failed, rec.Acknowledged, dryRun, errText,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("RecordRun build: %w", err)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("RecordRun insert: %w", err)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunLogStore) RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := s.sb.Select(runColumns...).
		From("dispatch_runs").
		OrderBy("started_at_ms DESC", "run_id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("RecentRuns build: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("RecentRuns query: %w", err)
	}
	defer rows.Close()

	var out []store.RunRecord
	for rows.Next() {
		var (
			rec                 store.RunRecord
			startedMs, finishMs int64
			dryRun              int
			errText             sql.NullString
		)
		if err := rows.Scan(
			&rec.RunID, &rec.Source, &startedMs, &finishMs,
			&rec.Sent, &rec.Skipped, &rec.Failed, &rec.Acknowledged, &dryRun, &errText,
		); err != nil {
			return nil, fmt.Errorf("RecentRuns scan: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedMs).UTC()
		rec.FinishedAt = time.UnixMilli(finishMs).UTC()
		rec.DryRun = dryRun == 1
		rec.Error = errText.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentRuns rows: %w", err)
	}
	return out, nil
}

// PruneOlderThan deletes run rows started before cutoff.  Uses the
// idx_dispatch_runs_time index for the range scan.
func (s *RunLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.sb.Delete("dispatch_runs").
		Where(sq.Lt{"started_at_ms": cutoff.UTC().UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("PruneOlderThan build: %w", err)
	}

	var deleted int64
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
