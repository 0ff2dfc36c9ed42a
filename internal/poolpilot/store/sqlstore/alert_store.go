package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	dbpkg "github.com/poolpilot/alerts/internal/db"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// AlertStore reads and acknowledges rows of the alerts table.  Reads go
// straight to the pool; writes are serialized through the db.Worker.
type AlertStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	sb     sq.StatementBuilderType
	mode   types.KeyMode
}

func NewAlertStore(db *sql.DB, writer *dbpkg.Worker, dialect dbpkg.Dialect, mode types.KeyMode) *AlertStore {
	if mode == "" {
		mode = types.KeyModeID
	}
	return &AlertStore{db: db, writer: writer, sb: dialect.Builder(), mode: mode}
}

var selectColumns = []string{
	"id", "system_id", "snapshot_ts_ms", "alert_type", "system_name",
	"alert_summary", "classification", "agency_name", "alert_phone", "alert_email",
	"detected_at_ms", "acknowledged_at_ms", "claimed_at_ms",
}

// pending matches rows not yet acknowledged.  A blank summary counts as
// missing: there is nothing to tell the recipient.
var pending = sq.And{
	sq.Eq{"acknowledged_at_ms": nil},
	sq.NotEq{"alert_summary": nil},
	sq.NotEq{"alert_summary": ""},
}

func (s *AlertStore) SelectPending(ctx context.Context, q store.SelectQuery) ([]types.AlertRecord, error) {
	sel := s.sb.Select(selectColumns...).From("alerts").Where(pending)

	if len(q.AcceptedClassifications) > 0 {
		sel = sel.Where(sq.Eq{"classification": q.AcceptedClassifications})
	}
	if !q.DetectedSince.IsZero() {
		sel = sel.Where(sq.GtOrEq{"detected_at_ms": q.DetectedSince.UTC().UnixMilli()})
	}
	if !q.ClaimStaleBefore.IsZero() {
		sel = sel.Where(sq.Or{
			sq.Eq{"claimed_at_ms": nil},
			sq.Lt{"claimed_at_ms": q.ClaimStaleBefore.UTC().UnixMilli()},
		})
	}

	order := []string{"detected_at_ms ASC"}
	for _, c := range keyColumns(s.mode) {
		order = append(order, c+" ASC")
	}

	query, args, err := sel.OrderBy(order...).ToSql()
	if err != nil {
		return nil, fmt.Errorf("SelectPending build: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SelectPending query: %w", err)
	}
	defer rows.Close()

	var out []types.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("SelectPending scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectPending rows: %w", err)
	}
	return out, nil
}

func scanAlert(rows *sql.Rows) (types.AlertRecord, error) {
	var (
		id, systemID, alertType, systemName string
		snapshotMs, detectedMs              int64
		summary, classification, agency     sql.NullString
		phone, email                        sql.NullString
		ackMs, claimMs                      sql.NullInt64
	)
	if err := rows.Scan(
		&id, &systemID, &snapshotMs, &alertType, &systemName,
		&summary, &classification, &agency, &phone, &email,
		&detectedMs, &ackMs, &claimMs,
	); err != nil {
		return types.AlertRecord{}, err
	}

	snapshot := time.UnixMilli(snapshotMs).UTC()
	rec := types.AlertRecord{
		Key: types.AlertKey{
			ID:         id,
			SystemID:   systemID,
			SnapshotAt: snapshot,
			AlertType:  alertType,
		},
		SystemName:     systemName,
		AlertType:      alertType,
		Summary:        summary.String,
		Classification: classification.String,
		AgencyName:     agency.String,
		Contacts:       types.ContactsFrom(phone.String, email.String),
		DetectedAt:     time.UnixMilli(detectedMs).UTC(),
		AcknowledgedAt: msPtr(ackMs),
		ClaimedAt:      msPtr(claimMs),
	}
	if snapshotMs > 0 {
		rec.SnapshotAt = &snapshot
	}
	return rec, nil
}

func msPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// Acknowledge marks exactly keys as processed.  Keys that are already
// acknowledged are left alone, so a retried acknowledgment is harmless.
func (s *AlertStore) Acknowledge(ctx context.Context, keys []types.AlertKey, at time.Time) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	atMs := at.UTC().UnixMilli()

	var updated int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		updated = 0
		for _, chunk := range chunkKeys(keys, maxKeysPerStatement) {
			query, args, err := s.sb.Update("alerts").
				Set("acknowledged_at_ms", atMs).
				Set("claimed_at_ms", nil).
				Where(sq.Eq{"acknowledged_at_ms": nil}).
				Where(keyPredicate(s.mode, chunk)).
				ToSql()
			if err != nil {
				return fmt.Errorf("Acknowledge build: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("Acknowledge update: %w", err)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Claim stamps claimed_at_ms one key at a time so RowsAffected tells which
// claims this caller won.
func (s *AlertStore) Claim(ctx context.Context, keys []types.AlertKey, at, staleBefore time.Time) ([]types.AlertKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	atMs := at.UTC().UnixMilli()
	staleMs := staleBefore.UTC().UnixMilli()

	var claimed []types.AlertKey
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		claimed = claimed[:0]
		for _, k := range keys {
			query, args, err := s.sb.Update("alerts").
				Set("claimed_at_ms", atMs).
				Where(sq.Eq{"acknowledged_at_ms": nil}).
				Where(sq.Or{
					sq.Eq{"claimed_at_ms": nil},
					sq.Lt{"claimed_at_ms": staleMs},
				}).
				Where(keyPredicate(s.mode, []types.AlertKey{k})).
				ToSql()
			if err != nil {
				return fmt.Errorf("Claim build: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("Claim update %s: %w", k, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				claimed = append(claimed, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *AlertStore) ReleaseClaims(ctx context.Context, keys []types.AlertKey) error {
	if len(keys) == 0 {
		return nil
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, chunk := range chunkKeys(keys, maxKeysPerStatement) {
			query, args, err := s.sb.Update("alerts").
				Set("claimed_at_ms", nil).
				Where(sq.Eq{"acknowledged_at_ms": nil}).
				Where(keyPredicate(s.mode, chunk)).
				ToSql()
			if err != nil {
				return fmt.Errorf("ReleaseClaims build: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("ReleaseClaims update: %w", err)
			}
		}
		return nil
	})
}
