package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// Phone, when set, is used as the contact for the seeded alerts so a
	// developer can watch real messages arrive.
	Phone string
	Now   time.Time
}

// SeedDev inserts a small set of pending alerts for local runs.  Existing
// rows are left untouched, so seeding twice is harmless.
func SeedDev(ctx context.Context, db *sql.DB, dialect Dialect, opt SeedDevOptions) error {
	now := opt.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var phone any
	if opt.Phone != "" {
		phone = opt.Phone
	}

	rows := []struct {
		id, systemID, systemName, alertType, summary, classification string
		phone                                                        any
		email                                                        any
		age                                                          time.Duration
	}{
		{"dev-1", "sys-001", "Backyard Pool", "ph_high", "pH is 8.4, above the 7.8 limit.", "valid", phone, nil, 10 * time.Minute},
		{"dev-2", "sys-002", "Community Spa", "chlorine_low", "Free chlorine dropped to 0.4 ppm.", "valid", nil, nil, 5 * time.Minute},
		{"dev-3", "sys-003", "Lap Pool", "sensor_offline", "No reading for 45 minutes.", "pending", phone, nil, 2 * time.Minute},
	}

	for _, r := range rows {
		ts := now.Add(-r.age).UnixMilli()
		query, args, err := dialect.Builder().
			Insert("alerts").
			Columns(
				"id", "system_id", "snapshot_ts_ms", "alert_type", "system_name",
				"alert_summary", "classification", "alert_phone", "alert_email", "detected_at_ms",
			).
			Values(
				r.id, r.systemID, ts, r.alertType, r.systemName,
				r.summary, r.classification, r.phone, r.email, ts,
			).
			Suffix("ON CONFLICT DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build seed alert %s: %w", r.id, err)
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed alert %s: %w", r.id, err)
		}
	}

	return nil
}
