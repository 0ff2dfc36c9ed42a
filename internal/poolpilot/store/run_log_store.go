package store

import (
	"context"
	"time"
)

// RunRecord captures one dispatch cycle for the audit log.
type RunRecord struct {
	RunID        string
	Source       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Sent         int
	Skipped      int
	Failed       int
	Acknowledged int64
	DryRun       bool
	Error        string // empty on success
}

// RunLogStore persists run records as an append-only log.
type RunLogStore interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
