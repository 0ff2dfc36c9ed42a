package service

import (
	"context"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// AckWriter stamps acknowledged_at on an explicit key set.  It never
// re-issues the selection predicate, so rows that arrived after selection
// stay pending.
type AckWriter struct {
	store store.AlertStore
}

func NewAckWriter(s store.AlertStore) *AckWriter {
	return &AckWriter{store: s}
}

// Acknowledge marks keys processed at the given instant and returns the
// number of rows that changed.  Duplicate keys are collapsed.
func (w *AckWriter) Acknowledge(ctx context.Context, keys []types.AlertKey, at time.Time) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{}, len(keys))
	uniq := make([]types.AlertKey, 0, len(keys))
	for _, k := range keys {
		id := k.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, k)
	}

	n, err := w.store.Acknowledge(ctx, uniq, at)
	if err != nil {
		return 0, &StoreError{Op: "acknowledge", Err: err}
	}
	return n, nil
}
