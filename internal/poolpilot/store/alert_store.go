package store

import (
	"context"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// SelectQuery is the store-level form of a selection policy.  Zero values
// disable the corresponding filter.
type SelectQuery struct {
	// AcceptedClassifications restricts the batch to these classifications.
	// Empty means classification is not filtered.
	AcceptedClassifications []string

	// DetectedSince drops alerts detected before this instant.
	DetectedSince time.Time

	// ClaimStaleBefore, when set, excludes alerts holding a claim stamped
	// at or after this instant.
	ClaimStaleBefore time.Time
}

// AlertStore reads pending alerts and records their processing state.
//
// Implementations must return SelectPending results ordered by detection
// time ascending, and must only ever write acknowledged/claimed markers.
type AlertStore interface {
	SelectPending(ctx context.Context, q SelectQuery) ([]types.AlertRecord, error)

	// Acknowledge stamps exactly the given keys that are still pending and
	// returns how many rows changed.
	Acknowledge(ctx context.Context, keys []types.AlertKey, at time.Time) (int64, error)

	// Claim stamps claimed_at on each pending key whose claim is absent or
	// older than staleBefore, returning the keys this caller now holds.
	Claim(ctx context.Context, keys []types.AlertKey, at, staleBefore time.Time) ([]types.AlertKey, error)

	// ReleaseClaims clears claims on keys that are still pending.
	ReleaseClaims(ctx context.Context, keys []types.AlertKey) error
}
