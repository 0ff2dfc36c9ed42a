package service

import (
	"context"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// SelectPolicy decides which pending alerts make up a batch.
type SelectPolicy struct {
	// AcceptedClassifications limits the batch; empty accepts any.
	AcceptedClassifications []string

	// MaxAge drops alerts detected more than MaxAge before Now; 0 keeps all.
	MaxAge time.Duration

	// ClaimTTL, when positive, hides alerts claimed less than ClaimTTL ago.
	ClaimTTL time.Duration

	Now time.Time
}

type Selector struct {
	store store.AlertStore
}

func NewSelector(s store.AlertStore) *Selector {
	return &Selector{store: s}
}

// Select returns the pending batch ordered by detection time.  Every call
// reads fresh state; nothing is cached between runs.
func (s *Selector) Select(ctx context.Context, p SelectPolicy) ([]types.AlertRecord, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	q := store.SelectQuery{AcceptedClassifications: p.AcceptedClassifications}
	if p.MaxAge > 0 {
		q.DetectedSince = now.Add(-p.MaxAge)
	}
	if p.ClaimTTL > 0 {
		q.ClaimStaleBefore = now.Add(-p.ClaimTTL)
	}

	recs, err := s.store.SelectPending(ctx, q)
	if err != nil {
		return nil, &StoreError{Op: "select", Err: err}
	}
	return recs, nil
}
