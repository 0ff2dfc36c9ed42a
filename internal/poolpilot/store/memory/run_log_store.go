package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
)

type RunLogStore struct {
	mu   sync.RWMutex
	runs []store.RunRecord
}

func NewRunLogStore() *RunLogStore {
	return &RunLogStore{}
}

func (s *RunLogStore) RecordRun(_ context.Context, rec store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = rec.StartedAt
	}
	s.runs = append(s.runs, rec)
	return nil
}

func (s *RunLogStore) RecentRuns(_ context.Context, limit int) ([]store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]store.RunRecord, len(s.runs))
	copy(out, s.runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RunLogStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.runs[:0]
	var n int64
	for _, r := range s.runs {
		if r.StartedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.runs = kept
	return n, nil
}
