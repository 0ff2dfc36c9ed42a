package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// AlertStore keeps alerts in process memory.  It backs the "memory"
// database driver and the service tests.
type AlertStore struct {
	mu   sync.RWMutex
	mode types.KeyMode
	rows []types.AlertRecord

	// failSelect / failAck, when set, are returned by the next matching call.
	failSelect error
	failAck    error
}

func NewAlertStore(mode types.KeyMode) *AlertStore {
	if mode == "" {
		mode = types.KeyModeID
	}
	return &AlertStore{mode: mode}
}

// Add inserts records as produced upstream.
func (s *AlertStore) Add(recs ...types.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, recs...)
}

// Get returns a copy of the stored record with the given key.
func (s *AlertStore) Get(k types.AlertKey) (types.AlertRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if s.match(r.Key, k) {
			return r, true
		}
	}
	return types.AlertRecord{}, false
}

// FailSelect makes SelectPending return err until cleared with nil.
func (s *AlertStore) FailSelect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSelect = err
}

// FailAcknowledge makes Acknowledge return err until cleared with nil.
func (s *AlertStore) FailAcknowledge(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAck = err
}

func (s *AlertStore) match(a, b types.AlertKey) bool {
	if s.mode == types.KeyModeComposite {
		return a.SystemID == b.SystemID && a.SnapshotAt.Equal(b.SnapshotAt) && a.AlertType == b.AlertType
	}
	return a.ID == b.ID
}

func (s *AlertStore) SelectPending(_ context.Context, q store.SelectQuery) ([]types.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failSelect != nil {
		return nil, s.failSelect
	}

	var out []types.AlertRecord
	for _, r := range s.rows {
		// Matches the SQL store: NULL and blank summaries are both skipped.
		if r.AcknowledgedAt != nil || r.Summary == "" {
			continue
		}
		if len(q.AcceptedClassifications) > 0 && !slices.Contains(q.AcceptedClassifications, r.Classification) {
			continue
		}
		if !q.DetectedSince.IsZero() && r.DetectedAt.Before(q.DetectedSince) {
			continue
		}
		if !q.ClaimStaleBefore.IsZero() && r.ClaimedAt != nil && !r.ClaimedAt.Before(q.ClaimStaleBefore) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

func (s *AlertStore) Acknowledge(_ context.Context, keys []types.AlertKey, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAck != nil {
		return 0, s.failAck
	}

	var n int64
	stamp := at.UTC()
	for i := range s.rows {
		r := &s.rows[i]
		if r.AcknowledgedAt != nil || !s.containsKey(keys, r.Key) {
			continue
		}
		r.AcknowledgedAt = &stamp
		r.ClaimedAt = nil
		n++
	}
	return n, nil
}

func (s *AlertStore) Claim(_ context.Context, keys []types.AlertKey, at, staleBefore time.Time) ([]types.AlertKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []types.AlertKey
	stamp := at.UTC()
	for _, k := range keys {
		for i := range s.rows {
			r := &s.rows[i]
			if r.AcknowledgedAt != nil || !s.match(r.Key, k) {
				continue
			}
			if r.ClaimedAt != nil && !r.ClaimedAt.Before(staleBefore) {
				continue
			}
			r.ClaimedAt = &stamp
			claimed = append(claimed, k)
		}
	}
	return claimed, nil
}

func (s *AlertStore) ReleaseClaims(_ context.Context, keys []types.AlertKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		r := &s.rows[i]
		if r.AcknowledgedAt == nil && s.containsKey(keys, r.Key) {
			r.ClaimedAt = nil
		}
	}
	return nil
}

func (s *AlertStore) containsKey(keys []types.AlertKey, k types.AlertKey) bool {
	for _, want := range keys {
		if s.match(k, want) {
			return true
		}
	}
	return false
}
