package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/store/memory"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// alert builds a valid pending record detected offset before base.
func alert(id string, offset time.Duration, phone, email string) types.AlertRecord {
	detected := base.Add(-offset)
	return types.AlertRecord{
		Key:            types.AlertKey{ID: id, SystemID: "sys-" + id, SnapshotAt: detected, AlertType: "ph_high"},
		SystemName:     "Pool " + id,
		AlertType:      "ph_high",
		Summary:        "pH high at " + id,
		Classification: "valid",
		Contacts:       types.ContactsFrom(phone, email),
		DetectedAt:     detected,
	}
}

type sendCall struct {
	dest string
	body string
}

// fakeChannel records sends and fails for destinations listed in failFor.
// Sends to destinations in hangFor wait until their context ends.
type fakeChannel struct {
	name    string
	failFor map[string]error
	hangFor map[string]bool
	route   func(string) bool
	onSend  func(dest string)

	mu    sync.Mutex
	calls []sendCall
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{name: "fake", failFor: map[string]error{}, hangFor: map[string]bool{}}
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) CanRoute(dest string) bool {
	if c.route != nil {
		return c.route(dest)
	}
	return true
}

func (c *fakeChannel) Send(ctx context.Context, dest, body string) error {
	if c.onSend != nil {
		c.onSend(dest)
	}
	c.mu.Lock()
	c.calls = append(c.calls, sendCall{dest: dest, body: body})
	hang, err := c.hangFor[dest], c.failFor[dest]
	c.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (c *fakeChannel) Calls() []sendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sendCall(nil), c.calls...)
}

func (c *fakeChannel) Dests() []string {
	var out []string
	for _, call := range c.Calls() {
		out = append(out, call.dest)
	}
	return out
}

// phoneOnly routes anything that is not an email address.
func phoneOnly(dest string) bool { return !strings.Contains(dest, "@") }

// countingStore counts every call that reaches the wrapped store.
type countingStore struct {
	store.AlertStore
	calls atomic.Int64

	mu    sync.Mutex
	acked [][]types.AlertKey
}

func newCountingStore(mode types.KeyMode) (*countingStore, *memory.AlertStore) {
	m := memory.NewAlertStore(mode)
	return &countingStore{AlertStore: m}, m
}

func (s *countingStore) SelectPending(ctx context.Context, q store.SelectQuery) ([]types.AlertRecord, error) {
	s.calls.Add(1)
	return s.AlertStore.SelectPending(ctx, q)
}

func (s *countingStore) Acknowledge(ctx context.Context, keys []types.AlertKey, at time.Time) (int64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.acked = append(s.acked, append([]types.AlertKey(nil), keys...))
	s.mu.Unlock()
	return s.AlertStore.Acknowledge(ctx, keys, at)
}

func (s *countingStore) Claim(ctx context.Context, keys []types.AlertKey, at, staleBefore time.Time) ([]types.AlertKey, error) {
	s.calls.Add(1)
	return s.AlertStore.Claim(ctx, keys, at, staleBefore)
}

func (s *countingStore) ReleaseClaims(ctx context.Context, keys []types.AlertKey) error {
	s.calls.Add(1)
	return s.AlertStore.ReleaseClaims(ctx, keys)
}

func (s *countingStore) AckBatches() [][]types.AlertKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked
}

func isAcked(m *memory.AlertStore, id string) bool {
	rec, ok := m.Get(types.AlertKey{ID: id})
	return ok && rec.AcknowledgedAt != nil
}

func durationPtr(d time.Duration) *time.Duration { return &d }
