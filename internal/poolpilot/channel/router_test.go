package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	name  string
	route func(string) bool
	err   error

	mu   sync.Mutex
	sent []string
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) CanRoute(dest string) bool {
	if c.route == nil {
		return true
	}
	return c.route(dest)
}

func (c *recordingChannel) Send(_ context.Context, dest, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, dest)
	return c.err
}

func TestRouter_PicksByKind(t *testing.T) {
	phone := &recordingChannel{name: "sms"}
	email := &recordingChannel{name: "email"}
	r := Router{Phone: phone, Email: email}

	require.NoError(t, r.Send(context.Background(), "+15551234567", "x"))
	require.NoError(t, r.Send(context.Background(), "ops@example.com", "x"))

	assert.Equal(t, []string{"+15551234567"}, phone.sent)
	assert.Equal(t, []string{"ops@example.com"}, email.sent)
	assert.Equal(t, "email", r.ChannelFor("ops@example.com"))
}

func TestRouter_MissingTransport(t *testing.T) {
	r := Router{Phone: &recordingChannel{name: "sms"}}

	assert.False(t, r.CanRoute("ops@example.com"))
	assert.ErrorIs(t, r.Send(context.Background(), "ops@example.com", "x"), ErrNoRoute)
	assert.Empty(t, r.ChannelFor("ops@example.com"))
}

func TestRouter_DelegatesCanRoute(t *testing.T) {
	r := Router{Phone: &recordingChannel{name: "sms", route: func(string) bool { return false }}}

	assert.False(t, r.CanRoute("+15551234567"))
}

func TestRateLimited_Paces(t *testing.T) {
	inner := &recordingChannel{name: "sms"}
	ch := NewRateLimited(inner, 20, 1)

	start := time.Now()
	for range 3 {
		require.NoError(t, ch.Send(context.Background(), "+15551234567", "x"))
	}
	// Burst of one, then two waits of ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, inner.sent, 3)
	assert.Equal(t, "sms", ch.Name())
}

func TestRateLimited_DisabledReturnsInner(t *testing.T) {
	inner := &recordingChannel{name: "sms"}
	assert.Same(t, Channel(inner), NewRateLimited(inner, 0, 0))
}

func TestRateLimited_ContextCancelled(t *testing.T) {
	ch := NewRateLimited(&recordingChannel{name: "sms"}, 0.001, 1)
	require.NoError(t, ch.Send(context.Background(), "+1", "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, ch.Send(ctx, "+1", "x"))
}

func TestInstrumented_CountsOutcomes(t *testing.T) {
	ok := NewInstrumented(&recordingChannel{name: "test-ok"})
	bad := NewInstrumented(&recordingChannel{name: "test-bad", err: assert.AnError})

	require.NoError(t, ok.Send(context.Background(), "a", "x"))
	assert.Error(t, bad.Send(context.Background(), "a", "x"))

	assert.Equal(t, float64(1), testutil.ToFloat64(deliveryTotal.WithLabelValues("test-ok", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(deliveryTotal.WithLabelValues("test-bad", "error")))
}

func TestCanRoute_NonRoutableChannel(t *testing.T) {
	assert.False(t, CanRoute(nil, "x"))
	assert.True(t, CanRoute(plainChannel{}, "anything"))
}

type plainChannel struct{}

func (plainChannel) Name() string                               { return "plain" }
func (plainChannel) Send(context.Context, string, string) error { return nil }
