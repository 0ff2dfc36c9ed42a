package channel

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited paces sends through a token bucket so a large backlog does
// not trip provider throttling.
type RateLimited struct {
	inner   Channel
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond sends with the given burst.  A
// non-positive perSecond returns inner unchanged.
func NewRateLimited(inner Channel, perSecond float64, burst int) Channel {
	if perSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) CanRoute(destination string) bool { return CanRoute(r.inner, destination) }

func (r *RateLimited) Send(ctx context.Context, destination, body string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Send(ctx, destination, body)
}
