package channel

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolpilot_delivery_total",
			Help: "Total delivery attempts by channel and status.",
		},
		[]string{"channel", "status"},
	)
	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolpilot_delivery_duration_seconds",
			Help:    "Duration of delivery attempts.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
)

// Instrumented records attempt counts and latency for the wrapped channel.
type Instrumented struct {
	inner Channel
}

func NewInstrumented(inner Channel) *Instrumented {
	return &Instrumented{inner: inner}
}

func (i *Instrumented) Name() string { return i.inner.Name() }

func (i *Instrumented) CanRoute(destination string) bool { return CanRoute(i.inner, destination) }

func (i *Instrumented) Send(ctx context.Context, destination, body string) error {
	name := i.inner.Name()
	start := time.Now()
	err := i.inner.Send(ctx, destination, body)
	deliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	deliveryTotal.WithLabelValues(name, status).Inc()
	return err
}
