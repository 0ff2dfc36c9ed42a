package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolpilot_dispatch_runs_total",
			Help: "Dispatch runs by outcome (ok, failed, unauthorized).",
		},
		[]string{"outcome"},
	)
	dispatchAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolpilot_dispatch_alerts_total",
			Help: "Alerts processed by dispatch result.",
		},
		[]string{"result"},
	)
	dispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poolpilot_dispatch_run_duration_seconds",
			Help:    "Wall time of a dispatch run.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
