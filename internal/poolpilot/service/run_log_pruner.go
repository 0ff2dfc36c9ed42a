package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
)

// RunLogPruner periodically deletes run-log rows older than a retention
// period.  Alerts themselves are never pruned.
//
// A retention of 0 disables pruning entirely.
type RunLogPruner struct {
	store     store.RunLogStore
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

type PrunerConfig struct {
	// RetentionDays is how many days of run history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs.  Defaults to 6.
	IntervalHours int
}

// NewRunLogPruner creates a pruner but does not start it.
func NewRunLogPruner(s store.RunLogStore, cfg PrunerConfig, clk clock.Clock, logger *zap.Logger) *RunLogPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.New()
	}

	return &RunLogPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		clock:     clk,
		logger:    logger.Named("run-log-pruner"),
		done:      make(chan struct{}),
	}
}

// Start prunes once immediately, then on every interval until ctx is
// cancelled or Stop is called.
func (p *RunLogPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("run log pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("run log pruner started",
		zap.Int("retention_days", int(p.retention.Hours()/24)),
		zap.Duration("interval", p.interval),
	)
}

func (p *RunLogPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *RunLogPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *RunLogPruner) prune(ctx context.Context) {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Warn("run log prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("run log pruned",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
