package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// Runner performs one dispatch cycle.  *Dispatcher satisfies it.
type Runner interface {
	Run(ctx context.Context, opt RunOptions) (types.RunSummary, error)
}

type ScheduleConfig struct {
	// Cron is a cron expression; it takes precedence over Interval.
	Cron string

	Interval time.Duration

	// RunOnStart fires one run immediately when the scheduler starts.
	RunOnStart bool
}

// Scheduler triggers runs on a fixed interval or cron expression.  The
// next fire time is computed only after the previous run returns, so runs
// started by one scheduler never overlap.
type Scheduler struct {
	runner     Runner
	expr       *cronexpr.Expression
	interval   time.Duration
	runOnStart bool
	clock      clock.Clock
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(r Runner, cfg ScheduleConfig, clk clock.Clock, logger *zap.Logger) (*Scheduler, error) {
	if clk == nil {
		clk = clock.New()
	}

	s := &Scheduler{
		runner:     r,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		clock:      clk,
		logger:     logger.Named("scheduler"),
		done:       make(chan struct{}),
	}

	switch {
	case cfg.Cron != "":
		expr, err := cronexpr.Parse(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse schedule cron %q: %w", cfg.Cron, err)
		}
		s.expr = expr
	case cfg.Interval <= 0:
		return nil, errors.New("schedule needs a cron expression or a positive interval")
	}
	return s, nil
}

// Next returns the first fire time strictly after t, or the zero time if
// the cron expression has no further matches.
func (s *Scheduler) Next(t time.Time) time.Time {
	if s.expr != nil {
		return s.expr.Next(t)
	}
	return t.Add(s.interval)
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)

	if s.expr != nil {
		s.logger.Info("scheduler started", zap.Time("next", s.Next(s.clock.Now())))
	} else {
		s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	}
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	if s.runOnStart {
		s.fire(ctx)
	}

	for {
		now := s.clock.Now()
		next := s.Next(now)
		if next.IsZero() {
			s.logger.Warn("schedule has no further fire times; stopping")
			return
		}

		timer := s.clock.Timer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx, RunOptions{Source: types.SourceSchedule}); err != nil {
		// The dispatcher already logged the details.
		s.logger.Warn("scheduled run failed", zap.Error(err))
	}
}
