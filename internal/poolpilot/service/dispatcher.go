package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poolpilot/alerts/internal/poolpilot/channel"
	"github.com/poolpilot/alerts/internal/poolpilot/compose"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// State is a dispatch run's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateSelecting
	StateDispatching
	StateAcknowledging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateDispatching:
		return "dispatching"
	case StateAcknowledging:
		return "acknowledging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Policy is the per-deployment dispatch behaviour.
type Policy struct {
	// DeliveryEnabled turns real sends on.  When false every run is a dry run.
	DeliveryEnabled bool

	AcceptedClassifications []string

	// DefaultMaxAge applies when a trigger does not pass its own window.
	// 0 means unbounded.
	DefaultMaxAge time.Duration

	// OverrideDestination, when set, receives every message instead of the
	// record's own contacts, with routing details disclosed in the body.
	OverrideDestination string

	// AckInDryRun acknowledges records in dry runs as if they were sent.
	AckInDryRun bool

	// ClaimMode stamps claimed_at before delivering so overlapping runs do
	// not both send the same record.
	ClaimMode bool
	ClaimTTL  time.Duration

	// DeliveryConcurrency bounds parallel sends; 1 keeps batch order.
	DeliveryConcurrency int

	StoreTimeout time.Duration
	SendTimeout  time.Duration
}

const (
	defaultClaimTTL    = 10 * time.Minute
	defaultSendTimeout = 15 * time.Second
)

// TriggerRequest is an external request for one run.
type TriggerRequest struct {
	Token string

	// MaxAge overrides Policy.DefaultMaxAge when non-nil; a zero value
	// means no age limit.
	MaxAge *time.Duration
	Source string
}

type RunOptions struct {
	MaxAge *time.Duration
	Source string
}

// Dispatcher runs select, deliver and acknowledge cycles.  Runs are
// independent; concurrent calls are allowed and only contend in the store.
type Dispatcher struct {
	alerts   store.AlertStore
	runLog   store.RunLogStore
	channel  channel.Channel
	selector *Selector
	acker    *AckWriter
	composer compose.Composer
	policy   Policy
	token    string

	clock    clock.Clock
	logger   *zap.Logger
	newRunID func() string
	afterRun func(types.RunSummary, error)

	state atomic.Int32
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithRunLog records every run to rl.
func WithRunLog(rl store.RunLogStore) Option {
	return func(d *Dispatcher) { d.runLog = rl }
}

func WithComposer(c compose.Composer) Option {
	return func(d *Dispatcher) { d.composer = c }
}

// WithAfterRun registers fn to be called at the end of every run.
func WithAfterRun(fn func(types.RunSummary, error)) Option {
	return func(d *Dispatcher) { d.afterRun = fn }
}

func WithRunIDFunc(fn func() string) Option {
	return func(d *Dispatcher) { d.newRunID = fn }
}

// NewDispatcher wires a dispatcher.  ch may be nil when delivery is
// disabled; token is the shared secret Trigger checks.
func NewDispatcher(
	alerts store.AlertStore,
	ch channel.Channel,
	policy Policy,
	token string,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	if policy.DeliveryConcurrency < 1 {
		policy.DeliveryConcurrency = 1
	}
	if policy.ClaimTTL <= 0 {
		policy.ClaimTTL = defaultClaimTTL
	}
	if policy.SendTimeout <= 0 {
		policy.SendTimeout = defaultSendTimeout
	}

	d := &Dispatcher{
		alerts:   alerts,
		channel:  ch,
		selector: NewSelector(alerts),
		acker:    NewAckWriter(alerts),
		policy:   policy,
		token:    token,
		clock:    clock.New(),
		logger:   logger.Named("dispatcher"),
		newRunID: uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State reports the phase of the most recent run.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// Trigger authenticates req and then performs one run.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (types.RunSummary, error) {
	if !d.Authorized(req.Token) {
		dispatchRunsTotal.WithLabelValues("unauthorized").Inc()
		d.logger.Warn("rejected trigger", zap.String("source", req.Source))
		return types.RunSummary{}, ErrUnauthorized
	}
	return d.Run(ctx, RunOptions{MaxAge: req.MaxAge, Source: req.Source})
}

// Authorized reports whether token matches the configured secret.
func (d *Dispatcher) Authorized(token string) bool {
	if d.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(d.token)) == 1
}

type result int

const (
	resultPending result = iota
	resultSent
	resultNoRoute
	resultDeliveryFailed
	resultClaimLost
)

// outcome is the per-record bookkeeping for one run.
type outcome struct {
	rec     types.AlertRecord
	targets []string
	result  result
}

// tally accumulates a run's counters.
type tally struct {
	sent, noRoute, deliveryFailed, claimLost int
}

func (t tally) summary(dryRun bool, runID string) types.RunSummary {
	s := types.RunSummary{
		Sent:    t.sent,
		Skipped: t.noRoute + t.deliveryFailed + t.claimLost,
		DryRun:  dryRun,
		Failed:  t.deliveryFailed,
		RunID:   runID,
	}
	reasons := map[string]int{}
	if t.noRoute > 0 {
		reasons[types.ReasonNoRoute] = t.noRoute
	}
	if t.deliveryFailed > 0 {
		reasons[types.ReasonDeliveryFailed] = t.deliveryFailed
	}
	if t.claimLost > 0 {
		reasons[types.ReasonClaimLost] = t.claimLost
	}
	if len(reasons) > 0 {
		s.SkipReasons = reasons
	}
	return s
}

// Run performs one select, deliver, acknowledge cycle.  Only store
// failures fail a run; delivery problems are reported in the summary.
func (d *Dispatcher) Run(ctx context.Context, opt RunOptions) (types.RunSummary, error) {
	runID := d.newRunID()
	started := d.clock.Now().UTC()
	dryRun := !d.policy.DeliveryEnabled
	source := opt.Source
	if source == "" {
		source = types.SourceCLI
	}

	maxAge := d.policy.DefaultMaxAge
	if opt.MaxAge != nil {
		maxAge = *opt.MaxAge
	}

	log := d.logger.With(zap.String("run_id", runID), zap.String("source", source))
	log.Info("dispatch run started",
		zap.Bool("dry_run", dryRun),
		zap.Duration("max_age", maxAge),
	)

	// Selecting: read the batch, decide what is deliverable, optionally claim.
	d.setState(StateSelecting)
	batch, err := d.selectBatch(ctx, started, maxAge)
	if err != nil {
		return d.fail(ctx, log, runID, source, started, dryRun, tally{}, err)
	}

	outcomes := d.classify(batch)
	if err := d.claim(ctx, started, outcomes); err != nil {
		return d.fail(ctx, log, runID, source, started, dryRun, tally{}, err)
	}

	// Dispatching: per-record sends, isolated from one another.
	d.setState(StateDispatching)
	if !dryRun {
		d.deliver(ctx, log, outcomes)
		d.releaseFailed(ctx, log, outcomes)
	}

	var (
		t    tally
		keys []types.AlertKey
	)
	for _, o := range outcomes {
		switch o.result {
		case resultSent:
			t.sent++
			if !dryRun || d.policy.AckInDryRun {
				keys = append(keys, o.rec.Key)
			}
		case resultNoRoute:
			t.noRoute++
		case resultDeliveryFailed:
			t.deliveryFailed++
		case resultClaimLost:
			t.claimLost++
		}
	}

	// Acknowledging: exactly the keys delivered in this run, in batch order.
	d.setState(StateAcknowledging)
	var acked int64
	if len(keys) > 0 {
		sctx, cancel := d.storeContext(ctx)
		acked, err = d.acker.Acknowledge(sctx, keys, d.clock.Now().UTC())
		cancel()
		if err != nil {
			return d.fail(ctx, log, runID, source, started, dryRun, t, err)
		}
	}

	d.setState(StateDone)
	summary := t.summary(dryRun, runID)
	summary.Acknowledged = acked

	dispatchRunsTotal.WithLabelValues("ok").Inc()
	dispatchAlertsTotal.WithLabelValues("sent").Add(float64(t.sent))
	dispatchAlertsTotal.WithLabelValues(types.ReasonNoRoute).Add(float64(t.noRoute))
	dispatchAlertsTotal.WithLabelValues(types.ReasonDeliveryFailed).Add(float64(t.deliveryFailed))
	dispatchAlertsTotal.WithLabelValues(types.ReasonClaimLost).Add(float64(t.claimLost))
	dispatchAlertsTotal.WithLabelValues("acknowledged").Add(float64(acked))

	finished := d.clock.Now().UTC()
	dispatchRunDuration.Observe(finished.Sub(started).Seconds())

	log.Info("dispatch run finished",
		zap.Int("batch", len(batch)),
		zap.Int("sent", summary.Sent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int64("acknowledged", acked),
		zap.Duration("elapsed", finished.Sub(started)),
	)

	d.record(ctx, log, store.RunRecord{
		RunID:        runID,
		Source:       source,
		StartedAt:    started,
		FinishedAt:   finished,
		Sent:         summary.Sent,
		Skipped:      summary.Skipped,
		Failed:       summary.Failed,
		Acknowledged: acked,
		DryRun:       dryRun,
	})
	if d.afterRun != nil {
		d.afterRun(summary, nil)
	}
	return summary, nil
}

func (d *Dispatcher) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.policy.StoreTimeout > 0 {
		return context.WithTimeout(ctx, d.policy.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func (d *Dispatcher) selectBatch(ctx context.Context, now time.Time, maxAge time.Duration) ([]types.AlertRecord, error) {
	p := SelectPolicy{
		AcceptedClassifications: d.policy.AcceptedClassifications,
		MaxAge:                  maxAge,
		Now:                     now,
	}
	if d.policy.ClaimMode {
		p.ClaimTTL = d.policy.ClaimTTL
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()
	return d.selector.Select(sctx, p)
}

// classify marks records without a usable route and picks send targets
// for the rest.  Dry runs only require that a contact exists.
func (d *Dispatcher) classify(batch []types.AlertRecord) []*outcome {
	out := make([]*outcome, len(batch))
	for i, rec := range batch {
		o := &outcome{rec: rec}
		out[i] = o

		if !rec.HasContact() {
			o.result = resultNoRoute
			continue
		}
		if !d.policy.DeliveryEnabled {
			o.result = resultSent
			continue
		}

		if d.policy.OverrideDestination != "" {
			if channel.CanRoute(d.channel, d.policy.OverrideDestination) {
				o.targets = []string{d.policy.OverrideDestination}
			}
		} else {
			for _, c := range rec.Contacts {
				if channel.CanRoute(d.channel, c.Address) {
					o.targets = append(o.targets, c.Address)
				}
			}
		}
		if len(o.targets) == 0 {
			o.result = resultNoRoute
		}
	}
	return out
}

// claim stamps claimed_at on deliverable records.  Records another run
// already holds are skipped as claim_lost.
func (d *Dispatcher) claim(ctx context.Context, now time.Time, outcomes []*outcome) error {
	if !d.policy.ClaimMode || !d.policy.DeliveryEnabled {
		return nil
	}

	var keys []types.AlertKey
	for _, o := range outcomes {
		if o.result == resultPending {
			keys = append(keys, o.rec.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()
	won, err := d.alerts.Claim(sctx, keys, now, now.Add(-d.policy.ClaimTTL))
	if err != nil {
		return &StoreError{Op: "claim", Err: err}
	}

	held := make(map[string]struct{}, len(won))
	for _, k := range won {
		held[k.String()] = struct{}{}
	}
	for _, o := range outcomes {
		if o.result != resultPending {
			continue
		}
		if _, ok := held[o.rec.Key.String()]; !ok {
			o.result = resultClaimLost
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, log *zap.Logger, outcomes []*outcome) {
	var g errgroup.Group
	g.SetLimit(d.policy.DeliveryConcurrency)

	disclose := d.policy.OverrideDestination != ""
	for _, o := range outcomes {
		if o.result != resultPending {
			continue
		}
		g.Go(func() error {
			body := d.composer.Compose(o.rec, disclose)
			if err := d.sendAll(ctx, o.targets, body); err != nil {
				log.Warn("delivery failed",
					zap.String("alert", o.rec.Key.String()),
					zap.Error(err),
				)
				o.result = resultDeliveryFailed
				return nil
			}
			o.result = resultSent
			return nil
		})
	}
	_ = g.Wait()
}

// sendAll sends body to every target and stops at the first failure.
func (d *Dispatcher) sendAll(ctx context.Context, targets []string, body string) error {
	for _, dest := range targets {
		sctx, cancel := context.WithTimeout(ctx, d.policy.SendTimeout)
		err := d.channel.Send(sctx, dest, body)
		cancel()
		if err != nil {
			name := d.channel.Name()
			if r, ok := d.channel.(channel.Router); ok {
				name = r.ChannelFor(dest)
			}
			return &DeliveryError{Channel: name, Destination: dest, Err: err}
		}
	}
	return nil
}

// releaseFailed clears claims on records whose delivery failed so the next
// run can retry them without waiting for the TTL.
func (d *Dispatcher) releaseFailed(ctx context.Context, log *zap.Logger, outcomes []*outcome) {
	if !d.policy.ClaimMode {
		return
	}

	var keys []types.AlertKey
	for _, o := range outcomes {
		if o.result == resultDeliveryFailed {
			keys = append(keys, o.rec.Key)
		}
	}
	if len(keys) == 0 {
		return
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()
	if err := d.alerts.ReleaseClaims(sctx, keys); err != nil {
		log.Warn("release claims failed; claims expire after ttl",
			zap.Int("count", len(keys)),
			zap.Duration("ttl", d.policy.ClaimTTL),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) fail(
	ctx context.Context,
	log *zap.Logger,
	runID, source string,
	started time.Time,
	dryRun bool,
	t tally,
	err error,
) (types.RunSummary, error) {
	d.setState(StateFailed)
	dispatchRunsTotal.WithLabelValues("failed").Inc()

	var se *StoreError
	if errors.As(err, &se) {
		log.Error("dispatch run failed", zap.String("op", se.Op), zap.Error(se.Err))
	} else {
		log.Error("dispatch run failed", zap.Error(err))
	}

	partial := t.summary(dryRun, runID)
	d.record(ctx, log, store.RunRecord{
		RunID:      runID,
		Source:     source,
		StartedAt:  started,
		FinishedAt: d.clock.Now().UTC(),
		Sent:       partial.Sent,
		Skipped:    partial.Skipped,
		Failed:     partial.Failed,
		DryRun:     dryRun,
		Error:      err.Error(),
	})
	if d.afterRun != nil {
		d.afterRun(types.RunSummary{}, err)
	}
	return types.RunSummary{}, err
}

// record appends to the run log.  A failed write is logged and does not
// change the run's result.
func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, rec store.RunRecord) {
	if d.runLog == nil {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.runLog.RecordRun(rctx, rec); err != nil {
		log.Warn("record run failed", zap.Error(err))
	}
}
