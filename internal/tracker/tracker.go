// Package tracker advances admitted positions towards a terminal outcome and
// posts threaded gain and rug alerts.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/launchwatch/engine/internal/config"
	"github.com/launchwatch/engine/internal/detector"
	"github.com/launchwatch/engine/internal/metrics"
	"github.com/launchwatch/engine/internal/notify"
	"github.com/launchwatch/engine/internal/store"
)

// Provider fetches the latest pair records for a token, primary first.
type Provider interface {
	LatestPairs(ctx context.Context, address string) ([]store.Candidate, error)
}

// Notifier posts threaded follow-up alerts.
type Notifier interface {
	PostGainUpdate(ctx context.Context, ref store.AlertRef, u notify.GainUpdate) error
	PostRugAlert(ctx context.Context, ref store.AlertRef, name string) error
}

// Result kinds
const (
	ResultUnchanged   = "unchanged"
	ResultGain        = "gain"
	ResultRugged      = "rugged"
	ResultWon         = "won"
	ResultFetchFailed = "fetch_failed"
	ResultNoData      = "no_data"
)

// Result is the outcome of tracking one position for one cycle.
type Result struct {
	Address   string
	Kind      string
	Price     float64
	Liquidity float64
	GainPct   float64
	RugReason string

	// Err is the provider error for ResultFetchFailed
	Err error

	// NotifyErr is set when the follow-up alert could not be delivered
	NotifyErr error
}

// Tracker polls the provider for every active position.
type Tracker struct {
	interval    time.Duration
	concurrency int

	provider  Provider
	notifier  Notifier
	rules     detector.Rules
	positions *store.PositionStore
	metrics   *metrics.Collector
	events    chan<- store.Event

	// Now is the clock used for timestamps
	Now func() time.Time
}

// New creates a Tracker. collector and events may be nil.
func New(
	cfg *config.Config,
	provider Provider,
	notifier Notifier,
	positions *store.PositionStore,
	collector *metrics.Collector,
	events chan<- store.Event,
) *Tracker {
	concurrency := cfg.TrackConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Tracker{
		interval:    cfg.TrackInterval,
		concurrency: concurrency,
		provider:    provider,
		notifier:    notifier,
		rules:       detector.NewRules(cfg),
		positions:   positions,
		metrics:     collector,
		events:      events,
		Now:         time.Now,
	}
}

// Run executes a cycle immediately and then on every tick until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	slog.Info("tracker_started", "interval", t.interval, "concurrency", t.concurrency)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("tracker_stopped")
			return
		case <-ticker.C:
			t.RunCycle(ctx)
		}
	}
}

// RunCycle tracks every active position once. Terminal positions are never
// fetched. Failures are isolated per position.
func (t *Tracker) RunCycle(ctx context.Context) []Result {
	start := time.Now()
	active := t.positions.Active()
	results := make([]Result, len(active))

	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, p := range active {
		g.Go(func() error {
			results[i] = t.track(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	t.metrics.ObserveTrackCycle(duration)
	t.metrics.SetActivePositions(len(t.positions.Active()))

	slog.Debug("track_cycle_complete", "positions", len(active), "duration", duration)
	return results
}

// track fetches the primary record for p and applies the rug, win and gain rules.
func (t *Tracker) track(ctx context.Context, p *store.Position) Result {
	res := Result{Address: p.Address}

	pairs, err := t.provider.LatestPairs(ctx, p.Address)
	if err != nil {
		slog.Warn("position_fetch_failed", "address", p.Address, "name", p.Name, "error", err)
		t.metrics.IncrementFetchFailure()
		res.Kind = ResultFetchFailed
		res.Err = err
		return res
	}
	if len(pairs) == 0 {
		slog.Debug("position_no_data", "address", p.Address)
		res.Kind = ResultNoData
		return res
	}

	primary := pairs[0]
	res.Price = primary.PriceUSD
	res.Liquidity = primary.LiquidityUSD
	now := t.Now()

	a := t.rules.Assess(p.InitialPrice, p.HighestGain, res.Price, res.Liquidity)
	res.GainPct = a.GainPct

	switch a.Signal {
	case detector.SignalRug:
		if !t.apply(p.Address, &res, func(pos *store.Position) {
			pos.Status = store.StatusRugged
			pos.LastPrice = res.Price
			pos.LastCheckedAt = now
		}) {
			return res
		}
		res.Kind = ResultRugged
		res.RugReason = a.RugReason
		t.metrics.IncrementSignal(detector.SignalRug)
		slog.Info("position_rugged",
			"address", p.Address,
			"name", p.Name,
			"reason", a.RugReason,
			"price", res.Price,
			"initial_price", p.InitialPrice,
			"liquidity", res.Liquidity,
		)
		res.NotifyErr = t.deliver(p, "rug", func() error {
			return t.notifier.PostRugAlert(ctx, p.AlertRef, p.Name)
		})
		t.publish(p, store.EventRugged, res, now)

	case detector.SignalWin:
		if !t.apply(p.Address, &res, func(pos *store.Position) {
			pos.Status = store.StatusWon
			pos.HighestGain = math.Max(pos.HighestGain, a.GainPct)
			pos.LastPrice = res.Price
			pos.LastCheckedAt = now
		}) {
			return res
		}
		res.Kind = ResultWon
		t.metrics.IncrementSignal(detector.SignalWin)
		slog.Info("position_won", "address", p.Address, "name", p.Name, "gain_pct", a.GainPct)
		res.NotifyErr = t.deliver(p, "win", func() error {
			return t.notifier.PostGainUpdate(ctx, p.AlertRef, t.gainUpdate(p, res, true))
		})
		t.publish(p, store.EventWon, res, now)

	case detector.SignalGain:
		if !t.apply(p.Address, &res, func(pos *store.Position) {
			pos.HighestGain = a.GainPct
			pos.LastPrice = res.Price
			pos.LastCheckedAt = now
		}) {
			return res
		}
		res.Kind = ResultGain
		t.metrics.IncrementSignal(detector.SignalGain)
		slog.Info("position_gain",
			"address", p.Address,
			"name", p.Name,
			"gain_pct", a.GainPct,
			"previous_peak", p.HighestGain,
		)
		res.NotifyErr = t.deliver(p, "gain", func() error {
			return t.notifier.PostGainUpdate(ctx, p.AlertRef, t.gainUpdate(p, res, false))
		})
		t.publish(p, store.EventGain, res, now)

	default:
		if !t.apply(p.Address, &res, func(pos *store.Position) {
			pos.LastPrice = res.Price
			pos.LastCheckedAt = now
		}) {
			return res
		}
		res.Kind = ResultUnchanged
	}

	return res
}

// apply writes a state change to the store. It reports false when the position
// can no longer be changed, leaving res as unchanged.
func (t *Tracker) apply(address string, res *Result, fn func(*store.Position)) bool {
	if _, err := t.positions.Update(address, fn); err != nil {
		if !errors.Is(err, store.ErrPositionClosed) {
			slog.Error("position_update_failed", "address", address, "error", err)
		}
		res.Kind = ResultUnchanged
		return false
	}
	return true
}

// deliver posts a follow-up alert. Positions without an alert handle drop the
// alert; delivery errors are logged and never retried.
func (t *Tracker) deliver(p *store.Position, kind string, post func() error) error {
	if p.AlertRef.IsZero() {
		slog.Debug("alert_ref_missing", "address", p.Address, "kind", kind)
		return nil
	}
	if err := post(); err != nil {
		slog.Warn("alert_post_failed", "address", p.Address, "kind", kind, "error", err)
		t.metrics.IncrementNotifyFailure(kind)
		return err
	}
	return nil
}

func (t *Tracker) gainUpdate(p *store.Position, res Result, final bool) notify.GainUpdate {
	return notify.GainUpdate{
		Name:         p.Name,
		Symbol:       p.Symbol,
		GainPct:      res.GainPct,
		CurrentPrice: res.Price,
		InitialPrice: p.InitialPrice,
		Final:        final,
	}
}

// publish hands an outcome event to the journal without blocking the cycle.
func (t *Tracker) publish(p *store.Position, kind store.EventKind, res Result, at time.Time) {
	if t.events == nil {
		return
	}

	ev := store.NewEvent(kind, p.Address, p.Name, at)
	ev.Symbol = p.Symbol
	ev.Price = res.Price
	ev.InitialPrice = p.InitialPrice
	ev.GainPct = res.GainPct
	ev.LiquidityUSD = res.Liquidity

	select {
	case t.events <- ev:
	default:
		slog.Warn("event_channel_full", "kind", kind, "address", p.Address)
	}
}
