// Package scanner discovers newly listed tokens and admits the eligible ones.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/launchwatch/engine/internal/config"
	"github.com/launchwatch/engine/internal/detector"
	"github.com/launchwatch/engine/internal/metrics"
	"github.com/launchwatch/engine/internal/notify"
	"github.com/launchwatch/engine/internal/store"
)

// Provider lists the newest candidates for a chain.
type Provider interface {
	ListCandidates(ctx context.Context, chain string) ([]store.Candidate, error)
}

// Notifier posts admission alerts.
type Notifier interface {
	PostAdmission(ctx context.Context, channelID string, a notify.Admission) (store.AlertRef, error)
}

// Outcome kinds
const (
	OutcomeAdmitted         = "admitted"
	OutcomeRejected         = "rejected"
	OutcomeSkippedChain     = "skipped_chain"
	OutcomeSkippedDuplicate = "skipped_duplicate"
	OutcomeFailed           = "failed"
)

// Outcome is what happened to one candidate in a scan cycle.
type Outcome struct {
	Address string
	Kind    string

	// Reason is the filter's rejection reason for OutcomeRejected
	Reason string

	// Err is set for OutcomeFailed, and for an admission whose alert failed
	Err error
}

// Report summarises one scan cycle.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome

	// Err is set when the provider fetch failed and the cycle was skipped
	Err error
}

// Count returns the number of outcomes of the given kind.
func (r Report) Count(kind string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Scanner polls the provider and admits eligible candidates.
type Scanner struct {
	chain     string
	channelID string
	referral  string
	interval  time.Duration

	provider  Provider
	notifier  Notifier
	filter    *detector.Filter
	ledger    *store.Ledger
	positions *store.PositionStore
	metrics   *metrics.Collector
	events    chan<- store.Event

	// Now is the clock used for age evaluation and timestamps
	Now func() time.Time
}

// New creates a Scanner. collector and events may be nil.
func New(
	cfg *config.Config,
	provider Provider,
	notifier Notifier,
	ledger *store.Ledger,
	positions *store.PositionStore,
	collector *metrics.Collector,
	events chan<- store.Event,
) *Scanner {
	return &Scanner{
		chain:     cfg.TargetChain,
		channelID: cfg.DiscordChannelID,
		referral:  cfg.ReferralURL,
		interval:  cfg.ScanInterval,
		provider:  provider,
		notifier:  notifier,
		filter:    detector.NewFilter(cfg),
		ledger:    ledger,
		positions: positions,
		metrics:   collector,
		events:    events,
		Now:       time.Now,
	}
}

// Run executes a cycle immediately and then on every tick until ctx is done.
// A slow cycle delays the next one instead of overlapping it.
func (s *Scanner) Run(ctx context.Context) {
	slog.Info("scanner_started", "chain", s.chain, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner_stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle fetches candidates once and processes them in provider order.
// A provider failure skips the whole cycle.
func (s *Scanner) RunCycle(ctx context.Context) Report {
	report := Report{Started: s.Now()}
	start := time.Now()

	candidates, err := s.provider.ListCandidates(ctx, s.chain)
	if err != nil {
		slog.Warn("scan_fetch_failed", "chain", s.chain, "error", err)
		report.Err = err
		report.Duration = time.Since(start)
		s.metrics.ObserveScanCycle(report.Duration, true)
		return report
	}

	s.metrics.AddCandidates(len(candidates))
	report.Outcomes = make([]Outcome, 0, len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		o := s.process(ctx, c)
		if o.Kind == OutcomeRejected {
			s.metrics.IncrementRejection(o.Reason)
		}
		report.Outcomes = append(report.Outcomes, o)
	}

	report.Duration = time.Since(start)
	s.metrics.ObserveScanCycle(report.Duration, false)
	s.metrics.SetActivePositions(len(s.positions.Active()))

	slog.Debug("scan_cycle_complete",
		"candidates", len(candidates),
		"admitted", report.Count(OutcomeAdmitted),
		"rejected", report.Count(OutcomeRejected),
		"duplicates", report.Count(OutcomeSkippedDuplicate),
		"duration", report.Duration,
	)
	return report
}

// process runs one candidate through the chain check, the ledger and the filter.
func (s *Scanner) process(ctx context.Context, c store.Candidate) Outcome {
	o := Outcome{Address: c.Address}

	if c.ChainID != s.chain {
		o.Kind = OutcomeSkippedChain
		return o
	}
	if c.Address == "" {
		o.Kind = OutcomeFailed
		o.Err = fmt.Errorf("candidate without address: %w", store.ErrInvalidInput)
		slog.Debug("candidate_invalid", "name", c.Name, "error", o.Err)
		return o
	}
	if s.ledger.Contains(c.Address) {
		o.Kind = OutcomeSkippedDuplicate
		return o
	}

	now := s.Now()
	decision := s.filter.Evaluate(c, now)
	if !decision.Accepted {
		o.Kind = OutcomeRejected
		o.Reason = decision.Reason
		return o
	}

	// Gain and the price rug are relative to the admission price
	if c.PriceUSD <= 0 {
		o.Kind = OutcomeFailed
		o.Err = fmt.Errorf("candidate without price: %w", store.ErrInvalidInput)
		slog.Debug("candidate_invalid", "address", c.Address, "name", c.Name, "error", o.Err)
		return o
	}

	return s.admit(ctx, c, now)
}

// admit claims the ledger entry, posts the alert and creates the Position.
// The ledger is written before the alert goes out so a concurrent cycle
// cannot admit the same token twice.
func (s *Scanner) admit(ctx context.Context, c store.Candidate, now time.Time) Outcome {
	o := Outcome{Address: c.Address, Kind: OutcomeAdmitted}

	if err := s.ledger.Admit(c.Address, now); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			o.Kind = OutcomeSkippedDuplicate
			return o
		}
		o.Kind = OutcomeFailed
		o.Err = err
		return o
	}

	ref, err := s.notifier.PostAdmission(ctx, s.channelID, s.admission(c, now, false))
	if err != nil {
		// The position is still tracked; its follow-ups will be dropped
		slog.Warn("admission_post_failed", "address", c.Address, "name", c.Name, "error", err)
		s.metrics.IncrementNotifyFailure("admission")
		o.Err = err
		ref = store.AlertRef{}
	}

	pos := &store.Position{
		Address:      c.Address,
		Name:         c.Name,
		Symbol:       c.Symbol,
		InitialPrice: c.PriceUSD,
		AlertRef:     ref,
		Status:       store.StatusActive,
		AdmittedAt:   now,
		LastPrice:    c.PriceUSD,
	}
	if err := s.positions.Insert(pos); err != nil {
		slog.Error("position_insert_failed", "address", c.Address, "error", err)
		o.Kind = OutcomeFailed
		o.Err = err
		return o
	}

	s.metrics.IncrementAdmission(false)
	slog.Info("token_admitted",
		"address", c.Address,
		"name", c.Name,
		"price", c.PriceUSD,
		"market_cap", c.MarketCap,
		"liquidity", c.LiquidityUSD,
		"age", c.Age(now).Round(time.Second),
		"alert", ref.MessageID,
	)

	ev := store.NewEvent(store.EventAdmitted, c.Address, c.Name, now)
	ev.Symbol = c.Symbol
	ev.Price = c.PriceUSD
	ev.InitialPrice = c.PriceUSD
	ev.LiquidityUSD = c.LiquidityUSD
	s.publish(ev)

	return o
}

// AdmitTest posts c through the admission alert path marked as a test. It
// neither consults nor writes the ledger and the position store.
func (s *Scanner) AdmitTest(ctx context.Context, c store.Candidate) (store.AlertRef, error) {
	now := s.Now()

	ref, err := s.notifier.PostAdmission(ctx, s.channelID, s.admission(c, now, true))
	if err != nil {
		s.metrics.IncrementNotifyFailure("admission")
		return store.AlertRef{}, fmt.Errorf("post test admission: %w", err)
	}

	s.metrics.IncrementAdmission(true)
	slog.Info("test_admission_posted", "address", c.Address, "alert", ref.MessageID)

	ev := store.NewEvent(store.EventTestAdmission, c.Address, c.Name, now)
	ev.Symbol = c.Symbol
	ev.Price = c.PriceUSD
	ev.InitialPrice = c.PriceUSD
	ev.LiquidityUSD = c.LiquidityUSD
	s.publish(ev)

	return ref, nil
}

func (s *Scanner) admission(c store.Candidate, now time.Time, test bool) notify.Admission {
	return notify.Admission{
		Candidate:   c,
		Age:         c.Age(now),
		ReferralURL: notify.ReferralLink(s.referral, c.Address),
		Test:        test,
	}
}

// publish hands ev to the journal without blocking the cycle.
func (s *Scanner) publish(ev store.Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		slog.Warn("event_channel_full", "kind", ev.Kind, "address", ev.Address)
	}
}

// SyntheticCandidate returns a plausible candidate with a random address for
// the manual test trigger. It passes the default eligibility thresholds.
func SyntheticCandidate(chain string, now time.Time) store.Candidate {
	address := solana.NewWallet().PublicKey().String()
	return store.Candidate{
		ChainID:      chain,
		Address:      address,
		Name:         "Test Token",
		Symbol:       "TEST",
		PriceUSD:     0.000042,
		MarketCap:    42000,
		LiquidityUSD: 12000,
		VolumeH1:     8000,
		ListedAt:     now.Add(-5 * time.Minute),
		Socials: []store.Link{
			{Type: "twitter", URL: "https://x.com/launchwatch"},
		},
		Venue: "pumpfun",
		URL:   "https://dexscreener.com/" + chain + "/" + address,
	}
}
