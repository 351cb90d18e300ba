package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/launchwatch/engine/internal/config"
	"github.com/launchwatch/engine/internal/detector"
	"github.com/launchwatch/engine/internal/ingest"
	"github.com/launchwatch/engine/internal/notify"
	"github.com/launchwatch/engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanTime = time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu      sync.Mutex
	batches [][]store.Candidate
	err     error
	calls   int
}

func (f *fakeProvider) ListCandidates(_ context.Context, _ string) ([]store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	admissions []notify.Admission
	channels   []string
	err        error
	next       int
}

func (f *fakeNotifier) PostAdmission(_ context.Context, channelID string, a notify.Admission) (store.AlertRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admissions = append(f.admissions, a)
	f.channels = append(f.channels, channelID)
	if f.err != nil {
		return store.AlertRef{}, f.err
	}
	f.next++
	return store.AlertRef{ChannelID: channelID, MessageID: "msg-" + string(rune('0'+f.next))}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		TargetChain:      "solana",
		MinMarketCap:     20000,
		MaxMarketCap:     90000,
		MinLiquidity:     1500,
		MinVolume1h:      500,
		MaxAgeMinutes:    60,
		RequireSocials:   true,
		ScanInterval:     10 * time.Second,
		DiscordChannelID: "alerts",
		ReferralURL:      "https://t.me/ref?start=%s",
	}
}

func eligible(address string, ageMinutes int) store.Candidate {
	return store.Candidate{
		ChainID:      "solana",
		Address:      address,
		Name:         "Token " + address,
		Symbol:       "TKN",
		PriceUSD:     0.001,
		MarketCap:    50000,
		LiquidityUSD: 2000,
		VolumeH1:     1000,
		ListedAt:     scanTime.Add(-time.Duration(ageMinutes) * time.Minute),
		Socials:      []store.Link{{Type: "twitter", URL: "https://x.com/t"}},
	}
}

type harness struct {
	scanner   *Scanner
	provider  *fakeProvider
	notifier  *fakeNotifier
	ledger    *store.Ledger
	positions *store.PositionStore
	events    chan store.Event
}

func newHarness(batches ...[]store.Candidate) *harness {
	h := &harness{
		provider:  &fakeProvider{batches: batches},
		notifier:  &fakeNotifier{},
		ledger:    store.NewLedger(),
		positions: store.NewPositionStore(),
		events:    make(chan store.Event, 16),
	}
	h.scanner = New(testConfig(), h.provider, h.notifier, h.ledger, h.positions, nil, h.events)
	h.scanner.Now = func() time.Time { return scanTime }
	return h
}

func TestRunCycle_AdmitsEligibleCandidate(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 10)})

	report := h.scanner.RunCycle(context.Background())
	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[0].Kind)

	pos, err := h.positions.Get("mintA")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, pos.Status)
	assert.Zero(t, pos.HighestGain)
	assert.Equal(t, 0.001, pos.InitialPrice)
	assert.Equal(t, store.AlertRef{ChannelID: "alerts", MessageID: "msg-1"}, pos.AlertRef)
	assert.Equal(t, scanTime, pos.AdmittedAt)
	assert.True(t, h.ledger.Contains("mintA"))

	require.Len(t, h.notifier.admissions, 1)
	a := h.notifier.admissions[0]
	assert.False(t, a.Test)
	assert.Equal(t, 10*time.Minute, a.Age)
	assert.Equal(t, "https://t.me/ref?start=mintA", a.ReferralURL)
	assert.Equal(t, "alerts", h.notifier.channels[0])

	select {
	case ev := <-h.events:
		assert.Equal(t, store.EventAdmitted, ev.Kind)
		assert.Equal(t, "mintA", ev.Address)
		assert.NotEmpty(t, ev.ID)
	default:
		t.Fatal("expected an admitted event")
	}
}

func TestRunCycle_RejectsStaleCandidate(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 61)})

	report := h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, OutcomeRejected, report.Outcomes[0].Kind)
	assert.Equal(t, detector.ReasonAge, report.Outcomes[0].Reason)

	assert.Zero(t, h.positions.Len())
	assert.False(t, h.ledger.Contains("mintA"))
	assert.Empty(t, h.notifier.admissions)
}

func TestRunCycle_IdempotentAdmission(t *testing.T) {
	batch := []store.Candidate{eligible("mintA", 5), eligible("mintA", 5)}
	h := newHarness(batch, batch, batch)

	for i := 0; i < 3; i++ {
		h.scanner.RunCycle(context.Background())
	}

	assert.Len(t, h.notifier.admissions, 1)
	assert.Equal(t, 1, h.positions.Len())
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunCycle_ConcurrentCyclesAdmitOnce(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 5), eligible("mintB", 5)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.scanner.RunCycle(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, h.notifier.admissions, 2)
	assert.Equal(t, 2, h.positions.Len())
}

func TestRunCycle_SkipsOtherChains(t *testing.T) {
	other := eligible("0xabc", 5)
	other.ChainID = "base"
	h := newHarness([]store.Candidate{other, eligible("mintA", 5)})

	report := h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeSkippedChain, report.Outcomes[0].Kind)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[1].Kind)
	assert.False(t, h.ledger.Contains("0xabc"))
}

func TestRunCycle_FetchFailureSkipsCycle(t *testing.T) {
	h := newHarness()
	h.provider.err = ingest.ErrRateLimited

	report := h.scanner.RunCycle(context.Background())
	assert.ErrorIs(t, report.Err, ingest.ErrRateLimited)
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, h.positions.Len())
}

func TestRunCycle_BadCandidateDoesNotAbortCycle(t *testing.T) {
	broken := eligible("", 5)
	h := newHarness([]store.Candidate{broken, eligible("mintA", 5)})

	report := h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeFailed, report.Outcomes[0].Kind)
	assert.ErrorIs(t, report.Outcomes[0].Err, store.ErrInvalidInput)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[1].Kind)
}

func TestRunCycle_UnpricedCandidateNotAdmitted(t *testing.T) {
	unpriced := eligible("mintA", 5)
	unpriced.PriceUSD = 0
	priced := eligible("mintA", 6)
	h := newHarness([]store.Candidate{unpriced, eligible("mintB", 5)}, []store.Candidate{priced})

	report := h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeFailed, report.Outcomes[0].Kind)
	assert.ErrorIs(t, report.Outcomes[0].Err, store.ErrInvalidInput)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[1].Kind)

	assert.False(t, h.ledger.Contains("mintA"), "ledger is not claimed without a price")
	_, err := h.positions.Get("mintA")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, h.notifier.admissions, 1)

	// Once the provider reports a price the token is admitted normally
	report = h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[0].Kind)
	pos, err := h.positions.Get("mintA")
	require.NoError(t, err)
	assert.Equal(t, 0.001, pos.InitialPrice)
}

func TestRunCycle_AlertFailureStillTracks(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 5)})
	h.notifier.err = errors.New("discord down")

	report := h.scanner.RunCycle(context.Background())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, OutcomeAdmitted, report.Outcomes[0].Kind)
	assert.Error(t, report.Outcomes[0].Err)

	pos, err := h.positions.Get("mintA")
	require.NoError(t, err)
	assert.True(t, pos.AlertRef.IsZero())
	assert.True(t, h.ledger.Contains("mintA"))

	// Not retried on the next cycle
	h.scanner.RunCycle(context.Background())
	assert.Len(t, h.notifier.admissions, 1)
}

func TestAdmitTest(t *testing.T) {
	h := newHarness()

	c := SyntheticCandidate("solana", scanTime)
	assert.True(t, ingest.ValidAddress("solana", c.Address))
	assert.True(t, detector.NewFilter(testConfig()).Evaluate(c, scanTime).Accepted)

	ref, err := h.scanner.AdmitTest(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, ref.IsZero())

	require.Len(t, h.notifier.admissions, 1)
	assert.True(t, h.notifier.admissions[0].Test)
	assert.Zero(t, h.ledger.Len())
	assert.Zero(t, h.positions.Len())

	ev := <-h.events
	assert.Equal(t, store.EventTestAdmission, ev.Kind)

	h.notifier.err = notify.ErrUnauthorized
	_, err = h.scanner.AdmitTest(context.Background(), c)
	assert.ErrorIs(t, err, notify.ErrUnauthorized)
}

func TestPublish_DropsWhenFull(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 5), eligible("mintB", 5)})
	h.events = make(chan store.Event, 1)
	h.scanner.events = h.events

	report := h.scanner.RunCycle(context.Background())
	assert.Equal(t, 2, report.Count(OutcomeAdmitted))
	assert.Len(t, h.events, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness([]store.Candidate{eligible("mintA", 5)})
	h.scanner.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.scanner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		h.provider.mu.Lock()
		defer h.provider.mu.Unlock()
		return h.provider.calls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
	assert.Equal(t, 1, h.positions.Len())
}
