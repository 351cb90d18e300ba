package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchwatch/engine/internal/metrics"
	"github.com/launchwatch/engine/internal/store"
)

var now = time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)

func TestSortPositions(t *testing.T) {
	positions := []*store.Position{
		{Address: "won", Status: store.StatusWon, HighestGain: 1000},
		{Address: "old", Status: store.StatusActive, HighestGain: 50, AdmittedAt: now.Add(-time.Hour)},
		{Address: "new", Status: store.StatusActive, HighestGain: 50, AdmittedAt: now},
		{Address: "top", Status: store.StatusActive, HighestGain: 150},
		{Address: "rug", Status: store.StatusRugged},
	}

	sortPositions(positions)

	var order []string
	for _, p := range positions {
		order = append(order, p.Address)
	}
	assert.Equal(t, []string{"top", "new", "old", "won", "rug"}, order)
}

func TestPositionsView_Update(t *testing.T) {
	v := NewPositionsView()
	v.Update([]*store.Position{
		{Address: "a", Name: "Alpha", Symbol: "ALP", Status: store.StatusActive,
			InitialPrice: 1.0, LastPrice: 1.5, HighestGain: 50, LastCheckedAt: now.Add(-30 * time.Second)},
		{Address: "b", Name: "Beta", Symbol: "BET", Status: store.StatusRugged,
			InitialPrice: 2.0, LastPrice: 0.5},
	}, now)

	require.Equal(t, 3, v.table.GetRowCount())
	assert.Equal(t, "Token", v.table.GetCell(0, 0).Text)
	assert.Equal(t, "Alpha ($ALP)", v.table.GetCell(1, 0).Text)
	assert.Equal(t, "+50.0%", v.table.GetCell(1, 4).Text)
	assert.Equal(t, "30s ago", v.table.GetCell(1, 6).Text)
	assert.Equal(t, "RUGGED", v.table.GetCell(2, 1).Text)
	assert.Equal(t, "-75.0%", v.table.GetCell(2, 4).Text)
	assert.Equal(t, "never", v.table.GetCell(2, 6).Text)
}

func TestPositionsView_Empty(t *testing.T) {
	v := NewPositionsView()
	v.Update(nil, now)
	assert.Equal(t, "No positions yet...", v.table.GetCell(1, 0).Text)
}

func TestAlertFeedView_NewestFirstAndCapped(t *testing.T) {
	v := NewAlertFeedView()
	assert.Equal(t, 1, v.list.GetItemCount(), "placeholder item")

	for i := 0; i < 60; i++ {
		ev := store.NewEvent(store.EventGain, "mintA", "Alpha", now.Add(time.Duration(i)*time.Second))
		v.AddEvent(ev)
	}

	assert.Equal(t, 50, v.list.GetItemCount())
	assert.True(t, v.events[0].At.After(v.events[1].At))
}

func TestFormatEvent(t *testing.T) {
	ev := store.NewEvent(store.EventWon, "So11111111111111111111111111111111111111112", "Alpha", now)
	ev.Symbol = "ALP"
	ev.InitialPrice = 0.001
	ev.Price = 0.011
	ev.GainPct = 1000

	mainText, secondary := formatEvent(ev)
	assert.Contains(t, mainText, "WON")
	assert.Contains(t, mainText, "Alpha ($ALP)")
	assert.Contains(t, secondary, "So1111...1112")
	assert.Contains(t, secondary, "+1000.0%")
}

func TestFunnelRows(t *testing.T) {
	rows := funnelRows(metrics.Snapshot{
		CandidatesSeen: 100,
		RejectionsBy:   map[string]int64{"age": 10, "liquidity": 40, "volume": 10},
		Admissions:     5,
		TestAdmissions: 1,
	})

	var labels []string
	for _, r := range rows {
		labels = append(labels, r.label)
	}
	assert.Equal(t, []string{
		"seen",
		"rejected: liquidity",
		"rejected: age",
		"rejected: volume",
		"admitted",
		"test alerts",
	}, labels)
}

func TestStatsText(t *testing.T) {
	text := statsText(metrics.Snapshot{
		GatewayStatus:  "connected",
		ScanCycles:     3,
		ScanFailures:   1,
		SignalsByType:  map[string]int64{"GAIN": 2, "RUG": 1},
		EventBufferCap: 256,
	}, now)

	assert.Contains(t, text, "Gateway: [green]connected[-]")
	assert.Contains(t, text, "Scan cycles: 3 (1 failed)")
	assert.Contains(t, text, "Gains: 2")
	assert.Contains(t, text, "Rugs: 1")
	assert.Contains(t, text, "Last scan: never")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatPrice(0))
	assert.Equal(t, "$1.50", formatPrice(1.5))
	assert.Equal(t, "$0.001200", formatPrice(0.0012))
	assert.Equal(t, "$1.23e-05", formatPrice(0.0000123))

	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2h 5m", formatDuration(125*time.Minute))
	assert.Equal(t, "3h ago", formatSince(now.Add(-3*time.Hour), now))

	assert.Equal(t, "Averyveryverylo... ($X)", tokenLabel("Averyveryverylongname", "X"))
	assert.Equal(t, "short", truncateAddress("short"))
}
