package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/launchwatch/engine/internal/detector"
	"github.com/launchwatch/engine/internal/metrics"
)

// StatsDashboardView displays system health and loop performance.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.Snapshot, now time.Time) {
	v.textView.Clear()
	fmt.Fprint(v.textView, statsText(snapshot, now))
}

func statsText(snapshot metrics.Snapshot, now time.Time) string {
	gwColor := "red"
	switch snapshot.GatewayStatus {
	case "connected":
		gwColor = "green"
	case "connecting", "disabled":
		gwColor = "yellow"
	}

	bufferPct := 0.0
	if snapshot.EventBufferCap > 0 {
		bufferPct = (float64(snapshot.EventBufferUsed) / float64(snapshot.EventBufferCap)) * 100
	}

	return fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
Gateway: [%s]%s[-]
Last scan: %s (%s)
Last track: %s (%s)

[yellow]Loops[-]
Scan cycles: %d (%d failed)
Track cycles: %d
Fetch failures: %d
Notify failures: %d

[yellow]Signals[-]
Active positions: %d
Gains: %d
Wins: %d
Rugs: %d

[yellow]Performance[-]
Event Buffer: %d/%d (%.1f%%)
`,
		formatDuration(snapshot.Uptime),
		gwColor, snapshot.GatewayStatus,
		formatSince(snapshot.LastScan, now), snapshot.LastScanDuration.Round(time.Millisecond),
		formatSince(snapshot.LastTrack, now), snapshot.LastTrackDuration.Round(time.Millisecond),
		snapshot.ScanCycles, snapshot.ScanFailures,
		snapshot.TrackCycles,
		snapshot.FetchFailures,
		snapshot.NotifyFailures,
		snapshot.ActivePositions,
		snapshot.SignalsByType[detector.SignalGain],
		snapshot.SignalsByType[detector.SignalWin],
		snapshot.SignalsByType[detector.SignalRug],
		snapshot.EventBufferUsed,
		snapshot.EventBufferCap,
		bufferPct,
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatSince formats t relative to now as "X ago".
func formatSince(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := now.Sub(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
