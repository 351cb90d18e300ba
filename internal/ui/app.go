// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/launchwatch/engine/internal/metrics"
	"github.com/launchwatch/engine/internal/store"
)

// eventBuffer bounds events waiting to be drawn. Events beyond it are
// dropped from the feed only; the journal still records them.
const eventBuffer = 64

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	positions *PositionsView
	alertFeed *AlertFeedView
	funnel    *FunnelView
	stats     *StatsDashboardView

	// Data sources
	store     *store.PositionStore
	collector *metrics.Collector
	events    chan store.Event
	refresh   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application that redraws every refresh.
func NewApp(positions *store.PositionStore, collector *metrics.Collector, refresh time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}

	app := &App{
		app:       tview.NewApplication(),
		store:     positions,
		collector: collector,
		events:    make(chan store.Event, eventBuffer),
		refresh:   refresh,
		ctx:       ctx,
		cancel:    cancel,
	}

	app.positions = NewPositionsView()
	app.alertFeed = NewAlertFeedView()
	app.funnel = NewFunnelView()
	app.stats = NewStatsDashboardView()

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the 4-panel layout.
func (a *App) setupLayout() {
	// Top row: Positions (left) | Alert Feed (right)
	topRow := tview.NewFlex().
		AddItem(a.positions.Widget(), 0, 2, false).
		AddItem(a.alertFeed.Widget(), 0, 1, false)

	// Bottom row: Stats Dashboard (left) | Scan Funnel (right)
	bottomRow := tview.NewFlex().
		AddItem(a.stats.Widget(), 0, 1, false).
		AddItem(a.funnel.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.redraw()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.processEvents()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// Done is closed once the application has been stopped.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// OnEvent queues an engine event for the alert feed. It never blocks: when the
// feed falls behind, the event is skipped.
func (a *App) OnEvent(ev store.Event) {
	select {
	case a.events <- ev:
	default:
	}
}

// processEvents moves queued events into the alert feed.
func (a *App) processEvents() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.events:
			a.app.QueueUpdateDraw(func() {
				a.alertFeed.AddEvent(ev)
			})
		}
	}
}

// updateLoop periodically refreshes views with position and metrics data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.redraw()
		}
	}
}

// redraw refreshes every view from current state.
func (a *App) redraw() {
	snapshot := a.collector.Snapshot()
	positions := a.store.All()
	now := time.Now()

	a.app.QueueUpdateDraw(func() {
		a.positions.Update(positions, now)
		a.alertFeed.Refresh()
		a.funnel.Update(snapshot)
		a.stats.Update(snapshot, now)
	})
}
