package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/launchwatch/engine/internal/store"
)

// AlertFeedView displays admissions and position outcomes, newest first.
type AlertFeedView struct {
	list     *tview.List
	events   []store.Event
	maxItems int
}

// NewAlertFeedView creates a new alert feed view.
func NewAlertFeedView() *AlertFeedView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	v := &AlertFeedView{
		list:     list,
		events:   make([]store.Event, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *AlertFeedView) Widget() tview.Primitive {
	return v.list
}

// AddEvent adds a new event to the top of the feed.
func (v *AlertFeedView) AddEvent(ev store.Event) {
	v.events = append([]store.Event{ev}, v.events...)

	if len(v.events) > v.maxItems {
		v.events = v.events[:v.maxItems]
	}

	v.rebuildList()
}

// Refresh redraws the list.
func (v *AlertFeedView) Refresh() {
	v.rebuildList()
}

// rebuildList rebuilds the entire list from events.
func (v *AlertFeedView) rebuildList() {
	v.list.Clear()

	if len(v.events) == 0 {
		v.list.AddItem("No alerts yet", "", 0, nil)
		v.list.SetTitle(" Alerts ")
		return
	}

	for _, ev := range v.events {
		mainText, secondaryText := formatEvent(ev)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" Alerts (%d) ", len(v.events)))
}

// formatEvent formats an event for display using tview colour markup.
func formatEvent(ev store.Event) (string, string) {
	var icon, color string

	switch ev.Kind {
	case store.EventAdmitted:
		icon, color = "🆕", "green"
	case store.EventTestAdmission:
		icon, color = "🧪", "blue"
	case store.EventGain:
		icon, color = "📈", "yellow"
	case store.EventWon:
		icon, color = "🏆", "gold"
	case store.EventRugged:
		icon, color = "💀", "red"
	default:
		icon, color = "❓", "white"
	}

	timeStr := ev.At.Local().Format("15:04:05")
	mainText := fmt.Sprintf("%s %s [%s]%s[-] %s", timeStr, icon, color, ev.Kind, tokenLabel(ev.Name, ev.Symbol))

	var secondaryText string
	switch ev.Kind {
	case store.EventAdmitted, store.EventTestAdmission:
		secondaryText = fmt.Sprintf("%s | %s | liq $%.0f", truncateAddress(ev.Address), formatPrice(ev.Price), ev.LiquidityUSD)
	default:
		secondaryText = fmt.Sprintf("%s | %s → %s | %+.1f%%",
			truncateAddress(ev.Address), formatPrice(ev.InitialPrice), formatPrice(ev.Price), ev.GainPct)
	}

	return mainText, secondaryText
}

// truncateAddress truncates a token address for display.
func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
