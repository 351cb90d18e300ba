package ui

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/launchwatch/engine/internal/detector"
	"github.com/launchwatch/engine/internal/store"
)

// maxPositionRows caps the rows drawn in the positions table.
const maxPositionRows = 20

var positionHeaders = []string{"Token", "Status", "Entry", "Last", "Gain", "Peak", "Checked"}

// PositionsView displays tracked positions, active ones first.
type PositionsView struct {
	table *tview.Table
}

// NewPositionsView creates a new positions view.
func NewPositionsView() *PositionsView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Positions ").SetBorder(true)

	v := &PositionsView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *PositionsView) Widget() tview.Primitive {
	return v.table
}

func (v *PositionsView) setHeader() {
	for col, header := range positionHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}
}

// Update redraws the table from positions.
func (v *PositionsView) Update(positions []*store.Position, now time.Time) {
	v.table.Clear()
	v.setHeader()

	sortPositions(positions)

	active := 0
	for _, p := range positions {
		if p.Status == store.StatusActive {
			active++
		}
	}
	v.table.SetTitle(fmt.Sprintf(" Positions (%d active / %d) ", active, len(positions)))

	if len(positions) == 0 {
		cell := tview.NewTableCell("No positions yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	if len(positions) > maxPositionRows {
		positions = positions[:maxPositionRows]
	}

	for i, p := range positions {
		row := i + 1

		gain := detector.GainPct(p.InitialPrice, p.LastPrice)
		if p.LastPrice == 0 {
			gain = 0
		}
		gainColor := tcell.ColorWhite
		if gain > 0 {
			gainColor = tcell.ColorGreen
		} else if gain < 0 {
			gainColor = tcell.ColorRed
		}

		v.table.SetCell(row, 0, tview.NewTableCell(tokenLabel(p.Name, p.Symbol)).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(string(p.Status)).
			SetTextColor(statusColor(p.Status)))
		v.table.SetCell(row, 2, tview.NewTableCell(formatPrice(p.InitialPrice)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell(formatPrice(p.LastPrice)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%+.1f%%", gain)).
			SetAlign(tview.AlignRight).
			SetTextColor(gainColor))
		v.table.SetCell(row, 5, tview.NewTableCell(fmt.Sprintf("%.0f%%", p.HighestGain)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 6, tview.NewTableCell(formatSince(p.LastCheckedAt, now)).SetAlign(tview.AlignRight))
	}
}

// sortPositions orders active positions first, then by peak gain and
// admission time, newest first.
func sortPositions(positions []*store.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if (a.Status == store.StatusActive) != (b.Status == store.StatusActive) {
			return a.Status == store.StatusActive
		}
		if a.HighestGain != b.HighestGain {
			return a.HighestGain > b.HighestGain
		}
		return a.AdmittedAt.After(b.AdmittedAt)
	})
}

func statusColor(s store.Status) tcell.Color {
	switch s {
	case store.StatusRugged:
		return tcell.ColorRed
	case store.StatusWon:
		return tcell.ColorGold
	default:
		return tcell.ColorGreen
	}
}

// tokenLabel renders "Name ($SYM)", truncated to fit the column.
func tokenLabel(name, symbol string) string {
	if len(name) > 18 {
		name = name[:15] + "..."
	}
	if symbol == "" {
		return name
	}
	return fmt.Sprintf("%s ($%s)", name, symbol)
}

// formatPrice keeps significant digits for sub-cent prices.
func formatPrice(p float64) string {
	switch {
	case p == 0:
		return "-"
	case p < 0.0001:
		return fmt.Sprintf("$%.3g", p)
	case p < 1:
		return fmt.Sprintf("$%.6f", p)
	default:
		return fmt.Sprintf("$%.2f", p)
	}
}
