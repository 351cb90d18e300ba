package ui

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/launchwatch/engine/internal/metrics"
)

// FunnelView shows how scanned candidates were disposed of: rejections by
// criterion, then admissions.
type FunnelView struct {
	table *tview.Table
}

// NewFunnelView creates a new scan funnel view.
func NewFunnelView() *FunnelView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Scan Funnel ").SetBorder(true)

	v := &FunnelView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *FunnelView) Widget() tview.Primitive {
	return v.table
}

func (v *FunnelView) setHeader() {
	for col, header := range []string{"Stage", "Count", "Share"} {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}
}

type funnelRow struct {
	label string
	count int64
	color tcell.Color
}

// funnelRows lists seen candidates, rejections by count (most common first)
// and admissions.
func funnelRows(snapshot metrics.Snapshot) []funnelRow {
	rows := []funnelRow{{label: "seen", count: snapshot.CandidatesSeen, color: tcell.ColorWhite}}

	reasons := make([]string, 0, len(snapshot.RejectionsBy))
	for reason := range snapshot.RejectionsBy {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := snapshot.RejectionsBy[reasons[i]], snapshot.RejectionsBy[reasons[j]]
		if ci != cj {
			return ci > cj
		}
		return reasons[i] < reasons[j]
	})
	for _, reason := range reasons {
		rows = append(rows, funnelRow{
			label: "rejected: " + reason,
			count: snapshot.RejectionsBy[reason],
			color: tcell.ColorRed,
		})
	}

	rows = append(rows,
		funnelRow{label: "admitted", count: snapshot.Admissions, color: tcell.ColorGreen},
		funnelRow{label: "test alerts", count: snapshot.TestAdmissions, color: tcell.ColorBlue},
	)
	return rows
}

// Update refreshes the view with new metrics data.
func (v *FunnelView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()
	v.setHeader()

	for i, r := range funnelRows(snapshot) {
		row := i + 1

		share := "-"
		if snapshot.CandidatesSeen > 0 && r.label != "test alerts" {
			share = fmt.Sprintf("%.1f%%", float64(r.count)/float64(snapshot.CandidatesSeen)*100)
		}

		v.table.SetCell(row, 0, tview.NewTableCell(r.label).SetTextColor(r.color))
		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", r.count)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 2, tview.NewTableCell(share).SetAlign(tview.AlignRight))
	}
}
