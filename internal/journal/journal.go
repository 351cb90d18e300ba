// Package journal records admission and position outcome events to an
// append-only audit trail. The journal is write-only: the engine never reads
// it back, so state still lives for the process lifetime only.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/launchwatch/engine/internal/store"
)

// Writer appends events to a journal backend.
type Writer interface {
	Append(ctx context.Context, ev store.Event) error
	Close() error
}

// record is the serialised form of an event.
type record struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol,omitempty"`
	Price        float64   `json:"price"`
	InitialPrice float64   `json:"initial_price"`
	GainPct      float64   `json:"gain_pct"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	At           time.Time `json:"at"`
}

func newRecord(ev store.Event) record {
	return record{
		ID:           ev.ID,
		Kind:         strings.ToLower(string(ev.Kind)),
		Address:      ev.Address,
		Name:         ev.Name,
		Symbol:       ev.Symbol,
		Price:        ev.Price,
		InitialPrice: ev.InitialPrice,
		GainPct:      ev.GainPct,
		LiquidityUSD: ev.LiquidityUSD,
		At:           ev.At.UTC(),
	}
}

// Tee writes every event to all of its writers.
type Tee []Writer

// Append writes ev to every writer and joins their errors.
func (t Tee) Append(ctx context.Context, ev store.Event) error {
	var errs []error
	for _, w := range t {
		if err := w.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer and joins their errors.
func (t Tee) Close() error {
	var errs []error
	for _, w := range t {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Drain consumes events until ctx is done, appending each to w and passing it
// to every listener. Events still buffered at shutdown are written before it
// returns.
func Drain(ctx context.Context, events <-chan store.Event, w Writer, listeners ...func(store.Event)) {
	handle := func(ev store.Event) {
		// Shutdown must not lose buffered events to a cancelled context
		if err := w.Append(context.WithoutCancel(ctx), ev); err != nil {
			slog.Warn("journal_append_failed", "kind", ev.Kind, "address", ev.Address, "error", err)
		}
		for _, l := range listeners {
			l(ev)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					handle(ev)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			handle(ev)
		}
	}
}
