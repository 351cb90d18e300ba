package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/launchwatch/engine/internal/store"
)

// LogSink writes alerts to the log instead of a chat channel. It is used for
// dry runs and hands out random alert handles so threading still works.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// PostAdmission logs the admission and returns a fresh handle.
func (s *LogSink) PostAdmission(_ context.Context, channelID string, a Admission) (store.AlertRef, error) {
	ref := store.AlertRef{ChannelID: channelID, MessageID: uuid.NewString()}
	c := a.Candidate

	slog.Info("alert_admission",
		"test", a.Test,
		"name", c.Name,
		"symbol", c.Symbol,
		"address", c.Address,
		"price", formatPrice(c.PriceUSD),
		"market_cap", formatUSD(c.MarketCap),
		"liquidity", formatUSD(c.LiquidityUSD),
		"age", formatAge(a.Age),
		"venue", venueLabel(c.Venue),
		"socials", len(c.Socials),
		"referral", a.ReferralURL,
		"ref", ref.MessageID,
	)
	return ref, nil
}

// PostGainUpdate logs the update.
func (s *LogSink) PostGainUpdate(_ context.Context, ref store.AlertRef, u GainUpdate) error {
	slog.Info("alert_gain",
		"name", u.Name,
		"gain", formatPct(u.GainPct),
		"price", formatPrice(u.CurrentPrice),
		"entry", formatPrice(u.InitialPrice),
		"final", u.Final,
		"ref", ref.MessageID,
	)
	return nil
}

// PostRugAlert logs the rug.
func (s *LogSink) PostRugAlert(_ context.Context, ref store.AlertRef, name string) error {
	slog.Info("alert_rug", "name", name, "ref", ref.MessageID)
	return nil
}
