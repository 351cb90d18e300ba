// Package store provides data models and the engine's process-lifetime state.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Link is a social, contact or website link published for a token.
type Link struct {
	// Type is the platform ("twitter", "telegram", "website", ...)
	Type string

	// URL is the link target
	URL string
}

// Candidate represents a token listing returned by the market data provider.
// Optional provider fields are decided once by the provider adapter: numeric
// fields are zero when absent and collections are empty.
type Candidate struct {
	// ChainID is the provider's chain identifier (e.g. "solana")
	ChainID string

	// Address is the token address, the token identity within a chain
	Address string

	// PairAddress is the address of the pool the record was taken from
	PairAddress string

	// Name and Symbol are display labels
	Name   string
	Symbol string

	// PriceUSD is the latest price in USD
	PriceUSD float64

	// MarketCap is the fully-diluted valuation, falling back to market cap
	MarketCap float64

	// LiquidityUSD is the pool liquidity in USD
	LiquidityUSD float64

	// VolumeH1 is the one-hour trading volume in USD
	VolumeH1 float64

	// ListedAt is when the pair was created
	ListedAt time.Time

	// Socials holds every social, contact and website link
	Socials []Link

	// Venue is the DEX the pair trades on (e.g. "pumpfun", "raydium")
	Venue string

	// URL is the provider's page for the pair
	URL string

	// ImageURL is the token icon
	ImageURL string
}

// HasSocials reports whether the candidate exposes at least one link.
func (c Candidate) HasSocials() bool {
	return len(c.Socials) > 0
}

// Age returns how long ago the pair was listed relative to now.
// A zero or future listing time yields zero.
func (c Candidate) Age(now time.Time) time.Duration {
	if c.ListedAt.IsZero() {
		return 0
	}
	age := now.Sub(c.ListedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Status is the state of a tracked position.
type Status string

// Position states. RUGGED and WON are terminal.
const (
	StatusActive Status = "ACTIVE"
	StatusRugged Status = "RUGGED"
	StatusWon    Status = "WON"
)

// Terminal reports whether the status ends tracking.
func (s Status) Terminal() bool {
	return s == StatusRugged || s == StatusWon
}

// AlertRef is an opaque handle to a delivered admission alert.
// Follow-up alerts are threaded to it.
type AlertRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the handle was never set.
func (r AlertRef) IsZero() bool {
	return r.MessageID == ""
}

// Position is the tracked state of one admitted token.
type Position struct {
	// Address is the token identity; immutable
	Address string

	// Name and Symbol are display labels; immutable
	Name   string
	Symbol string

	// InitialPrice is the USD price at admission; immutable
	InitialPrice float64

	// AlertRef threads follow-up alerts; zero if the admission alert failed
	AlertRef AlertRef

	// HighestGain is the last reported gain percentage; never decreases
	HighestGain float64

	// Status is ACTIVE until the position is rugged or won
	Status Status

	// AdmittedAt is when the scanner created the position
	AdmittedAt time.Time

	// LastPrice and LastCheckedAt are refreshed by the tracker for display
	LastPrice     float64
	LastCheckedAt time.Time
}

// EventKind identifies a journaled engine event.
type EventKind string

// Event kinds
const (
	EventAdmitted      EventKind = "ADMITTED"
	EventTestAdmission EventKind = "TEST_ADMISSION"
	EventGain          EventKind = "GAIN"
	EventRugged        EventKind = "RUGGED"
	EventWon           EventKind = "WON"
)

// Event is an admission or position outcome published by the scanner and the tracker.
type Event struct {
	ID           string
	Kind         EventKind
	Address      string
	Name         string
	Symbol       string
	Price        float64
	InitialPrice float64
	GainPct      float64
	LiquidityUSD float64
	At           time.Time
}

// NewEvent creates an event with a fresh unique ID.
func NewEvent(kind EventKind, address, name string, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Address: address,
		Name:    name,
		At:      at,
	}
}
