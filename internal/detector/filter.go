package detector

import (
	"time"

	"github.com/launchwatch/engine/internal/config"
	"github.com/launchwatch/engine/internal/store"
)

// Rejection reasons, in evaluation order.
const (
	ReasonMarketCap = "market_cap"
	ReasonLiquidity = "liquidity"
	ReasonVolume    = "volume"
	ReasonAge       = "age"
	ReasonSocials   = "socials"
)

// Decision is the outcome of an eligibility check.
type Decision struct {
	Accepted bool
	// Reason names the first failed criterion; empty when accepted
	Reason string
}

// Filter decides whether a candidate is eligible for admission.
// It holds no state besides its thresholds.
type Filter struct {
	minMarketCap   float64
	maxMarketCap   float64
	minLiquidity   float64
	minVolume1h    float64
	maxAgeMinutes  float64
	requireSocials bool
}

// NewFilter creates a Filter from the configured thresholds.
func NewFilter(cfg *config.Config) *Filter {
	return &Filter{
		minMarketCap:   cfg.MinMarketCap,
		maxMarketCap:   cfg.MaxMarketCap,
		minLiquidity:   cfg.MinLiquidity,
		minVolume1h:    cfg.MinVolume1h,
		maxAgeMinutes:  cfg.MaxAgeMinutes,
		requireSocials: cfg.RequireSocials,
	}
}

// Evaluate checks every criterion against c. Age is measured against now,
// which callers pass as the wall clock at evaluation time.
func (f *Filter) Evaluate(c store.Candidate, now time.Time) Decision {
	// Check 1: market cap band, inclusive on both ends
	if c.MarketCap < f.minMarketCap || c.MarketCap > f.maxMarketCap {
		return reject(ReasonMarketCap)
	}

	// Check 2: liquidity floor
	if c.LiquidityUSD < f.minLiquidity {
		return reject(ReasonLiquidity)
	}

	// Check 3: one-hour volume floor
	if c.VolumeH1 < f.minVolume1h {
		return reject(ReasonVolume)
	}

	// Check 4: staleness
	if c.Age(now).Minutes() > f.maxAgeMinutes {
		return reject(ReasonAge)
	}

	// Check 5: socials
	if f.requireSocials && !c.HasSocials() {
		return reject(ReasonSocials)
	}

	return Decision{Accepted: true}
}

func reject(reason string) Decision {
	return Decision{Reason: reason}
}
