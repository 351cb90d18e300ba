// Package detector holds the admission filter and the rules that move a tracked
// position towards a terminal outcome.
package detector

import (
	"github.com/launchwatch/engine/internal/config"
	"github.com/shopspring/decimal"
)

// Signal types produced by Assess
const (
	SignalNone = ""
	SignalRug  = "RUG"
	SignalGain = "GAIN"
	SignalWin  = "WIN"
)

// Rug reasons
const (
	RugPrice     = "price"
	RugLiquidity = "liquidity"
)

var hundred = decimal.NewFromInt(100)

// Assessment is the verdict for one observation of a position.
type Assessment struct {
	Signal string

	// GainPct is the gain over the initial price, computed for every verdict
	GainPct float64

	// RugReason is set when Signal is SignalRug
	RugReason string
}

// Rules applies the rug, gain and win-ceiling checks.
type Rules struct {
	rugPriceRatio     decimal.Decimal
	rugLiquidityFloor float64
	gainReportFloor   float64
	gainReportStep    float64
	winCeilingPct     float64
}

// NewRules creates Rules from the configured tracking thresholds.
func NewRules(cfg *config.Config) Rules {
	return Rules{
		rugPriceRatio:     decimal.NewFromFloat(cfg.RugPriceRatio),
		rugLiquidityFloor: cfg.RugLiquidityFloor,
		gainReportFloor:   cfg.GainReportFloor,
		gainReportStep:    cfg.GainReportStep,
		winCeilingPct:     cfg.WinCeilingPct,
	}
}

// Assess evaluates the latest price and liquidity of a position.
// The rug check runs first and wins over any gain. A gain above the win
// ceiling is terminal and bypasses the re-report step; otherwise a gain is
// reported only when it reaches the report floor and exceeds the last reported
// peak by more than the step.
func (r Rules) Assess(initialPrice, highestGain, currentPrice, currentLiquidity float64) Assessment {
	gain := GainPct(initialPrice, currentPrice)

	// Check 1: rug by price collapse
	floor := decimal.NewFromFloat(initialPrice).Mul(r.rugPriceRatio)
	if decimal.NewFromFloat(currentPrice).LessThan(floor) {
		return Assessment{Signal: SignalRug, GainPct: gain, RugReason: RugPrice}
	}

	// Check 2: rug by liquidity withdrawal
	if currentLiquidity < r.rugLiquidityFloor {
		return Assessment{Signal: SignalRug, GainPct: gain, RugReason: RugLiquidity}
	}

	// Check 3: win ceiling
	if gain > r.winCeilingPct {
		return Assessment{Signal: SignalWin, GainPct: gain}
	}

	// Check 4: reportable gain
	if gain >= r.gainReportFloor && gain > highestGain+r.gainReportStep {
		return Assessment{Signal: SignalGain, GainPct: gain}
	}

	return Assessment{Signal: SignalNone, GainPct: gain}
}

// GainPct returns (current - initial) / initial × 100 computed in decimal so
// that prices quoted as short decimals give exact percentages. A non-positive
// initial price yields zero.
func GainPct(initial, current float64) float64 {
	if initial <= 0 {
		return 0
	}
	i := decimal.NewFromFloat(initial)
	c := decimal.NewFromFloat(current)
	pct, _ := c.Sub(i).Div(i).Mul(hundred).Float64()
	return pct
}
