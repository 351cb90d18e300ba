package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Embed colours
const (
	colorLive = 0x00C2FF
	colorTest = 0xF1C40F
	colorGain = 0x2ECC71
	colorWin  = 0x9B59B6
	colorRug  = 0xE74C3C
)

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// admissionEmbed renders the admission alert.
func admissionEmbed(a Admission, now time.Time) embed {
	c := a.Candidate

	title := c.Name
	if c.Symbol != "" {
		title = fmt.Sprintf("%s ($%s)", c.Name, c.Symbol)
	}
	color := colorLive
	if a.Test {
		title = "[TEST] " + title
		color = colorTest
	}

	fields := []embedField{
		{Name: "Price", Value: formatPrice(c.PriceUSD), Inline: true},
		{Name: "Market Cap", Value: formatUSD(c.MarketCap), Inline: true},
		{Name: "Liquidity", Value: formatUSD(c.LiquidityUSD), Inline: true},
		{Name: "Volume 1h", Value: formatUSD(c.VolumeH1), Inline: true},
		{Name: "Age", Value: formatAge(a.Age), Inline: true},
		{Name: "Venue", Value: venueLabel(c.Venue), Inline: true},
		{Name: "Address", Value: "`" + c.Address + "`"},
	}

	if len(c.Socials) > 0 {
		links := make([]string, 0, len(c.Socials))
		for _, l := range c.Socials {
			links = append(links, fmt.Sprintf("[%s](%s)", linkLabel(l.Type), l.URL))
		}
		fields = append(fields, embedField{Name: "Socials", Value: strings.Join(links, " | ")})
	}

	if a.ReferralURL != "" {
		fields = append(fields, embedField{Name: "Trade", Value: fmt.Sprintf("[Open](%s)", a.ReferralURL)})
	}

	e := embed{
		Title:     title,
		URL:       c.URL,
		Color:     color,
		Fields:    fields,
		Footer:    &embedFooter{Text: "launchwatch"},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if c.ImageURL != "" {
		e.Thumbnail = &embedImage{URL: c.ImageURL}
	}
	return e
}

// gainEmbed renders a threaded gain alert.
func gainEmbed(u GainUpdate) embed {
	title := fmt.Sprintf("%s is up %s", displayName(u.Name, u.Symbol), formatPct(u.GainPct))
	color := colorGain
	if u.Final {
		title = fmt.Sprintf("%s hit the ceiling at %s", displayName(u.Name, u.Symbol), formatPct(u.GainPct))
		color = colorWin
	}

	return embed{
		Title: title,
		Color: color,
		Fields: []embedField{
			{Name: "Entry", Value: formatPrice(u.InitialPrice), Inline: true},
			{Name: "Now", Value: formatPrice(u.CurrentPrice), Inline: true},
			{Name: "Multiple", Value: formatMultiple(u.InitialPrice, u.CurrentPrice), Inline: true},
		},
	}
}

// rugEmbed renders a threaded rug alert.
func rugEmbed(name string) embed {
	return embed{
		Title:       fmt.Sprintf("%s rugged", name),
		Description: "Price collapsed or liquidity was pulled. Tracking stopped.",
		Color:       colorRug,
	}
}

func displayName(name, symbol string) string {
	if symbol == "" {
		return name
	}
	return "$" + symbol
}

func venueLabel(venue string) string {
	if venue == "" {
		return "unknown"
	}
	return venue
}

func linkLabel(t string) string {
	if t == "" {
		return "Link"
	}
	return strings.ToUpper(t[:1]) + t[1:]
}

// formatPrice renders a USD price without float noise, keeping small prices readable.
func formatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	if p >= 1 {
		return "$" + d.StringFixed(2)
	}
	return "$" + d.String()
}

// formatUSD renders a dollar amount with a K/M/B suffix.
func formatUSD(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func formatPct(pct float64) string {
	return fmt.Sprintf("%.0f%%", pct)
}

func formatMultiple(initial, current float64) string {
	if initial <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2fx", current/initial)
}

// formatAge renders a listing age as minutes, or hours and minutes.
func formatAge(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	mins := int(d.Minutes())
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}
