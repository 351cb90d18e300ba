// Package ingest adapts the DexScreener API into typed candidate records.
package ingest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/launchwatch/engine/internal/store"
)

// tokenProfile is an entry of /token-profiles/latest/v1.
type tokenProfile struct {
	URL          string        `json:"url"`
	ChainID      string        `json:"chainId"`
	TokenAddress string        `json:"tokenAddress"`
	Icon         string        `json:"icon"`
	Header       string        `json:"header"`
	Description  string        `json:"description"`
	Links        []profileLink `json:"links"`
}

type profileLink struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// pair is a DexScreener pair record.
type pair struct {
	ChainID       string    `json:"chainId"`
	DexID         string    `json:"dexId"`
	URL           string    `json:"url"`
	PairAddress   string    `json:"pairAddress"`
	BaseToken     token     `json:"baseToken"`
	QuoteToken    token     `json:"quoteToken"`
	PriceNative   number    `json:"priceNative"`
	PriceUsd      number    `json:"priceUsd"`
	Volume        volume    `json:"volume"`
	Liquidity     liquidity `json:"liquidity"`
	Fdv           number    `json:"fdv"`
	MarketCap     number    `json:"marketCap"`
	PairCreatedAt number    `json:"pairCreatedAt"` // Unix milliseconds
	Info          *pairInfo `json:"info"`
}

type token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type volume struct {
	M5  number `json:"m5"`
	H1  number `json:"h1"`
	H6  number `json:"h6"`
	H24 number `json:"h24"`
}

type liquidity struct {
	Usd   number `json:"usd"`
	Base  number `json:"base"`
	Quote number `json:"quote"`
}

type pairInfo struct {
	ImageURL string `json:"imageUrl"`
	Websites []struct {
		Label string `json:"label"`
		URL   string `json:"url"`
	} `json:"websites"`
	Socials []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"socials"`
}

// pairsResponse wraps /latest/dex/tokens/{address}.
type pairsResponse struct {
	SchemaVersion string            `json:"schemaVersion"`
	Pairs         []json.RawMessage `json:"pairs"`
}

// number is a numeric field the provider sends as a JSON number, a numeric
// string or null. Anything else decodes to zero instead of failing the record.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		*n = number(parseFloat(strings.TrimSpace(s)))
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}

// decodeEach unmarshals every element of raw on its own. Malformed elements
// are logged and skipped so they cannot take the rest of the list with them.
func decodeEach[T any](raw []json.RawMessage, kind string) []T {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			slog.Warn("provider_record_malformed", "kind", kind, "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// candidateFromPair converts a pair to a Candidate. fetchedAt stands in for a
// missing creation time so the candidate's age evaluates to zero.
func candidateFromPair(p pair, fetchedAt time.Time) store.Candidate {
	c := store.Candidate{
		ChainID:      p.ChainID,
		Address:      p.BaseToken.Address,
		PairAddress:  p.PairAddress,
		Name:         coalesce(p.BaseToken.Name, p.BaseToken.Symbol, p.BaseToken.Address),
		Symbol:       p.BaseToken.Symbol,
		PriceUSD:     float64(p.PriceUsd),
		MarketCap:    marketCap(float64(p.Fdv), float64(p.MarketCap)),
		LiquidityUSD: float64(p.Liquidity.Usd),
		VolumeH1:     float64(p.Volume.H1),
		ListedAt:     listedAt(int64(p.PairCreatedAt), fetchedAt),
		Venue:        p.DexID,
		URL:          p.URL,
		Socials:      []store.Link{},
	}

	if p.Info != nil {
		c.ImageURL = p.Info.ImageURL
		for _, w := range p.Info.Websites {
			c.Socials = appendLink(c.Socials, store.Link{Type: "website", URL: w.URL})
		}
		for _, s := range p.Info.Socials {
			c.Socials = appendLink(c.Socials, store.Link{Type: coalesce(s.Type, "social"), URL: s.URL})
		}
	}

	return c
}

// candidateFromProfile builds a Candidate from a profile alone. Market fields
// stay zero, which no eligibility profile with positive floors accepts.
func candidateFromProfile(pr tokenProfile, fetchedAt time.Time) store.Candidate {
	c := store.Candidate{
		ChainID:  pr.ChainID,
		Address:  pr.TokenAddress,
		Name:     pr.TokenAddress,
		ListedAt: fetchedAt,
		URL:      pr.URL,
		Socials:  []store.Link{},
	}
	mergeProfile(&c, pr)
	return c
}

// mergeProfile adds the profile's links and icon to c.
func mergeProfile(c *store.Candidate, pr tokenProfile) {
	if c.ImageURL == "" {
		c.ImageURL = pr.Icon
	}
	for _, l := range pr.Links {
		c.Socials = appendLink(c.Socials, store.Link{Type: coalesce(l.Type, strings.ToLower(l.Label), "website"), URL: l.URL})
	}
}

// appendLink appends l unless its URL is empty or already present.
func appendLink(links []store.Link, l store.Link) []store.Link {
	if strings.TrimSpace(l.URL) == "" {
		return links
	}
	for _, existing := range links {
		if existing.URL == l.URL {
			return links
		}
	}
	return append(links, l)
}

// marketCap prefers the fully-diluted valuation, then the market cap, then zero.
func marketCap(fdv, mcap float64) float64 {
	if fdv > 0 {
		return fdv
	}
	if mcap > 0 {
		return mcap
	}
	return 0
}

// listedAt converts a Unix millisecond timestamp, using fallback when absent.
func listedAt(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}

// ValidAddress reports whether address is a plausible token identity on chain.
// Solana addresses must decode to a 32-byte public key.
func ValidAddress(chain, address string) bool {
	if address == "" {
		return false
	}
	if chain != "solana" {
		return true
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseFloat safely parses a string to float64, returning 0 on error.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
