package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mintA = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	mintB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var fetchTime = time.Date(2025, 1, 4, 14, 0, 0, 0, time.UTC)

const profilesBody = `[
  {"url":"https://dexscreener.com/solana/a","chainId":"solana","tokenAddress":"` + mintA + `",
   "icon":"https://cdn/a.png","links":[{"type":"twitter","url":"https://x.com/a"},{"label":"Website","url":"https://a.xyz"}]},
  {"url":"https://dexscreener.com/base/0xabc","chainId":"base","tokenAddress":"0xabc","links":[]},
  {"url":"https://dexscreener.com/solana/b","chainId":"solana","tokenAddress":"` + mintB + `","links":[]},
  {"chainId":"solana","tokenAddress":"not-a-key","links":[]}
]`

const tokenPairsBody = `[
  {"chainId":"solana","dexId":"pumpfun","url":"https://dexscreener.com/solana/pa","pairAddress":"pa",
   "baseToken":{"address":"` + mintA + `","name":"Alpha","symbol":"ALP"},
   "priceUsd":"0.00012","volume":{"h1":1000},"liquidity":{"usd":2000},"fdv":50000,"marketCap":40000,
   "pairCreatedAt":1735998600000,
   "info":{"imageUrl":"https://cdn/a-pair.png","socials":[{"type":"twitter","url":"https://x.com/a"}]}},
  {"chainId":"solana","dexId":"raydium","pairAddress":"pa2",
   "baseToken":{"address":"` + mintA + `","name":"Alpha","symbol":"ALP"},"priceUsd":"9"}
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 2*time.Second)
	c.now = func() time.Time { return fetchTime }
	return c
}

func TestListCandidates_MergesProfilesAndPairs(t *testing.T) {
	var pairRequests atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token-profiles/latest/v1":
			w.Write([]byte(profilesBody))
		case strings.HasPrefix(r.URL.Path, "/tokens/v1/solana/"):
			pairRequests.Add(1)
			assert.Equal(t, "/tokens/v1/solana/"+mintA+","+mintB, r.URL.Path)
			w.Write([]byte(tokenPairsBody))
		default:
			http.NotFound(w, r)
		}
	})

	got, err := c.ListCandidates(context.Background(), "solana")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.EqualValues(t, 1, pairRequests.Load())

	alpha := got[0]
	assert.Equal(t, mintA, alpha.Address)
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, "ALP", alpha.Symbol)
	assert.Equal(t, 0.00012, alpha.PriceUSD)
	assert.Equal(t, 50000.0, alpha.MarketCap, "fdv takes priority over market cap")
	assert.Equal(t, 2000.0, alpha.LiquidityUSD)
	assert.Equal(t, 1000.0, alpha.VolumeH1)
	assert.Equal(t, "pumpfun", alpha.Venue)
	assert.Equal(t, time.UnixMilli(1735998600000), alpha.ListedAt)
	assert.Equal(t, "https://cdn/a-pair.png", alpha.ImageURL)
	// twitter appears in both sources and is kept once
	assert.Len(t, alpha.Socials, 2)

	// other chains pass through for the caller to skip
	assert.Equal(t, "base", got[1].ChainID)
	assert.Equal(t, "0xabc", got[1].Address)

	// profiled but no pair yet: zero market data
	beta := got[2]
	assert.Equal(t, mintB, beta.Address)
	assert.Zero(t, beta.MarketCap)
	assert.Zero(t, beta.PriceUSD)
	assert.Empty(t, beta.Socials)
	assert.Equal(t, fetchTime, beta.ListedAt)
}

func TestListCandidates_BatchesAddresses(t *testing.T) {
	var profiles strings.Builder
	profiles.WriteString("[")
	for i := 0; i < 31; i++ {
		if i > 0 {
			profiles.WriteString(",")
		}
		profiles.WriteString(`{"chainId":"solana","tokenAddress":"` + solana.NewWallet().PublicKey().String() + `"}`)
	}
	// a repeated profile collapses to one candidate
	profiles.WriteString(`,{"chainId":"solana","tokenAddress":"` + mintA + `"},{"chainId":"solana","tokenAddress":"` + mintA + `"}]`)

	var pairRequests atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token-profiles/latest/v1" {
			w.Write([]byte(profiles.String()))
			return
		}
		pairRequests.Add(1)
		batch := strings.TrimPrefix(r.URL.Path, "/tokens/v1/solana/")
		assert.LessOrEqual(t, len(strings.Split(batch, ",")), maxTokensPerRequest)
		w.Write([]byte(`[]`))
	})

	got, err := c.ListCandidates(context.Background(), "solana")
	require.NoError(t, err)
	assert.Len(t, got, 32)
	assert.EqualValues(t, 2, pairRequests.Load())
}

func TestListCandidates_FailureFailsCycle(t *testing.T) {
	t.Run("profiles error", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := c.ListCandidates(context.Background(), "solana")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("pairs error", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/token-profiles/latest/v1" {
				w.Write([]byte(profilesBody))
				return
			}
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := c.ListCandidates(context.Background(), "solana")
		require.Error(t, err)
	})

	t.Run("rate limited", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := c.ListCandidates(context.Background(), "solana")
		assert.True(t, errors.Is(err, ErrRateLimited))
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		})
		_, err := c.ListCandidates(context.Background(), "solana")
		require.Error(t, err)
	})
}

func TestLatestPairs(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest/dex/tokens/" + mintA:
			w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":` + tokenPairsBody + `}`))
		default:
			w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
		}
	})

	pairs, err := c.LatestPairs(context.Background(), mintA)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "pa", pairs[0].PairAddress, "provider order is preserved")
	assert.Equal(t, 0.00012, pairs[0].PriceUSD)

	// Missing optional fields default to zero and the fetch time
	assert.Zero(t, pairs[1].LiquidityUSD)
	assert.Zero(t, pairs[1].MarketCap)
	assert.Equal(t, fetchTime, pairs[1].ListedAt)
	assert.NotNil(t, pairs[1].Socials)

	empty, err := c.LatestPairs(context.Background(), mintB)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLatestPairs_ContextCancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.LatestPairs(ctx, mintA)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParserHelpers(t *testing.T) {
	assert.Equal(t, 1.5, parseFloat("1.5"))
	assert.Zero(t, parseFloat(""))
	assert.Zero(t, parseFloat("n/a"))

	assert.Equal(t, 10.0, marketCap(10, 20))
	assert.Equal(t, 20.0, marketCap(0, 20))
	assert.Zero(t, marketCap(0, 0))

	assert.Equal(t, "b", coalesce("", "b", "c"))

	assert.True(t, ValidAddress("solana", mintA))
	assert.False(t, ValidAddress("solana", "not-a-key"))
	assert.False(t, ValidAddress("solana", ""))
	assert.True(t, ValidAddress("base", "0xabc"))
}

func TestListCandidates_MalformedPairKeepsTheRest(t *testing.T) {
	profiles := `[
  {"chainId":"solana","tokenAddress":"` + mintA + `"},
  {"chainId":"solana","tokenAddress":"` + mintB + `"}
]`
	pairs := `[
  {"chainId":"solana","pairAddress":"pa","baseToken":{"address":"` + mintA + `","name":"Alpha"},
   "priceUsd":0.5,"fdv":"50000","liquidity":{"usd":null},"volume":{"h1":"n/a"}},
  {"chainId":"solana","pairAddress":"broken","baseToken":"` + mintB + `"},
  {"chainId":"solana","pairAddress":"pb","baseToken":{"address":"` + mintB + `","name":"Beta"},
   "priceUsd":"0.002","fdv":60000,"liquidity":{"usd":3000},"volume":{"h1":700}}
]`
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token-profiles/latest/v1" {
			w.Write([]byte(profiles))
			return
		}
		w.Write([]byte(pairs))
	})

	got, err := c.ListCandidates(context.Background(), "solana")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Wrongly typed numeric fields are coerced or zeroed, not fatal
	alpha := got[0]
	assert.Equal(t, "pa", alpha.PairAddress)
	assert.Equal(t, 0.5, alpha.PriceUSD)
	assert.Equal(t, 50000.0, alpha.MarketCap)
	assert.Zero(t, alpha.LiquidityUSD)
	assert.Zero(t, alpha.VolumeH1)

	// The structurally broken record is skipped; the next one for the token is used
	beta := got[1]
	assert.Equal(t, "pb", beta.PairAddress)
	assert.Equal(t, 0.002, beta.PriceUSD)
	assert.Equal(t, 3000.0, beta.LiquidityUSD)
}

func TestListCandidates_MalformedProfileSkipped(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token-profiles/latest/v1" {
			w.Write([]byte(`[{"chainId":"solana","tokenAddress":42},{"chainId":"solana","tokenAddress":"` + mintA + `"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	got, err := c.ListCandidates(context.Background(), "solana")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mintA, got[0].Address)
}

func TestLatestPairs_MalformedSecondaryPair(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[
  {"pairAddress":"pa","baseToken":{"address":"` + mintA + `"},"priceUsd":"1.5","liquidity":{"usd":"2500"}},
  {"pairAddress":"pb","baseToken":[1,2,3]}
]}`))
	})

	pairs, err := c.LatestPairs(context.Background(), mintA)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 1.5, pairs[0].PriceUSD)
	assert.Equal(t, 2500.0, pairs[0].LiquidityUSD)
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`12.5`, 12.5},
		{`"12.5"`, 12.5},
		{`" 7 "`, 7},
		{`null`, 0},
		{`"abc"`, 0},
		{`true`, 0},
		{`{"x":1}`, 0},
	}
	for _, tt := range tests {
		var v struct {
			N number `json:"n"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"n":`+tt.in+`}`), &v), tt.in)
		assert.Equal(t, tt.want, float64(v.N), tt.in)
	}
}
