package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/launchwatch/engine/internal/store"
)

const (
	// DefaultBaseURL is the public DexScreener API
	DefaultBaseURL = "https://api.dexscreener.com"
	// DefaultTimeout bounds every provider request
	DefaultTimeout = 10 * time.Second

	// maxTokensPerRequest is the address limit of /tokens/v1
	maxTokensPerRequest = 30
	// maxErrorBody is how much of a failed response body is kept in errors
	maxErrorBody = 200
)

// ErrRateLimited is returned when the provider answers HTTP 429.
var ErrRateLimited = errors.New("dexscreener: rate limited")

// Client fetches token listings and pair data from DexScreener.
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewClient creates a new DexScreener client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// ListCandidates returns the most recently profiled tokens in provider order.
// Tokens on chain are enriched with their first pair's market data; tokens on
// other chains are returned from their profile alone so the caller can skip
// them. Either request failing fails the whole call; a malformed record only
// drops that record.
func (c *Client) ListCandidates(ctx context.Context, chain string) ([]store.Candidate, error) {
	var rawProfiles []json.RawMessage
	if err := c.getJSON(ctx, "/token-profiles/latest/v1", &rawProfiles); err != nil {
		return nil, fmt.Errorf("fetch token profiles: %w", err)
	}
	profiles := decodeEach[tokenProfile](rawProfiles, "token_profile")

	fetchedAt := c.now()

	// Collect target-chain addresses once each, in profile order
	var addresses []string
	seen := make(map[string]bool)
	for _, pr := range profiles {
		if pr.ChainID != chain || seen[pr.TokenAddress] {
			continue
		}
		if !ValidAddress(chain, pr.TokenAddress) {
			slog.Debug("profile_address_invalid", "chain", chain, "address", pr.TokenAddress)
			continue
		}
		seen[pr.TokenAddress] = true
		addresses = append(addresses, pr.TokenAddress)
	}

	pairs, err := c.fetchTokenPairs(ctx, chain, addresses)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, 0, len(profiles))
	emitted := make(map[string]bool)
	for _, pr := range profiles {
		if pr.ChainID != chain {
			candidates = append(candidates, candidateFromProfile(pr, fetchedAt))
			continue
		}
		if !seen[pr.TokenAddress] || emitted[pr.TokenAddress] {
			continue
		}
		emitted[pr.TokenAddress] = true

		p, ok := pairs[pr.TokenAddress]
		if !ok {
			candidates = append(candidates, candidateFromProfile(pr, fetchedAt))
			continue
		}
		cand := candidateFromPair(p, fetchedAt)
		mergeProfile(&cand, pr)
		candidates = append(candidates, cand)
	}

	return candidates, nil
}

// fetchTokenPairs returns the first pair per base token for addresses.
func (c *Client) fetchTokenPairs(ctx context.Context, chain string, addresses []string) (map[string]pair, error) {
	result := make(map[string]pair, len(addresses))

	for start := 0; start < len(addresses); start += maxTokensPerRequest {
		end := min(start+maxTokensPerRequest, len(addresses))
		path := fmt.Sprintf("/tokens/v1/%s/%s", url.PathEscape(chain), strings.Join(addresses[start:end], ","))

		var raw []json.RawMessage
		if err := c.getJSON(ctx, path, &raw); err != nil {
			return nil, fmt.Errorf("fetch token pairs: %w", err)
		}

		for _, p := range decodeEach[pair](raw, "pair") {
			if _, exists := result[p.BaseToken.Address]; !exists {
				result[p.BaseToken.Address] = p
			}
		}
	}

	return result, nil
}

// LatestPairs returns the current pair records for a token, primary first.
// An unknown token yields an empty slice.
func (c *Client) LatestPairs(ctx context.Context, address string) ([]store.Candidate, error) {
	var resp pairsResponse
	if err := c.getJSON(ctx, "/latest/dex/tokens/"+url.PathEscape(address), &resp); err != nil {
		return nil, fmt.Errorf("fetch latest pairs: %w", err)
	}

	fetchedAt := c.now()
	pairs := decodeEach[pair](resp.Pairs, "pair")
	candidates := make([]store.Candidate, 0, len(pairs))
	for _, p := range pairs {
		candidates = append(candidates, candidateFromPair(p, fetchedAt))
	}
	return candidates, nil
}

// getJSON performs a GET request and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	return nil
}
