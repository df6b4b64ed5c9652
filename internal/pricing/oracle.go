// Package pricing provides native-token USD prices with caching.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/samsavage/railgun-mcp/internal/retry"
)

// DefaultBaseURL is the CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// DefaultTTL is how long a fetched price is served from cache.
const DefaultTTL = 5 * time.Minute

// DefaultRetryPolicy retries network errors, 429s and 5xx responses.
var DefaultRetryPolicy = retry.Policy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

type cached struct {
	price     float64
	fetchedAt time.Time
}

// Oracle provides USD prices by CoinGecko id with a TTL cache. When a fetch
// fails it serves the last known price, and failing that the fallback.
type Oracle struct {
	mu       sync.RWMutex
	prices   map[string]cached
	ttl      time.Duration
	fallback float64
	baseURL  string
	client   *http.Client
	policy   retry.Policy
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithBaseURL points the oracle at another CoinGecko-compatible API.
func WithBaseURL(u string) Option {
	return func(o *Oracle) { o.baseURL = u }
}

// WithHTTPClient replaces the default 5s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Oracle) { o.client = c }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Oracle) { o.policy = p }
}

// NewOracle creates a price oracle with a fallback price and cache TTL.
func NewOracle(fallbackPrice float64, cacheTTL time.Duration, opts ...Option) *Oracle {
	if cacheTTL <= 0 {
		cacheTTL = DefaultTTL
	}
	o := &Oracle{
		prices:   make(map[string]cached),
		ttl:      cacheTTL,
		fallback: fallbackPrice,
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		policy:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// USDPrice returns the USD price for a CoinGecko id such as "ethereum".
func (o *Oracle) USDPrice(ctx context.Context, id string) float64 {
	if id == "" {
		return o.fallback
	}
	o.mu.RLock()
	c, ok := o.prices[id]
	o.mu.RUnlock()
	if ok && time.Since(c.fetchedAt) < o.ttl && c.price > 0 {
		return c.price
	}

	price, err := o.fetchPrice(ctx, id)
	if err != nil {
		if ok && c.price > 0 {
			// Keep the stale price but force a refetch next call.
			o.mu.Lock()
			o.prices[id] = cached{price: c.price}
			o.mu.Unlock()
			return c.price
		}
		return o.fallback
	}

	o.mu.Lock()
	o.prices[id] = cached{price: price, fetchedAt: time.Now()}
	o.mu.Unlock()
	return price
}

// Fallback returns the configured fallback price.
func (o *Oracle) Fallback() float64 {
	return o.fallback
}

func (o *Oracle) fetchPrice(ctx context.Context, id string) (float64, error) {
	return retry.Value(ctx, o.policy, func() (float64, error) {
		return o.fetchOnce(ctx, id)
	})
}

// fetchOnce marks answers that a retry cannot change as permanent.
func (o *Oracle) fetchOnce(ctx context.Context, id string) (float64, error) {
	q := url.Values{"ids": {id}, "vs_currencies": {"usd"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("price API returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return 0, err
		}
		return 0, retry.Permanent(err)
	}

	var result map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, retry.Permanent(fmt.Errorf("failed to decode price response: %w", err))
	}
	if result[id].USD <= 0 {
		return 0, retry.Permanent(fmt.Errorf("invalid price returned for %s: %f", id, result[id].USD))
	}
	return result[id].USD, nil
}
