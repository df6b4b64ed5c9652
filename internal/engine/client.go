// Package engine is the HTTP client for the Railgun engine service, the
// component that scans commitments, keeps the Merkle trees and generates
// the zero-knowledge proofs for private transactions.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samsavage/railgun-mcp/internal/circuitbreaker"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/metrics"
	"github.com/samsavage/railgun-mcp/internal/retry"
	"github.com/samsavage/railgun-mcp/internal/traces"
)

// ErrNotConfigured is returned when no engine API key is set.
var ErrNotConfigured = errors.New("railgun engine not configured: set RAILGUN_API_KEY")

// APIError is a non-2xx response from the engine.
type APIError struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine API error (%d) on %s: %s", e.Status, e.Endpoint, e.Message)
}

// Temporary reports whether the request may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Config holds the connection settings for the engine.
type Config struct {
	BaseURL string // e.g. "https://api.railgun.org/v1"
	APIKey  string
	Timeout time.Duration
}

// Client is a pure HTTP client for the engine API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
	breaker    *circuitbreaker.Breaker
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the retry policy for idempotent calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBreaker replaces the per-endpoint circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a new engine client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		policy:  retry.DefaultPolicy,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

// apiErrorBody represents an error response from the engine.
type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call describes one request. endpoint is the low-cardinality route name
// used for metrics, spans and the circuit breaker key.
type call struct {
	method     string
	path       string
	endpoint   string
	query      url.Values
	body       any
	idempotent bool
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	ctx, span := traces.StartSpan(ctx, "engine."+cl.endpoint, traces.Endpoint(cl.endpoint))
	defer span.End()

	attempts := c.policy
	if !cl.idempotent {
		attempts.Attempts = 1
	}

	var raw []byte
	err := attempts.Do(ctx, func() error {
		err := c.breaker.Do(cl.endpoint, countable, func() error {
			var err error
			raw, err = c.roundTrip(ctx, cl)
			return err
		})
		var apiErr *APIError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, circuitbreaker.ErrOpen):
			return retry.Permanent(err)
		case errors.As(err, &apiErr) && !apiErr.Temporary():
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		traces.RecordError(span, err)
		logging.L(ctx).Debug("engine request failed", "endpoint", cl.endpoint, "error", err)
		return err
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", cl.endpoint, err)
	}
	return nil
}

// countable decides which failures count against the circuit: transport
// errors and server errors do, caller errors (4xx) do not.
func countable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}

// roundTrip makes one HTTP request and returns the response body.
func (c *Client) roundTrip(ctx context.Context, cl call) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL + cl.path)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid URL: %w", err))
	}
	if cl.query != nil {
		u.RawQuery = cl.query.Encode()
	}

	var reqBody io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := logging.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveEngine(cl.endpoint, 0)
		if ctx.Err() != nil {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveEngine(cl.endpoint, resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(respBody))
		var body apiErrorBody
		if json.Unmarshal(respBody, &body) == nil {
			switch {
			case body.Message != "":
				msg = body.Message
			case body.Error != "":
				msg = body.Error
			}
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg, Endpoint: cl.endpoint}
	}
	return respBody, nil
}

// Ping checks that the engine is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/health", endpoint: "health", idempotent: true}, nil)
}

// LoadWallet registers a wallet with the engine.
func (c *Client) LoadWallet(ctx context.Context, req LoadWalletRequest) (*LoadWalletResponse, error) {
	var out LoadWalletResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/wallets/load", endpoint: "wallets.load", body: req, idempotent: true}, &out)
	if err != nil {
		return nil, err
	}
	if out.WalletID == "" {
		return nil, fmt.Errorf("engine returned no wallet id")
	}
	return &out, nil
}

// Balances returns the shielded balances of an engine wallet.
func (c *Client) Balances(ctx context.Context, walletID, network string) ([]PrivateBalance, error) {
	var out balancesResponse
	err := c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/wallets/" + url.PathEscape(walletID) + "/balances",
		endpoint:   "wallets.balances",
		query:      url.Values{"network": {network}},
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Balances, nil
}

// PopulateShield builds a shield transaction.
func (c *Client) PopulateShield(ctx context.Context, req ShieldRequest) (*PopulatedTx, error) {
	return c.populate(ctx, "/transactions/shield/populate", "transactions.shield", req)
}

// PopulateUnshield proves and builds an unshield transaction.
func (c *Client) PopulateUnshield(ctx context.Context, req UnshieldRequest) (*PopulatedTx, error) {
	return c.populate(ctx, "/transactions/unshield/populate", "transactions.unshield", req)
}

// PopulateTransfer proves and builds a private transfer.
func (c *Client) PopulateTransfer(ctx context.Context, req TransferRequest) (*PopulatedTx, error) {
	return c.populate(ctx, "/transactions/transfer/populate", "transactions.transfer", req)
}

// PopulateRecipe proves and builds a recipe transaction.
func (c *Client) PopulateRecipe(ctx context.Context, req RecipeRequest) (*PopulatedTx, error) {
	return c.populate(ctx, "/recipes/populate", "recipes.populate", req)
}

func (c *Client) populate(ctx context.Context, path, endpoint string, body any) (*PopulatedTx, error) {
	var out PopulatedTx
	if err := c.do(ctx, call{method: http.MethodPost, path: path, endpoint: endpoint, body: body, idempotent: true}, &out); err != nil {
		return nil, err
	}
	if out.To == "" {
		return nil, fmt.Errorf("engine returned a transaction without a target")
	}
	return &out, nil
}

// Relayers lists relayers serving a network.
func (c *Client) Relayers(ctx context.Context, network string) ([]Relayer, error) {
	var out relayersResponse
	err := c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/relayers/" + url.PathEscape(network),
		endpoint:   "relayers.list",
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Relayers, nil
}

// SubmitToRelayer hands a transaction to a relayer. Not retried: a
// duplicate submission could be broadcast twice.
func (c *Client) SubmitToRelayer(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/relayers/submit", endpoint: "relayers.submit", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof asks the engine to verify a serialized proof.
func (c *Client) VerifyProof(ctx context.Context, proofData string) (*ProofVerification, error) {
	var out ProofVerification
	err := c.do(ctx, call{
		method:     http.MethodPost,
		path:       "/proofs/verify",
		endpoint:   "proofs.verify",
		body:       map[string]string{"proof_data": proofData},
		idempotent: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
