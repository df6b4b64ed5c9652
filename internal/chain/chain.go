// Package chain wraps go-ethereum JSON-RPC clients for the configured
// networks: gas quotes, balances, allowances, receipts and signed sends.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/samsavage/railgun-mcp/internal/circuitbreaker"
	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/retry"
	"github.com/samsavage/railgun-mcp/internal/syncutil"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrNoEndpoint        = errors.New("chain: no RPC endpoint configured")
	ErrRPCConnection     = errors.New("chain: RPC connection failed")
	ErrTransactionFailed = errors.New("chain: transaction reverted")
	ErrTimeout           = errors.New("chain: operation timed out")
	ErrClosed            = errors.New("chain: pool closed")
)

// TxError wraps send failures with the step that failed.
type TxError struct {
	Op     string // nonce, gas, estimate, sign, send
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// EthClient is the subset of *ethclient.Client used here. Tests supply fakes.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens a client for an RPC URL.
type Dialer func(ctx context.Context, rawURL string) (EthClient, error)

func dialEth(ctx context.Context, rawURL string) (EthClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Pool
// -----------------------------------------------------------------------------

const (
	// DefaultGasLimit is used when estimation fails and the caller gave none.
	DefaultGasLimit = uint64(300000)

	// ConfirmationPollInterval between receipt checks.
	ConfirmationPollInterval = 2 * time.Second

	dialTimeout = 10 * time.Second
)

// Option configures a Pool.
type Option func(*Pool)

// WithDialer replaces ethclient.DialContext (useful for testing).
func WithDialer(d Dialer) Option {
	return func(p *Pool) { p.dial = d }
}

// WithClient pins a client for a network, skipping the dial.
func WithClient(network string, c EthClient) Option {
	return func(p *Pool) { p.clients[network] = c }
}

// WithRetryPolicy sets the policy for read calls.
func WithRetryPolicy(rp retry.Policy) Option {
	return func(p *Pool) { p.policy = rp }
}

// WithBreaker sets the per-network circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(p *Pool) { p.breaker = b }
}

// Pool holds one lazily dialled client per network.
type Pool struct {
	endpoints map[string]string
	chainIDs  map[string]int64
	dial      Dialer
	policy    retry.Policy
	breaker   *circuitbreaker.Breaker
	nonces    *syncutil.ShardedMutex

	mu      sync.Mutex
	clients map[string]EthClient
	closed  bool
}

// NewPool creates a pool over the configured RPC endpoints.
func NewPool(cfg *config.Config, opts ...Option) *Pool {
	p := &Pool{
		endpoints: make(map[string]string, len(cfg.RPCEndpoints)),
		chainIDs:  make(map[string]int64, len(cfg.RPCEndpoints)),
		dial:      dialEth,
		policy:    retry.DefaultPolicy,
		breaker:   circuitbreaker.New(5, 30*time.Second),
		nonces:    syncutil.NewShardedMutex(),
		clients:   make(map[string]EthClient),
	}
	for _, name := range cfg.Networks() {
		p.endpoints[name] = cfg.RPCURL(name)
		p.chainIDs[name] = cfg.ChainID(name)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client returns the client for a network, dialling on first use.
func (p *Pool) Client(ctx context.Context, network string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	chainID, ok := p.chainIDs[network]
	if !ok {
		chainID = 1
	}
	if c, ok := p.clients[network]; ok {
		return p.wrap(network, chainID, c), nil
	}

	url := p.endpoints[network]
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, network)
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, err := p.dial(dctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRPCConnection, network, err)
	}
	p.clients[network] = c
	logging.L(ctx).Debug("rpc client dialled", "network", network)
	return p.wrap(network, chainID, c), nil
}

func (p *Pool) wrap(network string, chainID int64, c EthClient) *Client {
	return &Client{
		network: network,
		chainID: big.NewInt(chainID),
		eth:     c,
		policy:  p.policy,
		breaker: p.breaker,
		nonces:  p.nonces,
	}
}

// Breaker exposes the per-network breaker for readiness checks.
func (p *Pool) Breaker() *circuitbreaker.Breaker {
	return p.breaker
}

// Close closes every dialled client. Further Client calls fail.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, c := range p.clients {
		c.Close()
		delete(p.clients, name)
	}
	p.closed = true
}

// TokenDecimals reads decimals() of token on network.
func (p *Pool) TokenDecimals(ctx context.Context, network string, token common.Address) (int32, error) {
	c, err := p.Client(ctx, network)
	if err != nil {
		return 0, err
	}
	return c.TokenDecimals(ctx, token)
}

// TransactionState looks a transaction up on the named network.
func (p *Pool) TransactionState(ctx context.Context, network, hash string) (*TxState, error) {
	c, err := p.Client(ctx, network)
	if err != nil {
		return nil, err
	}
	return c.TransactionState(ctx, hash)
}
