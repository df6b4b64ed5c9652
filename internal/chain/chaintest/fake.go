// Package chaintest provides an in-memory EthClient for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	selBalanceOf = common.FromHex("0x70a08231")
	selAllowance = common.FromHex("0xdd62ed3e")
	selDecimals  = common.FromHex("0x313ce567")
)

// Client is a scripted EthClient. Zero values behave like an empty chain at
// 10 gwei with a 8 gwei base fee.
type Client struct {
	mu sync.Mutex

	GasPrice    *big.Int
	BaseFee     *big.Int // nil after SetLegacy
	Tip         *big.Int
	TipErr      error
	GasEstimate uint64
	EstimateErr error
	SendErr     error

	// GasPriceFailures makes the next N SuggestGasPrice calls fail.
	GasPriceFailures int

	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	tokens   map[common.Address]map[common.Address]*big.Int
	allow    map[common.Address]map[[2]common.Address]*big.Int
	decimals map[common.Address]uint8
	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]*types.Transaction

	Sent   []*types.Transaction
	Calls  map[string]int
	Closed bool
}

// New returns an empty fake chain.
func New() *Client {
	return &Client{
		GasPrice:    big.NewInt(10e9),
		BaseFee:     big.NewInt(8e9),
		Tip:         big.NewInt(2e9),
		GasEstimate: 100000,
		nonces:      make(map[common.Address]uint64),
		balances:    make(map[common.Address]*big.Int),
		tokens:      make(map[common.Address]map[common.Address]*big.Int),
		allow:       make(map[common.Address]map[[2]common.Address]*big.Int),
		decimals:    make(map[common.Address]uint8),
		receipts:    make(map[common.Hash]*types.Receipt),
		pending:     make(map[common.Hash]*types.Transaction),
		Calls:       make(map[string]int),
	}
}

// SetLegacy removes the base fee, as on pre-London chains.
func (c *Client) SetLegacy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BaseFee = nil
}

// SetBalance sets a native balance.
func (c *Client) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = wei
}

// SetTokenBalance sets an ERC-20 balance.
func (c *Client) SetTokenBalance(token, owner common.Address, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens[token] == nil {
		c.tokens[token] = make(map[common.Address]*big.Int)
	}
	c.tokens[token][owner] = v
}

// SetAllowance sets an ERC-20 allowance.
func (c *Client) SetAllowance(token, owner, spender common.Address, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allow[token] == nil {
		c.allow[token] = make(map[[2]common.Address]*big.Int)
	}
	c.allow[token][[2]common.Address{owner, spender}] = v
}

// SetDecimals makes token answer decimals(). Tokens without it revert.
func (c *Client) SetDecimals(token common.Address, d uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decimals[token] = d
}

// Mine records a receipt for a sent transaction.
func (c *Client) Mine(hash common.Hash, ok bool, block, gasUsed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := types.ReceiptStatusSuccessful
	if !ok {
		status = types.ReceiptStatusFailed
	}
	delete(c.pending, hash)
	c.receipts[hash] = &types.Receipt{
		Status:            status,
		TxHash:            hash,
		BlockNumber:       new(big.Int).SetUint64(block),
		GasUsed:           gasUsed,
		EffectiveGasPrice: new(big.Int).Set(c.GasPrice),
	}
}

// SentCount returns the number of broadcast transactions.
func (c *Client) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// LastSent returns the most recent broadcast transaction, or nil.
func (c *Client) LastSent() *types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return nil
	}
	return c.Sent[len(c.Sent)-1]
}

// CallCount returns how often a method was called.
func (c *Client) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

func (c *Client) called(method string) {
	c.mu.Lock()
	c.Calls[method]++
	c.mu.Unlock()
}

func (c *Client) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.called("PendingNonceAt")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Client) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	c.called("SuggestGasPrice")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GasPriceFailures > 0 {
		c.GasPriceFailures--
		return nil, errors.New("connection reset")
	}
	return new(big.Int).Set(c.GasPrice), nil
}

func (c *Client) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	c.called("SuggestGasTipCap")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TipErr != nil {
		return nil, c.TipErr
	}
	return new(big.Int).Set(c.Tip), nil
}

func (c *Client) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	c.called("HeaderByNumber")
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &types.Header{Number: big.NewInt(1000)}
	if c.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(c.BaseFee)
	}
	return h, nil
}

func (c *Client) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	c.called("EstimateGas")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	return c.GasEstimate, nil
}

func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.called("SendTransaction")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	c.nonces[from] = tx.Nonce() + 1
	c.pending[tx.Hash()] = tx
	c.Sent = append(c.Sent, tx)
	return nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.called("TransactionReceipt")
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Client) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.called("TransactionByHash")
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx, ok := c.pending[hash]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (c *Client) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.called("CallContract")
	c.mu.Lock()
	defer c.mu.Unlock()
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("bad call")
	}
	token := *call.To
	args := call.Data[4:]
	var v *big.Int
	switch {
	case bytes.Equal(call.Data[:4], selBalanceOf):
		v = c.tokens[token][common.BytesToAddress(args[:32])]
	case bytes.Equal(call.Data[:4], selAllowance):
		owner := common.BytesToAddress(args[:32])
		spender := common.BytesToAddress(args[32:64])
		v = c.allow[token][[2]common.Address{owner, spender}]
	case bytes.Equal(call.Data[:4], selDecimals):
		d, ok := c.decimals[token]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		v = big.NewInt(int64(d))
	default:
		return nil, errors.New("execution reverted")
	}
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

func (c *Client) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	c.called("BalanceAt")
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}
