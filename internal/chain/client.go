package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/samsavage/railgun-mcp/internal/circuitbreaker"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/metrics"
	"github.com/samsavage/railgun-mcp/internal/retry"
	"github.com/samsavage/railgun-mcp/internal/syncutil"
	"github.com/samsavage/railgun-mcp/internal/traces"
)

// Transaction states reported by TransactionState.
const (
	StatePending   = "pending"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
	StateUnknown   = "unknown"
)

// GasQuote is the current fee market. BaseFee is nil on chains without
// EIP-1559.
type GasQuote struct {
	GasPrice    *big.Int
	BaseFee     *big.Int
	PriorityFee *big.Int
}

// MaxFee is the fee cap used for new transactions: twice the base fee
// plus the tip, or the legacy gas price.
func (q *GasQuote) MaxFee() *big.Int {
	if q.BaseFee == nil {
		return new(big.Int).Set(q.GasPrice)
	}
	fee := new(big.Int).Mul(q.BaseFee, big.NewInt(2))
	return fee.Add(fee, q.PriorityFee)
}

// TxRequest describes a transaction to sign and send. A nil GasPrice uses
// the current quote; a zero GasLimit is estimated.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// SendResult describes a broadcast transaction.
type SendResult struct {
	TxHash   string
	From     string
	To       string
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int // fee cap
	Raw      []byte   // signed RLP, for relayer hand-off
}

// TxState is the on-chain status of a transaction.
type TxState struct {
	Status            string
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// Client is a network-bound view of a pooled EthClient.
type Client struct {
	network string
	chainID *big.Int
	eth     EthClient
	policy  retry.Policy
	breaker *circuitbreaker.Breaker
	nonces  *syncutil.ShardedMutex
}

// Network returns the network name.
func (c *Client) Network() string { return c.network }

// ChainID returns the chain id used for signing.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// countable keeps lookups of missing receipts and cancelled calls from
// tripping the breaker.
func countable(err error) bool {
	return !errors.Is(err, ethereum.NotFound) && !errors.Is(err, context.Canceled)
}

// read runs an idempotent RPC call under the retry policy and breaker.
func (c *Client) read(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	err := c.policy.Do(ctx, func() error {
		err := c.breaker.Do(c.network, countable, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, circuitbreaker.ErrOpen),
			errors.Is(err, ethereum.NotFound),
			ctx.Err() != nil:
			return retry.Permanent(err)
		}
		return err
	})
	metrics.ObserveRPC(c.network, method, start, err)
	return err
}

// GasPrice returns the current gas quote.
func (c *Client) GasPrice(ctx context.Context) (*GasQuote, error) {
	q := &GasQuote{}
	err := c.read(ctx, "eth_gasPrice", func() (err error) {
		q.GasPrice, err = c.eth.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var head *types.Header
	if err := c.read(ctx, "eth_getBlockByNumber", func() (err error) {
		head, err = c.eth.HeaderByNumber(ctx, nil)
		return err
	}); err != nil {
		return nil, err
	}
	if head.BaseFee == nil {
		q.PriorityFee = new(big.Int)
		return q, nil
	}
	q.BaseFee = new(big.Int).Set(head.BaseFee)

	err = c.read(ctx, "eth_maxPriorityFeePerGas", func() (err error) {
		q.PriorityFee, err = c.eth.SuggestGasTipCap(ctx)
		return err
	})
	if err != nil {
		// Some nodes lack the method; derive the tip from the legacy price.
		q.PriorityFee = new(big.Int).Sub(q.GasPrice, q.BaseFee)
		if q.PriorityFee.Sign() < 0 {
			q.PriorityFee.SetInt64(0)
		}
	}
	return q, nil
}

// NativeBalance returns the native coin balance in wei.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.read(ctx, "eth_getBalance", func() (err error) {
		bal, err = c.eth.BalanceAt(ctx, addr, nil)
		return err
	})
	return bal, err
}

// TokenBalance returns an ERC-20 balance in base units.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return c.callUint(ctx, token, "balanceOf", data)
}

// Allowance returns the amount spender may move from owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	return c.callUint(ctx, token, "allowance", data)
}

// TokenDecimals reads an ERC-20's decimals().
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	data, err := erc20.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	v, err := c.callUint(ctx, token, "decimals", data)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() || v.Int64() > 77 {
		return 0, fmt.Errorf("decimals of %s out of range: %s", token.Hex(), v)
	}
	return int32(v.Int64()), nil
}

func (c *Client) callUint(ctx context.Context, to common.Address, method string, data []byte) (*big.Int, error) {
	var out []byte
	err := c.read(ctx, "eth_call", func() (err error) {
		out, err = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result (not a contract?)", method, to.Hex())
	}
	return unpackUint(method, out)
}

// EstimateGas estimates the gas for a call from the given sender.
func (c *Client) EstimateGas(ctx context.Context, from common.Address, req TxRequest) (uint64, error) {
	var gas uint64
	err := c.read(ctx, "eth_estimateGas", func() (err error) {
		gas, err = c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		return err
	})
	return gas, err
}

// TransactionState looks a transaction up by hash.
func (c *Client) TransactionState(ctx context.Context, hash string) (*TxState, error) {
	h := common.HexToHash(hash)

	var receipt *types.Receipt
	err := c.read(ctx, "eth_getTransactionReceipt", func() (err error) {
		receipt, err = c.eth.TransactionReceipt(ctx, h)
		return err
	})
	if err == nil {
		st := &TxState{
			Status:            StateConfirmed,
			GasUsed:           receipt.GasUsed,
			EffectiveGasPrice: receipt.EffectiveGasPrice,
		}
		if receipt.BlockNumber != nil {
			st.BlockNumber = receipt.BlockNumber.Uint64()
		}
		if receipt.Status == types.ReceiptStatusFailed {
			st.Status = StateFailed
		}
		return st, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, err
	}

	err = c.read(ctx, "eth_getTransactionByHash", func() error {
		_, _, err := c.eth.TransactionByHash(ctx, h)
		return err
	})
	switch {
	case err == nil:
		return &TxState{Status: StatePending}, nil
	case errors.Is(err, ethereum.NotFound):
		return &TxState{Status: StateUnknown}, nil
	}
	return nil, err
}

// Send signs and broadcasts a transaction. Sends from the same address are
// serialised so nonces are handed out in order.
func (c *Client) Send(ctx context.Context, key *ecdsa.PrivateKey, req TxRequest) (*SendResult, error) {
	ctx, span := traces.StartSpan(ctx, "chain.Send", traces.Network(c.network))
	defer span.End()

	from := crypto.PubkeyToAddress(key.PublicKey)
	unlock, err := c.nonces.Lock(ctx, c.network+":"+from.Hex())
	if err != nil {
		return nil, &TxError{Op: "nonce", Err: err}
	}
	defer unlock()

	var nonce uint64
	if err := c.read(ctx, "eth_getTransactionCount", func() (err error) {
		nonce, err = c.eth.PendingNonceAt(ctx, from)
		return err
	}); err != nil {
		return nil, &TxError{Op: "nonce", Err: err}
	}

	quote, err := c.GasPrice(ctx)
	if err != nil {
		return nil, &TxError{Op: "gas", Err: err}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := c.EstimateGas(ctx, from, req)
		if err != nil {
			logging.L(ctx).Warn("gas estimation failed, using default", "network", c.network, "error", err)
			gasLimit = DefaultGasLimit
		} else {
			gasLimit = est + est/5
		}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To

	var inner types.TxData
	feeCap := quote.MaxFee()
	if req.GasPrice != nil {
		feeCap = new(big.Int).Set(req.GasPrice)
	}
	if quote.BaseFee != nil {
		tip := new(big.Int).Set(quote.PriorityFee)
		if tip.Cmp(feeCap) > 0 {
			tip.Set(feeCap)
		}
		inner = &types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		inner = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: feeCap,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}
	}

	signed, err := types.SignTx(types.NewTx(inner), types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, &TxError{Op: "sign", Err: err}
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &TxError{Op: "sign", Err: err}
	}
	hash := signed.Hash().Hex()

	start := time.Now()
	err = c.breaker.Do(c.network, countable, func() error {
		return c.eth.SendTransaction(ctx, signed)
	})
	metrics.ObserveRPC(c.network, "eth_sendRawTransaction", start, err)
	if err != nil {
		traces.RecordError(span, err)
		return nil, &TxError{Op: "send", TxHash: hash, Err: err}
	}
	span.SetAttributes(traces.TxHash(hash))

	logging.L(ctx).Info("transaction sent",
		"network", c.network, "tx_hash", hash, "from", from.Hex(), "to", to.Hex(), "nonce", nonce)

	return &SendResult{
		TxHash:   hash,
		From:     from.Hex(),
		To:       to.Hex(),
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: feeCap,
		Raw:      raw,
	}, nil
}

// Approve sends approve(spender, amount) on an ERC-20 token.
func (c *Client) Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*SendResult, error) {
	data, err := ApproveData(spender, amount)
	if err != nil {
		return nil, &TxError{Op: "pack", Err: err}
	}
	return c.Send(ctx, key, TxRequest{To: token, Data: data})
}

// Transfer sends native coin when token is the zero address, otherwise an
// ERC-20 transfer.
func (c *Client) Transfer(ctx context.Context, key *ecdsa.PrivateKey, token, to common.Address, amount *big.Int) (*SendResult, error) {
	if token == (common.Address{}) {
		return c.Send(ctx, key, TxRequest{To: to, Value: amount, GasLimit: 21000})
	}
	data, err := TransferData(to, amount)
	if err != nil {
		return nil, &TxError{Op: "pack", Err: err}
	}
	return c.Send(ctx, key, TxRequest{To: token, Data: data})
}

// WaitForConfirmation polls until the transaction is mined or timeout.
func (c *Client) WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (*TxState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, hash)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			st, err := c.TransactionState(ctx, hash)
			if err != nil || st.Status == StatePending || st.Status == StateUnknown {
				continue
			}
			if st.Status == StateFailed {
				return st, &TxError{Op: "confirm", TxHash: hash, Err: ErrTransactionFailed}
			}
			return st, nil
		}
	}
}
