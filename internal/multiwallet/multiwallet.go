// Package multiwallet spreads funds across several wallets: batch creation,
// private distribution, mixing schedules and cross-wallet analytics.
package multiwallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/traces"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// Errors
var (
	ErrBatchSize        = errors.New("batch size must be between 1 and 10")
	ErrPasswordRequired = errors.New("password prefix is required")
	ErrNoDestinations   = errors.New("at least one destination wallet is required")
	ErrNoWallets        = errors.New("at least one wallet is required")
	ErrDistribution     = errors.New("invalid distribution")
	ErrTooFewWallets    = errors.New("mixing needs at least two wallets")
	ErrMixRounds        = errors.New("mixing rounds must be between 1 and 10")
	ErrMixDelay         = errors.New("mixing delay must not be negative")
)

// MaxBatch is the most wallets one batch may create.
const MaxBatch = 10

// PriceSource quotes a coin's USD price by CoinGecko id. *pricing.Oracle
// satisfies it.
type PriceSource interface {
	USDPrice(ctx context.Context, coingeckoID string) float64
}

// Service runs multi-wallet operations on top of the railgun service.
type Service struct {
	rail   *railgun.Service
	prices PriceSource
}

// NewService creates a multi-wallet service.
func NewService(rail *railgun.Service, prices PriceSource) *Service {
	return &Service{rail: rail, prices: prices}
}

// BatchRequest creates several wallets on one network.
type BatchRequest struct {
	Count           int
	Network         string
	PasswordPrefix  string
	UniquePasswords bool
}

// BatchWallet is one wallet of a batch.
type BatchWallet struct {
	wallet.Public
	Index int `json:"index"`
}

// BatchPassword is the password of the i-th wallet in a batch.
func BatchPassword(prefix string, i int, unique bool) string {
	if !unique {
		return prefix
	}
	return fmt.Sprintf("%s_%d", prefix, i)
}

// CreateBatch creates req.Count wallets. With unique passwords wallet i is
// sealed under "<prefix>_i". Wallets created before a failure are returned
// alongside the error.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest) ([]BatchWallet, error) {
	if req.Count < 1 || req.Count > MaxBatch {
		return nil, ErrBatchSize
	}
	if strings.TrimSpace(req.PasswordPrefix) == "" {
		return nil, ErrPasswordRequired
	}
	ctx, span := traces.StartSpan(ctx, "multiwallet.CreateBatch", traces.Network(req.Network))
	defer span.End()

	out := make([]BatchWallet, 0, req.Count)
	for i := range req.Count {
		w, err := s.rail.Wallets().Create(ctx, wallet.CreateRequest{
			Network:  req.Network,
			Password: BatchPassword(req.PasswordPrefix, i, req.UniquePasswords),
			Label:    fmt.Sprintf("batch-%d", i),
		})
		if err != nil {
			traces.RecordError(span, err)
			return out, fmt.Errorf("create wallet %d of %d: %w", i+1, req.Count, err)
		}
		out = append(out, BatchWallet{Public: w.Public(), Index: i})
	}
	logging.L(ctx).Info("wallet batch created", "count", len(out), "network", req.Network)
	return out, nil
}

// DistributionType selects how a total is split.
type DistributionType string

const (
	DistributeEqual  DistributionType = "equal"
	DistributeCustom DistributionType = "custom"
)

// ParseDistributionType validates a distribution type. Empty means equal.
func ParseDistributionType(s string) (DistributionType, error) {
	switch t := DistributionType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", DistributeEqual:
		return DistributeEqual, nil
	case DistributeCustom:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrDistribution, s)
	}
}

// Plan is a split of a total in base units.
type Plan struct {
	Total     *big.Int
	Amounts   []*big.Int
	Remainder *big.Int // left with the source
}

// PlanDistribution splits total across n wallets. Equal splits use floor
// division and report the remainder. Custom amounts must number n, be
// positive and sum to at most total.
func PlanDistribution(total *big.Int, n int, typ DistributionType, amounts []*big.Int) (*Plan, error) {
	if n < 1 {
		return nil, ErrNoDestinations
	}
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", ErrDistribution)
	}
	plan := &Plan{Total: new(big.Int).Set(total), Amounts: make([]*big.Int, n)}

	switch typ {
	case DistributeEqual, "":
		share, rem := new(big.Int).QuoRem(total, big.NewInt(int64(n)), new(big.Int))
		if share.Sign() == 0 {
			return nil, fmt.Errorf("%w: total too small to split %d ways", ErrDistribution, n)
		}
		for i := range plan.Amounts {
			plan.Amounts[i] = new(big.Int).Set(share)
		}
		plan.Remainder = rem
	case DistributeCustom:
		if len(amounts) != n {
			return nil, fmt.Errorf("%w: %d amounts for %d wallets", ErrDistribution, len(amounts), n)
		}
		sum := new(big.Int)
		for i, a := range amounts {
			if a == nil || a.Sign() <= 0 {
				return nil, fmt.Errorf("%w: amount %d must be positive", ErrDistribution, i+1)
			}
			plan.Amounts[i] = new(big.Int).Set(a)
			sum.Add(sum, a)
		}
		if sum.Cmp(total) > 0 {
			return nil, fmt.Errorf("%w: amounts exceed the total", ErrDistribution)
		}
		plan.Remainder = new(big.Int).Sub(total, sum)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrDistribution, typ)
	}
	return plan, nil
}

// DistributeRequest sends a token privately from one wallet to several.
type DistributeRequest struct {
	Source       string
	Password     string
	Network      string
	Token        string
	Total        string // human amount
	Destinations []string
	Type         DistributionType
	Amounts      []string // human amounts, custom only
	RelayerID    string
}

// Leg is one transfer of a distribution.
type Leg struct {
	ToWallet string `json:"to_wallet"`
	To0zk    string `json:"to_address"`
	Amount   string `json:"amount"`
	TxHash   string `json:"tx_hash,omitempty"`
	RecordID string `json:"transaction_id,omitempty"`
	Status   string `json:"status"`
}

// Distribution reports the transfers made.
type Distribution struct {
	SourceWallet     string `json:"source_wallet"`
	Token            string `json:"token"`
	Transfers        []Leg  `json:"transfers"`
	TotalDistributed string `json:"total_distributed"`
	Remainder        string `json:"remainder"`
}

// Distribute plans the split and sends each share with a private transfer
// to the destination wallet's 0zk address. It stops at the first failed
// transfer and returns what was sent so far.
func (s *Service) Distribute(ctx context.Context, req DistributeRequest) (*Distribution, error) {
	if len(req.Destinations) == 0 {
		return nil, ErrNoDestinations
	}
	src, err := s.rail.Wallets().Get(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	networkName := req.Network
	if networkName == "" {
		networkName = src.Network
	}
	tok, err := s.rail.Networks().ResolveToken(ctx, networkName, req.Token)
	if err != nil {
		return nil, err
	}
	total, err := amount.Parse(req.Total, tok.Decimals)
	if err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	var custom []*big.Int
	for i, a := range req.Amounts {
		v, err := amount.Parse(a, tok.Decimals)
		if err != nil {
			return nil, fmt.Errorf("amount %d: %w", i+1, err)
		}
		custom = append(custom, v)
	}
	plan, err := PlanDistribution(total, len(req.Destinations), req.Type, custom)
	if err != nil {
		return nil, err
	}

	dests := make([]*wallet.Wallet, len(req.Destinations))
	for i, ref := range req.Destinations {
		w, err := s.rail.Wallets().Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", ref, err)
		}
		if w.ID == src.ID {
			return nil, fmt.Errorf("%w: destination %s is the source wallet", ErrDistribution, ref)
		}
		dests[i] = w
	}

	ctx, span := traces.StartSpan(ctx, "multiwallet.Distribute", traces.WalletID(src.ID), traces.Network(networkName))
	defer span.End()

	out := &Distribution{
		SourceWallet: src.ID,
		Token:        tok.Symbol,
		Remainder:    amount.Format(plan.Remainder, tok.Decimals),
	}
	sent := new(big.Int)
	for i, d := range dests {
		human := amount.Format(plan.Amounts[i], tok.Decimals)
		res, err := s.rail.PrivateTransfer(ctx, railgun.PrivateTransferRequest{
			Wallet:    src.ID,
			Password:  req.Password,
			Network:   networkName,
			Token:     tok.Address,
			Amount:    human,
			Recipient: d.Address0zk,
			Memo:      "distribution",
			RelayerID: req.RelayerID,
		})
		if err != nil {
			traces.RecordError(span, err)
			out.TotalDistributed = amount.Format(sent, tok.Decimals)
			return out, fmt.Errorf("transfer %d of %d to %s: %w", i+1, len(dests), d.ID, err)
		}
		leg := Leg{ToWallet: d.ID, To0zk: d.Address0zk, Amount: human, TxHash: res.TxHash}
		if res.Record != nil {
			leg.RecordID = res.Record.ID
			leg.Status = string(res.Record.Status)
		}
		out.Transfers = append(out.Transfers, leg)
		sent.Add(sent, plan.Amounts[i])
	}
	out.TotalDistributed = amount.Format(sent, tok.Decimals)
	logging.L(ctx).Info("distribution sent", "source", src.ID, "token", tok.Symbol,
		"wallets", len(out.Transfers), "total", out.TotalDistributed)
	return out, nil
}
