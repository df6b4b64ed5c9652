package railgun

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/traces"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// fanOut bounds concurrent balance reads per request.
const fanOut = 8

// BalanceRequest selects a wallet's balances.
type BalanceRequest struct {
	Wallet         string // id, 0x or 0zk address
	Network        string // defaults to the wallet's network
	Token          string // optional symbol or address filter
	IncludePrivate bool
	Password       string // used only to load the wallet into the engine
}

// TokenBalance is one token's public and private holdings in base units.
type TokenBalance struct {
	Token   network.Token
	Public  *big.Int
	Private *big.Int
}

// Total is public plus private.
func (b TokenBalance) Total() *big.Int {
	t := new(big.Int)
	if b.Public != nil {
		t.Add(t, b.Public)
	}
	if b.Private != nil {
		t.Add(t, b.Private)
	}
	return t
}

// PublicFloat returns the public balance in whole tokens.
func (b TokenBalance) PublicFloat() float64 {
	if b.Public == nil {
		return 0
	}
	return amount.ToFloat(b.Public, b.Token.Decimals)
}

// PrivateFloat returns the private balance in whole tokens.
func (b TokenBalance) PrivateFloat() float64 {
	if b.Private == nil {
		return 0
	}
	return amount.ToFloat(b.Private, b.Token.Decimals)
}

// Balances is a wallet's holdings on one network.
type Balances struct {
	WalletID     string
	Network      string
	Address0x    string
	Address0zk   string
	Tokens       []TokenBalance
	PrivateError string // set when private balances could not be read
}

// Find returns the balance for a symbol or address.
func (b *Balances) Find(symbolOrAddress string) (TokenBalance, bool) {
	for _, t := range b.Tokens {
		if strings.EqualFold(t.Token.Symbol, symbolOrAddress) || strings.EqualFold(t.Token.Address, symbolOrAddress) {
			return t, true
		}
	}
	return TokenBalance{}, false
}

// Native returns the native coin balance.
func (b *Balances) Native() TokenBalance {
	for _, t := range b.Tokens {
		if t.Token.IsNative() {
			return t
		}
	}
	return TokenBalance{Public: new(big.Int), Private: new(big.Int)}
}

// Balances reads public balances from the chain for every known token,
// concurrently, and private balances from the engine.
func (s *Service) Balances(ctx context.Context, req BalanceRequest) (*Balances, error) {
	w, err := s.wallets.Get(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	n, err := s.resolveNetwork(req.Network, w)
	if err != nil {
		return nil, err
	}
	ctx, span := traces.StartSpan(ctx, "railgun.Balances", traces.WalletID(w.ID), traces.Network(n.Name))
	defer span.End()

	tokens, err := s.selectTokens(ctx, n, req.Token)
	if err != nil {
		return nil, err
	}

	out := &Balances{
		WalletID:   w.ID,
		Network:    n.Name,
		Address0x:  w.Address0x,
		Address0zk: w.Address0zk,
		Tokens:     make([]TokenBalance, len(tokens)),
	}

	client, err := s.chains.Client(ctx, n.Name)
	if err != nil {
		return nil, err
	}
	owner := common.HexToAddress(w.Address0x)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, tok := range tokens {
		g.Go(func() error {
			var bal *big.Int
			var err error
			if tok.IsNative() {
				bal, err = client.NativeBalance(gctx, owner)
			} else {
				bal, err = client.TokenBalance(gctx, common.HexToAddress(tok.Address), owner)
			}
			if err != nil {
				return fmt.Errorf("%s balance: %w", tok.Symbol, err)
			}
			out.Tokens[i] = TokenBalance{Token: tok, Public: bal}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	if req.IncludePrivate {
		if err := s.mergePrivate(ctx, w, n, req, out); err != nil {
			out.PrivateError = err.Error()
			logging.L(ctx).Warn("private balances unavailable", "wallet_id", w.ID, "error", err)
		}
	}
	return out, nil
}

func (s *Service) selectTokens(ctx context.Context, n *network.Network, filter string) ([]network.Token, error) {
	if strings.TrimSpace(filter) == "" {
		return s.networks.Tokens(n.Name)
	}
	tok, err := s.networks.ResolveToken(ctx, n.Name, filter)
	if err != nil {
		return nil, err
	}
	return []network.Token{tok}, nil
}

func (s *Service) mergePrivate(ctx context.Context, w *wallet.Wallet, n *network.Network, req BalanceRequest, out *Balances) error {
	if !s.EngineConfigured() {
		return engine.ErrNotConfigured
	}
	engineID, err := s.wallets.EnsureEngineWallet(ctx, w, req.Password)
	if err != nil {
		return err
	}
	private, err := s.engine.Balances(ctx, engineID, n.Name)
	if err != nil {
		return err
	}

	index := make(map[common.Address]int, len(out.Tokens))
	for i, t := range out.Tokens {
		index[common.HexToAddress(t.Token.Address)] = i
		out.Tokens[i].Private = new(big.Int)
	}
	for _, pb := range private {
		raw, err := amount.ParseRaw(pb.Amount)
		if err != nil {
			logging.L(ctx).Warn("skipping malformed private balance", "token", pb.TokenAddress, "amount", pb.Amount)
			continue
		}
		addr := common.HexToAddress(pb.TokenAddress)
		if i, ok := index[addr]; ok {
			out.Tokens[i].Private.Add(out.Tokens[i].Private, raw)
			continue
		}
		if req.Token != "" {
			continue
		}
		tok, err := s.networks.ResolveToken(ctx, n.Name, pb.TokenAddress)
		if err != nil {
			logging.L(ctx).Warn("skipping private balance of unreadable token", "token", pb.TokenAddress, "error", err)
			continue
		}
		if pb.Symbol != "" {
			tok.Symbol = pb.Symbol
		}
		out.Tokens = append(out.Tokens, TokenBalance{Token: tok, Public: new(big.Int), Private: raw})
		index[addr] = len(out.Tokens) - 1
	}
	return nil
}
