package multiwallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/txn"
)

// analyticsFanOut bounds concurrent wallet reads.
const analyticsFanOut = 8

// recentTransactions is how many records each wallet summary carries.
const recentTransactions = 10

// stablecoins are valued at one dollar.
var stablecoins = map[string]bool{"USDC": true, "USDT": true, "DAI": true}

// AnalyticsRequest selects wallets to summarise.
type AnalyticsRequest struct {
	Wallets             []string
	Network             string // defaults to each wallet's network
	IncludeTransactions bool
	Password            string // used to load wallets into the engine
}

// TokenHolding is one token's holdings in whole tokens.
type TokenHolding struct {
	Symbol  string `json:"symbol"`
	Public  string `json:"public"`
	Private string `json:"private"`
}

// WalletSummary is one wallet's slice of the analytics.
type WalletSummary struct {
	WalletID          string         `json:"wallet_id"`
	Network           string         `json:"network"`
	Holdings          []TokenHolding `json:"balances"`
	ValueUSD          string         `json:"total_value_usd"`
	PrivateError      string         `json:"private_error,omitempty"`
	Recent            []*txn.Record  `json:"recent_transactions,omitempty"`
	TotalTransactions int            `json:"total_transactions,omitempty"`
}

// Aggregate sums every wallet.
type Aggregate struct {
	ValueUSD string            `json:"total_value_usd"`
	Tokens   map[string]string `json:"tokens"`
}

// Analytics summarises several wallets.
type Analytics struct {
	TotalWallets int             `json:"total_wallets"`
	Wallets      []WalletSummary `json:"wallets"`
	Aggregate    Aggregate       `json:"aggregate"`
}

// Analytics reads every wallet's public and private balances concurrently,
// optionally with recent transactions, and values them in USD: the native
// coin at the oracle price and stablecoins at par. Other tokens are listed
// but not valued.
func (s *Service) Analytics(ctx context.Context, req AnalyticsRequest) (*Analytics, error) {
	if len(req.Wallets) == 0 {
		return nil, ErrNoWallets
	}
	balances := make([]*railgun.Balances, len(req.Wallets))
	summaries := make([]WalletSummary, len(req.Wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyticsFanOut)
	for i, ref := range req.Wallets {
		g.Go(func() error {
			b, err := s.rail.Balances(gctx, railgun.BalanceRequest{
				Wallet:         ref,
				Network:        req.Network,
				IncludePrivate: true,
				Password:       req.Password,
			})
			if err != nil {
				return fmt.Errorf("wallet %s: %w", ref, err)
			}
			balances[i] = b
			summaries[i] = WalletSummary{WalletID: b.WalletID, Network: b.Network, PrivateError: b.PrivateError}
			if !req.IncludeTransactions {
				return nil
			}
			recs, total, err := s.rail.History(gctx, txn.Query{WalletID: b.WalletID, Limit: recentTransactions})
			if err != nil {
				return fmt.Errorf("wallet %s history: %w", ref, err)
			}
			summaries[i].Recent = recs
			summaries[i].TotalTransactions = total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices := map[string]decimal.Decimal{}
	totals := map[string]decimal.Decimal{}
	aggregate := decimal.Zero
	for i, b := range balances {
		price, ok := prices[b.Network]
		if !ok {
			price = s.nativePrice(ctx, b.Network)
			prices[b.Network] = price
		}
		value := decimal.Zero
		for _, t := range b.Tokens {
			pub := amount.ToDecimal(t.Public, t.Token.Decimals)
			priv := amount.ToDecimal(t.Private, t.Token.Decimals)
			held := pub.Add(priv)
			if held.IsZero() {
				continue
			}
			summaries[i].Holdings = append(summaries[i].Holdings, TokenHolding{
				Symbol: t.Token.Symbol, Public: pub.String(), Private: priv.String(),
			})
			totals[t.Token.Symbol] = totals[t.Token.Symbol].Add(held)
			switch {
			case t.Token.IsNative():
				value = value.Add(held.Mul(price))
			case stablecoins[strings.ToUpper(t.Token.Symbol)]:
				value = value.Add(held)
			}
		}
		summaries[i].ValueUSD = value.StringFixed(2)
		aggregate = aggregate.Add(value)
	}

	out := &Analytics{
		TotalWallets: len(summaries),
		Wallets:      summaries,
		Aggregate:    Aggregate{ValueUSD: aggregate.StringFixed(2), Tokens: make(map[string]string, len(totals))},
	}
	for sym, v := range totals {
		out.Aggregate.Tokens[sym] = v.String()
	}
	return out, nil
}

func (s *Service) nativePrice(ctx context.Context, networkName string) decimal.Decimal {
	if s.prices == nil {
		return decimal.Zero
	}
	n, err := s.rail.Networks().Lookup(networkName)
	if err != nil || n.CoinGeckoID == "" {
		return decimal.Zero
	}
	return decimal.NewFromFloat(s.prices.USDPrice(ctx, n.CoinGeckoID))
}
