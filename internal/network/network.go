// Package network holds the static registry of supported chains, their
// Railgun contract deployments and the tokens the server knows about.
package network

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/config"
)

// Errors
var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrUnknownToken   = errors.New("unknown token")
)

// TokenType classifies how a token is held on chain.
type TokenType string

const (
	TokenERC20  TokenType = "ERC20"
	TokenERC721 TokenType = "ERC721"
	TokenNative TokenType = "NATIVE"
)

// NativeAddress is the placeholder address used for the chain's native coin.
const NativeAddress = "0x0000000000000000000000000000000000000000"

// Token describes one asset on one chain.
type Token struct {
	Address  string    `json:"address"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name,omitempty"`
	Decimals int32     `json:"decimals"`
	Type     TokenType `json:"type"`
	ChainID  int64     `json:"chain_id"`
}

// IsNative reports whether the token is the chain's native coin.
func (t Token) IsNative() bool {
	return t.Type == TokenNative
}

// Network is a supported EVM chain.
type Network struct {
	Name         string           `json:"name"`
	ChainID      int64            `json:"chain_id"`
	NativeSymbol string           `json:"native_symbol"`
	CoinGeckoID  string           `json:"coingecko_id"`
	Explorer     string           `json:"explorer"`
	Contracts    config.Contracts `json:"contracts"`
	Tokens       []Token          `json:"tokens"`
}

// TxURL returns the explorer link for a transaction hash.
func (n *Network) TxURL(hash string) string {
	if n.Explorer == "" {
		return ""
	}
	return n.Explorer + "/tx/" + hash
}

// Native returns the network's native token.
func (n *Network) Native() Token {
	return Token{
		Address:  NativeAddress,
		Symbol:   n.NativeSymbol,
		Decimals: 18,
		Type:     TokenNative,
		ChainID:  n.ChainID,
	}
}

type builtin struct {
	native      string
	coingecko   string
	explorer    string
	erc20Tokens []Token
}

var builtins = map[string]builtin{
	"ethereum": {
		native:    "ETH",
		coingecko: "ethereum",
		explorer:  "https://etherscan.io",
		erc20Tokens: []Token{
			{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
			{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
			{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
			{Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8},
		},
	},
	"arbitrum": {
		native:    "ETH",
		coingecko: "ethereum",
		explorer:  "https://arbiscan.io",
		erc20Tokens: []Token{
			{Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
			{Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
			{Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		},
	},
	"polygon": {
		native:    "POL",
		coingecko: "polygon-ecosystem-token",
		explorer:  "https://polygonscan.com",
		erc20Tokens: []Token{
			{Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
			{Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
			{Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
			{Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Symbol: "WPOL", Name: "Wrapped POL", Decimals: 18},
		},
	},
	"bsc": {
		native:    "BNB",
		coingecko: "binancecoin",
		explorer:  "https://bscscan.com",
		erc20Tokens: []Token{
			{Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Symbol: "USDC", Name: "USD Coin", Decimals: 18},
			{Address: "0x55d398326f99059fF775485246999027B3197955", Symbol: "USDT", Name: "Tether USD", Decimals: 18},
			{Address: "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
			{Address: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", Symbol: "WBNB", Name: "Wrapped BNB", Decimals: 18},
		},
	},
}

var aliases = map[string]string{
	"eth":          "ethereum",
	"mainnet":      "ethereum",
	"arb":          "arbitrum",
	"arbitrum-one": "arbitrum",
	"matic":        "polygon",
	"pol":          "polygon",
	"bnb":          "bsc",
	"binance":      "bsc",
}

// Registry resolves network and token names. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	networks       map[string]*Network
	defaultNetwork string

	reader   DecimalsReader
	mu       sync.Mutex
	decimals map[string]int32 // network/address -> decimals()
}

// DecimalsReader reads decimals() from an ERC-20 contract. *chain.Pool
// satisfies it.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context, network string, token common.Address) (int32, error)
}

// NewRegistry builds the registry from the configured networks. Networks
// without a built-in entry get only their native coin.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		networks:       make(map[string]*Network, len(cfg.RPCEndpoints)),
		defaultNetwork: cfg.DefaultNetwork,
		decimals:       make(map[string]int32),
	}
	for _, name := range cfg.Networks() {
		chainID := cfg.ChainID(name)
		n := &Network{
			Name:         name,
			ChainID:      chainID,
			NativeSymbol: "ETH",
			CoinGeckoID:  "ethereum",
			Contracts:    cfg.Contracts[name],
		}
		if b, ok := builtins[name]; ok {
			n.NativeSymbol = b.native
			n.CoinGeckoID = b.coingecko
			n.Explorer = b.explorer
		}
		n.Tokens = append(n.Tokens, n.Native())
		for _, t := range builtins[name].erc20Tokens {
			t.Type = TokenERC20
			t.ChainID = chainID
			n.Tokens = append(n.Tokens, t)
		}
		r.networks[name] = n
	}
	return r
}

// Canonical maps an alias to its network name, or returns name lowercased.
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// Lookup returns a network by name or alias. An empty name resolves to the
// default network.
func (r *Registry) Lookup(name string) (*Network, error) {
	if strings.TrimSpace(name) == "" {
		name = r.defaultNetwork
	}
	n, ok := r.networks[Canonical(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

// Default returns the default network name.
func (r *Registry) Default() string {
	return r.defaultNetwork
}

// Names returns all network names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tokens returns the tokens known on a network, native coin first.
func (r *Registry) Tokens(network string) ([]Token, error) {
	n, err := r.Lookup(network)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(n.Tokens))
	copy(out, n.Tokens)
	return out, nil
}

// Token resolves a symbol or contract address on a network. Unknown
// addresses are returned as 18-decimal ERC-20 tokens so callers can still
// act on tokens outside the built-in table.
func (r *Registry) Token(network, symbolOrAddress string) (Token, error) {
	n, err := r.Lookup(network)
	if err != nil {
		return Token{}, err
	}
	if common.IsHexAddress(symbolOrAddress) {
		addr := common.HexToAddress(symbolOrAddress)
		for _, t := range n.Tokens {
			if common.HexToAddress(t.Address) == addr {
				return t, nil
			}
		}
		return Token{
			Address:  addr.Hex(),
			Symbol:   addr.Hex()[:8],
			Decimals: 18,
			Type:     TokenERC20,
			ChainID:  n.ChainID,
		}, nil
	}
	return r.TokenBySymbol(n.Name, symbolOrAddress)
}

// WithDecimalsReader lets ResolveToken read decimals() for unlisted tokens.
func (r *Registry) WithDecimalsReader(d DecimalsReader) *Registry {
	r.reader = d
	return r
}

// ResolveToken is Token, except that an unlisted contract address gets its
// decimals from the chain. Results are cached per network and address.
// Without a reader unlisted tokens keep 18 decimals.
func (r *Registry) ResolveToken(ctx context.Context, network, symbolOrAddress string) (Token, error) {
	t, err := r.Token(network, symbolOrAddress)
	if err != nil || r.reader == nil || !common.IsHexAddress(symbolOrAddress) || r.listed(network, t.Address) {
		return t, err
	}

	n, _ := r.Lookup(network)
	key := n.Name + "/" + t.Address
	r.mu.Lock()
	d, ok := r.decimals[key]
	r.mu.Unlock()
	if !ok {
		d, err = r.reader.TokenDecimals(ctx, n.Name, common.HexToAddress(t.Address))
		if err != nil {
			return Token{}, fmt.Errorf("read decimals of %s on %s: %w", t.Address, n.Name, err)
		}
		r.mu.Lock()
		r.decimals[key] = d
		r.mu.Unlock()
	}
	t.Decimals = d
	return t, nil
}

func (r *Registry) listed(network, address string) bool {
	n, err := r.Lookup(network)
	if err != nil {
		return false
	}
	addr := common.HexToAddress(address)
	for _, t := range n.Tokens {
		if common.HexToAddress(t.Address) == addr {
			return true
		}
	}
	return false
}

// TokenBySymbol resolves a token symbol, case-insensitively.
func (r *Registry) TokenBySymbol(network, symbol string) (Token, error) {
	n, err := r.Lookup(network)
	if err != nil {
		return Token{}, err
	}
	for _, t := range n.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s on %s", ErrUnknownToken, symbol, n.Name)
}
