package network

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RPCEndpoints: map[string]string{
			"ethereum": "https://eth.example.com",
			"polygon":  "https://polygon.example.com",
			"bsc":      "https://bsc.example.com",
			"arbitrum": "https://arb.example.com",
			"sepolia":  "https://sepolia.example.com",
		},
		Contracts:      config.DefaultContracts,
		ChainIDs:       map[string]int64{"ethereum": 1, "polygon": 137, "bsc": 56, "arbitrum": 42161, "sepolia": 11155111},
		DefaultNetwork: "ethereum",
	}
}

func TestLookup_Aliases(t *testing.T) {
	r := NewRegistry(testConfig())

	for alias, want := range map[string]string{
		"eth":      "ethereum",
		"Mainnet":  "ethereum",
		"arb":      "arbitrum",
		"matic":    "polygon",
		"POL":      "polygon",
		"binance":  "bsc",
		"":         "ethereum",
		"ethereum": "ethereum",
	} {
		n, err := r.Lookup(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, n.Name, alias)
	}

	_, err := r.Lookup("solana")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestRegistry_Networks(t *testing.T) {
	r := NewRegistry(testConfig())
	assert.Equal(t, []string{"arbitrum", "bsc", "ethereum", "polygon", "sepolia"}, r.Names())

	poly, err := r.Lookup("polygon")
	require.NoError(t, err)
	assert.Equal(t, int64(137), poly.ChainID)
	assert.Equal(t, "POL", poly.NativeSymbol)
	assert.Equal(t, config.DefaultContracts["polygon"].Proxy, poly.Contracts.Proxy)
	assert.Equal(t, "https://polygonscan.com/tx/0xabc", poly.TxURL("0xabc"))

	// Custom networks only carry their native coin.
	sep, err := r.Lookup("sepolia")
	require.NoError(t, err)
	require.Len(t, sep.Tokens, 1)
	assert.True(t, sep.Tokens[0].IsNative())
	assert.Empty(t, sep.TxURL("0xabc"))
}

func TestToken_BySymbolAndAddress(t *testing.T) {
	r := NewRegistry(testConfig())

	usdc, err := r.Token("ethereum", "usdc")
	require.NoError(t, err)
	assert.Equal(t, int32(6), usdc.Decimals)
	assert.Equal(t, TokenERC20, usdc.Type)
	assert.Equal(t, int64(1), usdc.ChainID)

	byAddr, err := r.Token("ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, "USDC", byAddr.Symbol)

	eth, err := r.Token("eth", "ETH")
	require.NoError(t, err)
	assert.True(t, eth.IsNative())
	assert.Equal(t, NativeAddress, eth.Address)

	// BSC stablecoins use 18 decimals.
	bscUSDT, err := r.TokenBySymbol("bsc", "USDT")
	require.NoError(t, err)
	assert.Equal(t, int32(18), bscUSDT.Decimals)

	unknown, err := r.Token("ethereum", "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, int32(18), unknown.Decimals)

	_, err = r.Token("ethereum", "DOGE")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

type countingReader struct {
	decimals map[common.Address]int32
	calls    int
}

func (c *countingReader) TokenDecimals(_ context.Context, _ string, token common.Address) (int32, error) {
	c.calls++
	d, ok := c.decimals[token]
	if !ok {
		return 0, errors.New("execution reverted")
	}
	return d, nil
}

func TestResolveToken_ReadsDecimalsOnce(t *testing.T) {
	wbtc := common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	reader := &countingReader{decimals: map[common.Address]int32{wbtc: 8}}
	r := NewRegistry(testConfig()).WithDecimalsReader(reader)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := r.ResolveToken(ctx, "eth", strings.ToLower(wbtc.Hex()))
		require.NoError(t, err)
		assert.Equal(t, int32(8), tok.Decimals)
		assert.Equal(t, TokenERC20, tok.Type)
	}
	assert.Equal(t, 1, reader.calls)

	// Listed tokens and symbols never touch the chain.
	usdc, err := r.ResolveToken(ctx, "ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, int32(6), usdc.Decimals)
	eth, err := r.ResolveToken(ctx, "ethereum", NativeAddress)
	require.NoError(t, err)
	assert.True(t, eth.IsNative())
	_, err = r.ResolveToken(ctx, "ethereum", "DAI")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls)

	_, err = r.ResolveToken(ctx, "ethereum", "0x1111111111111111111111111111111111111111")
	assert.ErrorContains(t, err, "read decimals")

	// Without a reader the 18-decimal default stands.
	plain, err := NewRegistry(testConfig()).ResolveToken(ctx, "ethereum", wbtc.Hex())
	require.NoError(t, err)
	assert.Equal(t, int32(18), plain.Decimals)
}

func TestTokens_ReturnsCopy(t *testing.T) {
	r := NewRegistry(testConfig())
	tokens, err := r.Tokens("ethereum")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
	assert.True(t, tokens[0].IsNative())

	tokens[0].Symbol = "MUTATED"
	again, _ := r.Tokens("ethereum")
	assert.Equal(t, "ETH", again[0].Symbol)
}
