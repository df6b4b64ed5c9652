package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

const hardhatKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HomeDir:             t.TempDir(),
		DefaultNetwork:      "ethereum",
		RPCEndpoints:        map[string]string{"ethereum": "http://127.0.0.1:1"},
		Contracts:           config.DefaultContracts,
		ChainIDs:            config.DefaultChainIDs,
		WalletPassword:      "pw",
		FallbackETHPriceUSD: config.DefaultETHPriceUSD,
	}
}

func TestNewApp_ImportsConfiguredSigner(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = hardhatKey
	logger := logging.NewWithWriter(io.Discard, "error", "text")
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	all, err := a.rail.Wallets().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, wallet.DefaultLabel, all[0].Label)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", all[0].Address0x)
	first := all[0].ID
	a.close()

	// A restart over the same home directory reuses the stored wallet.
	a, err = newApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.close()
	all, err = a.rail.Wallets().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first, all[0].ID)
}

func TestNewApp_NoSignerConfigured(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), logging.NewWithWriter(io.Discard, "error", "text"))
	require.NoError(t, err)
	defer a.close()

	all, err := a.rail.Wallets().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
