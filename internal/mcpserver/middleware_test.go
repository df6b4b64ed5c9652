package mcpserver

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/railgun/railguntest"
	"github.com/samsavage/railgun-mcp/internal/ratelimit"
)

func callNamed(name string, args map[string]any) mcp.CallToolRequest {
	req := makeRequest(args)
	req.Params.Name = name
	return req
}

func okHandler(calls *int) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		*calls++
		return mcp.NewToolResultText("ok"), nil
	}
}

func TestLimitSends(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RequestsPerMinute: 1, BurstSize: 2})
	t.Cleanup(l.Stop)

	calls := 0
	h := limitSends(l, nil)(okHandler(&calls))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := h(ctx, callNamed("shield_tokens", map[string]any{"wallet_id": "w1"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
	}
	res, err := h(ctx, callNamed("private_transfer", map[string]any{"wallet_id": "w1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "rate limit exceeded")
	assert.Equal(t, 2, calls)

	// Another wallet has its own bucket.
	res, err = h(ctx, callNamed("distribute_tokens", map[string]any{"source_wallet_id": "w2"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	// Read-only tools pass straight through.
	for i := 0; i < 5; i++ {
		res, err = h(ctx, callNamed("get_balance", map[string]any{"wallet_id": "w1"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
	}
	assert.Equal(t, 8, calls)
}

func TestLimitSends_SharesBucketAcrossWalletReferences(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	l := ratelimit.New(ratelimit.Config{RequestsPerMinute: 1, BurstSize: 3})
	t.Cleanup(l.Stop)

	calls := 0
	h := limitSends(l, walletIDs(env.Service))(okHandler(&calls))
	ctx := context.Background()

	for _, ref := range []string{w.ID, w.Address0x, w.Address0zk} {
		res, err := h(ctx, callNamed("shield_tokens", map[string]any{"wallet_id": ref}))
		require.NoError(t, err)
		assert.False(t, res.IsError, ref)
	}
	res, err := h(ctx, callNamed("just_send_money", map[string]any{"wallet_id": strings.ToLower(w.Address0x)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "rate limit exceeded")
	assert.Equal(t, 3, calls)

	// Unknown references still get a bucket of their own.
	res, err = h(ctx, callNamed("shield_tokens", map[string]any{"wallet_id": "0x0000000000000000000000000000000000000001"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestInstrument_TimeoutAndErrors(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, "error", "text")

	var deadline bool
	h := instrument(logger, time.Minute)(func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, deadline = ctx.Deadline()
		assert.NotEmpty(t, logging.RequestID(ctx))
		assert.Equal(t, "check_config", logging.Tool(ctx))
		return mcp.NewToolResultText("ok"), nil
	})
	_, err := h(context.Background(), callNamed("check_config", nil))
	require.NoError(t, err)
	assert.True(t, deadline)

	boom := errors.New("boom")
	h = instrument(logger, 0)(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, boom
	})
	_, err = h(context.Background(), callNamed("check_config", nil))
	assert.ErrorIs(t, err, boom)
}
