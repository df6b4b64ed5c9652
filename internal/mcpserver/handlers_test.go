package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/railgun/railguntest"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// --- Test helpers ---

type fixedPrice map[string]float64

func (p fixedPrice) USDPrice(_ context.Context, id string) float64 { return p[id] }

var eth = big.NewInt(1e18)

func usdc(n int64) *big.Int { return big.NewInt(n * 1e6) }

func newTestSetup(t *testing.T) (*Handlers, *railguntest.Env) {
	t.Helper()
	env := railguntest.New(t)
	return NewHandlers(env.Service, fixedPrice{"ethereum": 2000}, env.Config), env
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ok asserts a successful result and decodes its body.
func ok(t *testing.T) func(*mcp.CallToolResult, error) map[string]any {
	return func(result *mcp.CallToolResult, err error) map[string]any {
		t.Helper()
		require.NoError(t, err)
		text := resultText(t, result)
		require.False(t, result.IsError, "unexpected error result: %s", text)
		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &body))
		assert.Equal(t, true, body["success"])
		return body
	}
}

// failed asserts an error result and decodes its body.
func failed(t *testing.T) func(*mcp.CallToolResult, error) map[string]any {
	return func(result *mcp.CallToolResult, err error) map[string]any {
		t.Helper()
		require.NoError(t, err, "domain failures must be results, not Go errors")
		text := resultText(t, result)
		require.True(t, result.IsError, "expected error result, got: %s", text)
		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &body))
		assert.Equal(t, false, body["success"])
		return body
	}
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, isMap := v.(map[string]any)
	require.True(t, isMap, "expected object, got %T", v)
	return m
}

func list(t *testing.T, v any) []any {
	t.Helper()
	l, isList := v.([]any)
	require.True(t, isList, "expected array, got %T", v)
	return l
}

// ============================================================
// Registry and server
// ============================================================

func TestTools_AllRegistered(t *testing.T) {
	want := []string{
		"create_wallet", "import_wallet", "list_wallets", "get_balance",
		"get_gas_price", "shield_tokens", "unshield_tokens", "private_transfer",
		"get_transaction_status", "get_transaction_history", "create_recipe",
		"execute_recipe", "estimate_recipe_gas", "create_swap_recipe", "get_relayers",
		"submit_to_relayer", "create_wallet_batch", "distribute_tokens", "mix_tokens",
		"get_wallet_analytics", "can_i_afford_this", "why_is_this_so_expensive",
		"just_send_money", "where_are_my_tokens", "fix_stuck_transaction",
		"optimize_my_privacy", "emergency_exit", "verify_proof", "get_supported_tokens",
		"check_config",
	}
	tools := Tools()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.ElementsMatch(t, want, names)
}

func TestServer_ListAndCallThroughMiddleware(t *testing.T) {
	env := railguntest.New(t)
	s := NewMCPServer(Deps{
		Rail:   env.Service,
		Prices: fixedPrice{},
		Config: env.Config,
		Logger: logging.NewWithWriter(io.Discard, "error", "text"),
	})
	ctx := context.Background()

	raw, err := json.Marshal(s.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	require.NoError(t, err)
	var listed struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed.Result.Tools, 30)

	raw, err = json.Marshal(s.HandleMessage(ctx, []byte(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"check_config","arguments":{}}}`)))
	require.NoError(t, err)
	var called struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &called))
	assert.False(t, called.Result.IsError)
	require.Len(t, called.Result.Content, 1)
	assert.Contains(t, called.Result.Content[0].Text, `"engine_configured": true`)
}

func TestErrorResult_Hints(t *testing.T) {
	res := errorResult("shield", engine.ErrNotConfigured)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "RAILGUN_API_KEY")

	res = errorResult("unlock", wallet.ErrPasswordRequired)
	assert.Contains(t, resultText(t, res), "RAILGUN_WALLET_PASSWORD")

	res = errorResult("", &engine.APIError{Status: http.StatusUnauthorized, Message: "bad key"})
	assert.Contains(t, resultText(t, res), "rejected the API key")
}

// ============================================================
// Wallets and balances
// ============================================================

func TestHandleCreateAndListWallets(t *testing.T) {
	h, _ := newTestSetup(t)
	ctx := context.Background()

	body := ok(t)(h.HandleCreateWallet(ctx, makeRequest(map[string]any{
		"password": railguntest.Password, "label": "savings",
	})))
	w := obj(t, body["wallet"])
	assert.Equal(t, "savings", w["label"])
	assert.Equal(t, "ethereum", w["network"])
	assert.Contains(t, w["railgun_address"], "0zk1")
	assert.NotContains(t, resultText(t, mustResult(h.HandleCreateWallet(ctx, makeRequest(map[string]any{"password": "x"})))), "mnemonic")

	body = ok(t)(h.HandleListWallets(ctx, makeRequest(nil)))
	assert.Equal(t, float64(2), body["count"])
}

func mustResult(res *mcp.CallToolResult, _ error) *mcp.CallToolResult { return res }

func TestHandleImportWallet(t *testing.T) {
	h, _ := newTestSetup(t)
	ctx := context.Background()

	body := ok(t)(h.HandleImportWallet(ctx, makeRequest(map[string]any{
		"private_key": railguntest.Mnemonic, "password": railguntest.Password,
	})))
	assert.Equal(t, railguntest.Address, obj(t, body["wallet"])["public_address"])

	body = failed(t)(h.HandleImportWallet(ctx, makeRequest(map[string]any{"private_key": "one two three"})))
	assert.Contains(t, body["error"], "private_key")

	body = failed(t)(h.HandleImportWallet(ctx, makeRequest(map[string]any{
		"private_key": railguntest.Mnemonic, "index": float64(-1),
	})))
	assert.Contains(t, body["error"], "index")
}

func TestHandleGetBalance(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(500)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))

	body := ok(t)(h.HandleGetBalance(context.Background(), makeRequest(map[string]any{"wallet_id": w.ID})))
	assert.Equal(t, railguntest.Address, body["public_address"])
	balances := list(t, body["balances"])
	require.Len(t, balances, 2, "zero balances are skipped")

	bySymbol := map[string]map[string]any{}
	for _, b := range balances {
		m := obj(t, b)
		bySymbol[m["symbol"].(string)] = m
	}
	assert.Equal(t, "1", bySymbol["ETH"]["public"])
	assert.Equal(t, "500", bySymbol["USDC"]["public"])
	assert.Equal(t, "100", bySymbol["USDC"]["private"])
	assert.Equal(t, "600", bySymbol["USDC"]["total"])

	body = ok(t)(h.HandleGetBalance(context.Background(), makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "DAI", "include_private": false,
	})))
	balances = list(t, body["balances"])
	require.Len(t, balances, 1, "a filtered token is reported even when zero")
	assert.Equal(t, "DAI", obj(t, balances[0])["symbol"])

	failed(t)(h.HandleGetBalance(context.Background(), makeRequest(nil)))
	failed(t)(h.HandleGetBalance(context.Background(), makeRequest(map[string]any{"wallet_id": "wal_missing"})))
}

func TestHandleGetGasPrice(t *testing.T) {
	h, _ := newTestSetup(t)
	body := ok(t)(h.HandleGetGasPrice(context.Background(), makeRequest(map[string]any{"network": "ethereum"})))
	assert.Equal(t, "10.00", body["gas_price_gwei"])
	assert.Equal(t, "8.00", body["base_fee_gwei"])
	assert.Equal(t, "18.00", body["max_fee_gwei"])

	failed(t)(h.HandleGetGasPrice(context.Background(), makeRequest(map[string]any{"network": "solana"})))
}

// ============================================================
// Transfers and transactions
// ============================================================

func TestHandleShieldTokens(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(500)})
	ctx := context.Background()

	body := ok(t)(h.HandleShieldTokens(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "USDC", "amount": "100", "password": railguntest.Password,
	})))
	assert.NotEmpty(t, body["tx_hash"])
	assert.NotEmpty(t, body["approve_tx_hash"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "100000000", body["amount"])

	body = failed(t)(h.HandleShieldTokens(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "USDC", "amount": "-5",
	})))
	assert.Contains(t, body["error"], "amount")
	fields := list(t, body["fields"])
	assert.Equal(t, "amount", obj(t, fields[0])["field"])
}

func TestHandleUnshieldTokens_RejectsBadRecipient(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	body := failed(t)(h.HandleUnshieldTokens(context.Background(), makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "USDC", "amount": "1", "recipient_0x_address": "not-an-address",
	})))
	assert.Contains(t, body["error"], "recipient_0x_address")
	assert.Zero(t, env.Engine.Calls("/transactions/unshield/populate"))
}

func TestHandlePrivateTransferAndHistory(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	friend := env.NewWallet(t)
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))
	ctx := context.Background()

	body := ok(t)(h.HandlePrivateTransfer(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "USDC", "amount": "12.5",
		"recipient_0zk_address": friend.Address0zk, "memo": "rent", "password": railguntest.Password,
	})))
	id := body["transaction_id"].(string)
	assert.NotEmpty(t, id)

	failed(t)(h.HandlePrivateTransfer(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "token_address": "USDC", "amount": "1", "recipient_0zk_address": railguntest.Address,
	})))

	body = ok(t)(h.HandleGetTransactionHistory(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "transaction_type": "private_transfer",
	})))
	assert.Equal(t, float64(1), body["total"])
	rec := obj(t, list(t, body["transactions"])[0])
	assert.Equal(t, id, rec["id"])
	assert.Equal(t, "rent", rec["memo"])

	failed(t)(h.HandleGetTransactionHistory(ctx, makeRequest(map[string]any{"wallet_id": w.ID, "transaction_type": "mint"})))
	failed(t)(h.HandleGetTransactionHistory(ctx, makeRequest(map[string]any{"wallet_id": w.ID, "limit": float64(1000)})))
}

func TestHandleGetTransactionStatus(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, nil)
	ctx := context.Background()

	res, err := env.Service.Transfer(ctx, railgun.TransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "ETH", Amount: "0.1",
		To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})
	require.NoError(t, err)

	body := ok(t)(h.HandleGetTransactionStatus(ctx, makeRequest(map[string]any{"transaction_id": res.Record.ID})))
	assert.Equal(t, "pending", body["status"])
	assert.Contains(t, body["explorer_url"], res.TxHash)

	env.Chain.Mine(common.HexToHash(res.TxHash), true, 42, 21000)
	body = ok(t)(h.HandleGetTransactionStatus(ctx, makeRequest(map[string]any{"transaction_id": res.TxHash})))
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, float64(42), obj(t, body["chain"])["block_number"])

	failed(t)(h.HandleGetTransactionStatus(ctx, makeRequest(map[string]any{"transaction_id": "tx_missing"})))
	failed(t)(h.HandleGetTransactionStatus(ctx, makeRequest(map[string]any{"transaction_id": res.TxHash, "wait_seconds": float64(301)})))
}

// ============================================================
// Recipes and relayers
// ============================================================

func TestHandleRecipes(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))
	ctx := context.Background()

	body := ok(t)(h.HandleCreateSwapRecipe(ctx, makeRequest(map[string]any{
		"network": "ethereum", "sell_token": "USDC", "buy_token": "DAI", "dex": "uniswap",
	})))
	recipeID := body["recipe_id"].(string)
	assert.Len(t, list(t, obj(t, body["recipe"])["steps"]), 4)

	failed(t)(h.HandleCreateSwapRecipe(ctx, makeRequest(map[string]any{
		"sell_token": "USDC", "buy_token": "DAI", "dex": "curve",
	})))

	inputs := []any{map[string]any{"token": "USDC", "amount": "10"}}
	body = ok(t)(h.HandleEstimateRecipeGas(ctx, makeRequest(map[string]any{"recipe_id": recipeID, "input_amounts": inputs})))
	assert.Greater(t, body["estimated_gas"], float64(21000))
	assert.Contains(t, body["estimated_cost"], "ETH")

	body = ok(t)(h.HandleExecuteRecipe(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "recipe_id": recipeID, "input_amounts": inputs,
		"slippage_percentage": 1.0, "password": railguntest.Password,
	})))
	assert.NotEmpty(t, body["tx_hash"])
	assert.Equal(t, 1.0, body["slippage_percentage"])

	body = failed(t)(h.HandleExecuteRecipe(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "recipe_id": recipeID,
		"input_amounts": []any{map[string]any{"token": "USDC"}},
	})))
	assert.Contains(t, body["error"], "input_amounts[0]")
}

func TestHandleCreateRecipe(t *testing.T) {
	h, _ := newTestSetup(t)
	body := ok(t)(h.HandleCreateRecipe(context.Background(), makeRequest(map[string]any{
		"name":    "stake",
		"network": "ethereum",
		"steps": []any{
			map[string]any{"type": "approve", "contract_address": "0x1111111111111111111111111111111111111111"},
			map[string]any{"type": "stake", "contract_address": "0x1111111111111111111111111111111111111111",
				"inputs": []any{map[string]any{"token": "DAI"}}},
		},
	})))
	assert.NotEmpty(t, body["recipe_id"])
	assert.Equal(t, float64(21000+46000+150000), body["estimated_gas"])

	failed(t)(h.HandleCreateRecipe(context.Background(), makeRequest(map[string]any{
		"name": "broken", "steps": "not a list",
	})))
}

func TestHandleRelayers(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	ctx := context.Background()

	body := ok(t)(h.HandleGetRelayers(ctx, makeRequest(map[string]any{"network": "ethereum"})))
	relayers := list(t, body["relayers"])
	require.Len(t, relayers, 2)
	assert.Equal(t, "relayer-a", obj(t, relayers[0])["id"], "most reliable first")

	body = ok(t)(h.HandleSubmitToRelayer(ctx, makeRequest(map[string]any{
		"transaction_data": "0xdeadbeef", "relayer_id": "relayer-a", "priority": "fast", "wallet_id": w.ID,
	})))
	assert.Equal(t, "relay-tx-1", body["relayer_transaction_id"])

	failed(t)(h.HandleSubmitToRelayer(ctx, makeRequest(map[string]any{
		"transaction_data": "0xdeadbeef", "relayer_id": "relayer-a", "priority": "urgent",
	})))
	failed(t)(h.HandleSubmitToRelayer(ctx, makeRequest(map[string]any{
		"transaction_data": "deadbeef", "relayer_id": "relayer-a",
	})))
}

// ============================================================
// Multi-wallet
// ============================================================

func TestHandleMultiWallet(t *testing.T) {
	h, env := newTestSetup(t)
	src := env.ImportHardhat(t)
	env.Engine.SetPrivate(src.EngineWalletID, railguntest.USDC, usdc(100))
	ctx := context.Background()

	body := ok(t)(h.HandleCreateWalletBatch(ctx, makeRequest(map[string]any{
		"count": float64(3), "password_prefix": "team",
	})))
	batch := list(t, body["wallets"])
	require.Len(t, batch, 3)
	ids := make([]any, len(batch))
	for i, b := range batch {
		ids[i] = obj(t, b)["wallet_id"]
	}

	failed(t)(h.HandleCreateWalletBatch(ctx, makeRequest(map[string]any{"count": float64(11), "password_prefix": "p"})))

	body = ok(t)(h.HandleDistributeTokens(ctx, makeRequest(map[string]any{
		"source_wallet_id": src.ID, "token_address": "USDC", "total_amount": "30",
		"destination_wallet_ids": ids, "password": railguntest.Password,
	})))
	dist := obj(t, body["distribution"])
	assert.Len(t, list(t, dist["transfers"]), 3)
	assert.Equal(t, "30", dist["total_distributed"])

	body = ok(t)(h.HandleMixTokens(ctx, makeRequest(map[string]any{
		"wallet_ids": ids, "token_address": "USDC", "mixing_rounds": float64(2), "delay_seconds": float64(10),
	})))
	assert.Len(t, list(t, obj(t, body["plan"])["hops"]), 6)
	assert.Equal(t, float64(60), body["estimated_time_seconds"])

	failed(t)(h.HandleMixTokens(ctx, makeRequest(map[string]any{"wallet_ids": ids[:1], "token_address": "USDC"})))

	body = ok(t)(h.HandleGetWalletAnalytics(ctx, makeRequest(map[string]any{
		"wallet_ids": []any{src.ID}, "password": railguntest.Password,
	})))
	assert.Equal(t, float64(1), obj(t, body["analytics"])["total_wallets"])
}

// ============================================================
// Plain-English helpers
// ============================================================

func TestHandleCanIAffordThis(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.NewWallet(t)
	ctx := context.Background()

	body := ok(t)(h.HandleCanIAffordThis(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "action": "shield", "amount": "10",
	})))
	aff := obj(t, body["affordability"])
	assert.Equal(t, false, aff["can_afford"])
	assert.Contains(t, aff["summary"], " AND ")

	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(50)})
	body = ok(t)(h.HandleCanIAffordThis(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "action": "shield", "amount": "10", "token": "USDC",
	})))
	assert.Equal(t, "You're good to go!", obj(t, body["affordability"])["summary"])
}

func TestHandleWhyIsThisSoExpensive(t *testing.T) {
	h, _ := newTestSetup(t)
	body := ok(t)(h.HandleWhyIsThisSoExpensive(context.Background(), makeRequest(map[string]any{"action": "shield"})))
	cost := obj(t, body["cost"])
	assert.Equal(t, "18.0 gwei", cost["current_gas_price"])
	assert.Equal(t, "$7.20", cost["estimated_cost_usd"])
}

func TestHandleJustSendMoney(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, nil)
	ctx := context.Background()

	body := ok(t)(h.HandleJustSendMoney(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "to": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"amount": "0.25", "token": "ETH", "password": railguntest.Password, "keep_private": false,
	})))
	assert.Equal(t, railgun.ModePublic, body["mode"])
	assert.Equal(t, "0.25 ETH", body["sent"])
	assert.NotEmpty(t, obj(t, body["transfer"])["tx_hash"])

	failed(t)(h.HandleJustSendMoney(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "to": "vitalik.eth", "amount": "1",
	})))

	// keep_private defaults to true: shield the shortfall, then unshield to the 0x recipient.
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(20)})
	body = ok(t)(h.HandleJustSendMoney(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "to": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"amount": "5", "password": railguntest.Password,
	})))
	assert.Equal(t, railgun.ModePrivate, body["mode"])
	assert.Equal(t, "5 USDC", body["sent"])
	assert.NotEmpty(t, obj(t, body["shield"])["tx_hash"])
	assert.NotEmpty(t, obj(t, body["transfer"])["tx_hash"])
	assert.Len(t, body["steps"], 2)
}

func TestHandleWhereAreMyTokens(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, new(big.Int), map[common.Address]*big.Int{railguntest.USDC: usdc(20)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.DAI, big.NewInt(3e18))

	body := ok(t)(h.HandleWhereAreMyTokens(context.Background(), makeRequest(map[string]any{
		"wallet_id": w.ID, "show_details": true,
	})))
	assert.Contains(t, body["summary"], "20.00 USDC (all public)")
	assert.Contains(t, body["summary"], "3.00 DAI (all private)")
	assert.NotEmpty(t, body["advice"])
	assert.Len(t, list(t, body["tokens"]), 2)
}

func TestHandleFixStuckTransaction(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, nil)
	ctx := context.Background()

	body := ok(t)(h.HandleFixStuckTransaction(ctx, makeRequest(map[string]any{"wallet_id": w.ID})))
	assert.Equal(t, false, obj(t, body["diagnosis"])["stuck"])

	res, err := env.Service.Transfer(ctx, railgun.TransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "ETH", Amount: "0.1",
		To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})
	require.NoError(t, err)
	h.now = func() time.Time { return time.Now().Add(45 * time.Minute) }

	body = ok(t)(h.HandleFixStuckTransaction(ctx, makeRequest(map[string]any{"wallet_id": w.ID})))
	diag := obj(t, body["diagnosis"])
	assert.Equal(t, true, diag["stuck"])
	assert.Equal(t, res.Record.ID, obj(t, diag["stuck_transaction"])["id"])

	env.Chain.Mine(common.HexToHash(res.TxHash), true, 7, 21000)
	_, err = env.Service.TransactionStatus(ctx, res.Record.ID, "", 0)
	require.NoError(t, err)
	body = ok(t)(h.HandleFixStuckTransaction(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "transaction_id": res.Record.ID,
	})))
	assert.Equal(t, false, body["stuck"])
	assert.Equal(t, "confirmed", body["status"])
}

func TestHandleOptimizeMyPrivacy(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(500)})

	body := ok(t)(h.HandleOptimizeMyPrivacy(context.Background(), makeRequest(map[string]any{"wallet_id": w.ID})))
	privacy := obj(t, body["privacy"])
	assert.Less(t, privacy["score"], float64(100))
	assert.NotEmpty(t, privacy["tips"])
}

func TestHandleEmergencyExit(t *testing.T) {
	h, env := newTestSetup(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(500)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.DAI, big.NewInt(3e18))
	ctx := context.Background()
	safe := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	body := ok(t)(h.HandleEmergencyExit(ctx, makeRequest(map[string]any{
		"wallet_id": w.ID, "destination": safe, "reason": "compromised",
	})))
	plan := obj(t, body["plan"])
	assert.Len(t, list(t, plan["steps"]), 2)
	assert.Equal(t, float64(180000+65000), plan["total_gas"])
	assert.NotEmpty(t, body["urgent"])

	failed(t)(h.HandleEmergencyExit(ctx, makeRequest(map[string]any{"wallet_id": w.ID, "destination": railguntest.Address})))
	failed(t)(h.HandleEmergencyExit(ctx, makeRequest(map[string]any{"wallet_id": w.ID, "destination": safe, "reason": "bored"})))
}

// ============================================================
// Utility
// ============================================================

func TestHandleUtilityTools(t *testing.T) {
	h, _ := newTestSetup(t)
	ctx := context.Background()

	body := ok(t)(h.HandleVerifyProof(ctx, makeRequest(map[string]any{"proof_data": "0xdeadbeef"})))
	assert.Equal(t, true, body["valid"])
	failed(t)(h.HandleVerifyProof(ctx, makeRequest(map[string]any{"proof_data": "proof"})))

	body = ok(t)(h.HandleGetSupportedTokens(ctx, makeRequest(map[string]any{"network": "ethereum"})))
	assert.Equal(t, float64(1), body["chain_id"])
	assert.NotEmpty(t, body["tokens"])

	body = ok(t)(h.HandleCheckConfig(ctx, makeRequest(nil)))
	cfg := obj(t, body["config"])
	assert.Equal(t, true, cfg["api_key_set"])
	assert.Equal(t, false, cfg["private_key_set"])
	assert.Contains(t, body["message"], "~/.railgun/config.json")
	assert.NotContains(t, resultText(t, mustResult(h.HandleCheckConfig(ctx, makeRequest(nil)))), "test-key")
}
