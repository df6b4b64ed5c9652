package railgun_test

import (
	"context"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/railgun/railguntest"
	"github.com/samsavage/railgun-mcp/internal/recipe"
	"github.com/samsavage/railgun-mcp/internal/txn"
)

var (
	eth   = big.NewInt(1e18)
	proxy = common.HexToAddress(config.DefaultContracts["ethereum"].Proxy)
)

func usdc(n int64) *big.Int { return big.NewInt(n * 1e6) }

func TestBalances_PublicAndPrivate(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, new(big.Int).Mul(big.NewInt(2), eth), map[common.Address]*big.Int{railguntest.USDC: usdc(500)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))
	odd := common.HexToAddress("0x1111111111111111111111111111111111111111")
	env.Engine.SetPrivate(w.EngineWalletID, odd, big.NewInt(7))

	b, err := env.Service.Balances(context.Background(), railgun.BalanceRequest{Wallet: w.Address0x, IncludePrivate: true})
	require.NoError(t, err)
	assert.Equal(t, "ethereum", b.Network)
	assert.Empty(t, b.PrivateError)

	native := b.Native()
	assert.Equal(t, "ETH", native.Token.Symbol)
	assert.InDelta(t, 2.0, native.PublicFloat(), 1e-9)

	u, ok := b.Find("usdc")
	require.True(t, ok)
	assert.Equal(t, usdc(500), u.Public)
	assert.Equal(t, usdc(100), u.Private)
	assert.Equal(t, usdc(600), u.Total())

	extra, ok := b.Find(odd.Hex())
	require.True(t, ok, "unknown private token is listed")
	assert.Equal(t, big.NewInt(7), extra.Private)
	assert.Equal(t, int32(18), extra.Token.Decimals)

	// 5 ERC-20s plus the native coin were read concurrently.
	assert.Equal(t, 5, env.Chain.CallCount("CallContract"))
}

func TestBalances_FilterAndPrivateFailure(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Engine.FailWith("/wallets/"+w.EngineWalletID+"/balances", http.StatusBadRequest)

	b, err := env.Service.Balances(context.Background(), railgun.BalanceRequest{Wallet: w.ID, Token: "DAI", IncludePrivate: true})
	require.NoError(t, err)
	require.Len(t, b.Tokens, 1)
	assert.Equal(t, "DAI", b.Tokens[0].Token.Symbol)
	assert.NotEmpty(t, b.PrivateError)

	_, err = env.Service.Balances(context.Background(), railgun.BalanceRequest{Wallet: w.ID, Token: "NOPE"})
	assert.Error(t, err)
}

func TestShield_ApprovesThenShields(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(500)})
	ctx := context.Background()

	res, err := env.Service.Shield(ctx, railgun.ShieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "100"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ApproveTxHash)
	assert.NotEmpty(t, res.TxHash)
	assert.Contains(t, res.ExplorerURL, "etherscan.io/tx/")
	require.Equal(t, 2, env.Chain.SentCount())

	shieldTx := env.Chain.LastSent()
	assert.Equal(t, proxy, *shieldTx.To())
	assert.Equal(t, uint64(250000), shieldTx.Gas())
	assert.Equal(t, common.FromHex("0xdeadbeef"), shieldTx.Data())

	var body engine.ShieldRequest
	require.NoError(t, env.Engine.Body("/transactions/shield/populate", &body))
	assert.Equal(t, "100000000", body.Amount)
	assert.Equal(t, railguntest.Address, body.FromAddress)
	assert.Contains(t, body.Recipient0zk, "0zk1")

	recs, total, err := env.Service.History(ctx, txn.Query{WalletID: w.Address0x})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	types := map[txn.Type]bool{}
	for _, r := range recs {
		types[r.Type] = true
		assert.Equal(t, txn.StatusPending, r.Status)
	}
	assert.True(t, types[txn.TypeApprove] && types[txn.TypeShield])

	// With enough allowance only the shield is sent.
	env.Chain.SetAllowance(railguntest.USDC, common.HexToAddress(w.Address0x), proxy, usdc(1000))
	res, err = env.Service.Shield(ctx, railgun.ShieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "50"})
	require.NoError(t, err)
	assert.Empty(t, res.ApproveTxHash)
	assert.Equal(t, 3, env.Chain.SentCount())
}

func TestShield_Rejections(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(5)})
	ctx := context.Background()

	_, err := env.Service.Shield(ctx, railgun.ShieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "10"})
	assert.ErrorIs(t, err, railgun.ErrInsufficientBalance)

	_, err = env.Service.Shield(ctx, railgun.ShieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "0"})
	assert.ErrorIs(t, err, railgun.ErrInvalidAmount)

	_, err = env.Service.Shield(ctx, railgun.ShieldRequest{Wallet: w.ID, Password: "wrong", Token: "USDC", Amount: "1"})
	assert.Error(t, err)

	assert.Zero(t, env.Chain.SentCount())
}

func TestShield_EngineNotConfigured(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	svc := railgun.NewService(env.Wallets, env.Registry, nil, engine.New(engine.Config{}), env.Txns)

	_, err := svc.Shield(context.Background(), railgun.ShieldRequest{Wallet: w.ID, Token: "USDC", Amount: "1"})
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
	_, err = svc.Relayers(context.Background(), "ethereum")
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
}

func TestUnshield_SelfAndRelayed(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))
	ctx := context.Background()

	res, err := env.Service.Unshield(ctx, railgun.UnshieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "40"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, 1, env.Chain.SentCount())
	assert.Equal(t, txn.TypeUnshield, res.Record.Type)
	assert.Equal(t, railguntest.Address, res.Record.Recipient)

	var body engine.UnshieldRequest
	require.NoError(t, env.Engine.Body("/transactions/unshield/populate", &body))
	assert.Equal(t, w.EngineWalletID, body.WalletID)
	assert.Equal(t, "40000000", body.Amount)

	res, err = env.Service.Unshield(ctx, railgun.UnshieldRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "10",
		Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", RelayerID: "relayer-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "relay-tx-1", res.RelayerTxID)
	assert.Equal(t, "0.5", res.RelayerFee)
	assert.Equal(t, 1, env.Chain.SentCount(), "relayed unshield is not self-broadcast")
	assert.Equal(t, "relay-tx-1", res.Record.RelayerTxID)

	_, err = env.Service.Unshield(ctx, railgun.UnshieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "500"})
	assert.ErrorIs(t, err, railgun.ErrInsufficientBalance)

	_, err = env.Service.Unshield(ctx, railgun.UnshieldRequest{Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "1", Recipient: "0x123"})
	assert.ErrorIs(t, err, railgun.ErrInvalidRecipient)
}

func TestPrivateTransfer(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	friend := env.NewWallet(t)
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(100))
	ctx := context.Background()

	res, err := env.Service.PrivateTransfer(ctx, railgun.PrivateTransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "12.5",
		Recipient: friend.Address0zk, Memo: "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, txn.TypePrivateTransfer, res.Record.Type)
	assert.Equal(t, "12500000", res.Record.Amount)

	var body engine.TransferRequest
	require.NoError(t, env.Engine.Body("/transactions/transfer/populate", &body))
	assert.Equal(t, friend.Address0zk, body.Recipient0zk)
	assert.Equal(t, "rent", body.Memo)

	_, err = env.Service.PrivateTransfer(ctx, railgun.PrivateTransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "USDC", Amount: "1", Recipient: railguntest.Address,
	})
	assert.ErrorIs(t, err, railgun.ErrInvalidRecipient)
}

func TestSendMoney_Public(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, nil)
	to := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	out, err := env.Service.SendMoney(context.Background(), railgun.SendMoneyRequest{
		Wallet: w.ID, Password: railguntest.Password, Amount: "0.25", To: to,
	})
	require.NoError(t, err)
	assert.Equal(t, railgun.ModePublic, out.Mode)
	tx := env.Chain.LastSent()
	assert.Equal(t, common.HexToAddress(to), *tx.To())
	assert.Equal(t, big.NewInt(25e16), tx.Value())
	assert.Equal(t, uint64(21000), tx.Gas())

	_, err = env.Service.SendMoney(context.Background(), railgun.SendMoneyRequest{
		Wallet: w.ID, Password: railguntest.Password, Amount: "0.1 ETH", To: "not-an-address", Private: true,
	})
	assert.ErrorIs(t, err, railgun.ErrInvalidRecipient)

	_, err = env.Service.SendMoney(context.Background(), railgun.SendMoneyRequest{
		Wallet: w.ID, Password: railguntest.Password, Amount: "ten dollars please", To: to,
	})
	assert.Error(t, err)
}

func TestSendMoney_PrivateShieldsShortfall(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	friend := env.NewWallet(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(50)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(4))

	out, err := env.Service.SendMoney(context.Background(), railgun.SendMoneyRequest{
		Wallet: w.ID, Password: railguntest.Password, Amount: "10 USDC", To: friend.Address0zk,
	})
	require.NoError(t, err)
	assert.Equal(t, railgun.ModePrivate, out.Mode)
	require.NotNil(t, out.Shield)
	require.NotNil(t, out.Transfer)
	assert.Len(t, out.Steps, 2)

	var shield engine.ShieldRequest
	require.NoError(t, env.Engine.Body("/transactions/shield/populate", &shield))
	assert.Equal(t, "6000000", shield.Amount)

	var transfer engine.TransferRequest
	require.NoError(t, env.Engine.Body("/transactions/transfer/populate", &transfer))
	assert.Equal(t, "10000000", transfer.Amount)
}

func TestSendMoney_PrivateToPublicAddress(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{railguntest.USDC: usdc(50)})
	env.Engine.SetPrivate(w.EngineWalletID, railguntest.USDC, usdc(4))
	to := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	out, err := env.Service.SendMoney(context.Background(), railgun.SendMoneyRequest{
		Wallet: w.ID, Password: railguntest.Password, Amount: "10 USDC", To: to, Private: true,
	})
	require.NoError(t, err)
	assert.Equal(t, railgun.ModePrivate, out.Mode)
	require.NotNil(t, out.Shield)
	require.NotNil(t, out.Transfer)
	require.Len(t, out.Steps, 2)
	assert.Contains(t, out.Steps[0], "Shielded 6 USDC")
	assert.Contains(t, out.Steps[1], "Unshielded 10 USDC")
	assert.Equal(t, txn.TypeShield, out.Shield.Record.Type)
	assert.Equal(t, txn.TypeUnshield, out.Transfer.Record.Type)
	assert.Equal(t, common.HexToAddress(to).Hex(), out.Transfer.Record.Recipient)

	var shield engine.ShieldRequest
	require.NoError(t, env.Engine.Body("/transactions/shield/populate", &shield))
	assert.Equal(t, "6000000", shield.Amount)

	var unshield engine.UnshieldRequest
	require.NoError(t, env.Engine.Body("/transactions/unshield/populate", &unshield))
	assert.Equal(t, "10000000", unshield.Amount)
	assert.Equal(t, common.HexToAddress(to).Hex(), unshield.Recipient)
	assert.Equal(t, w.EngineWalletID, unshield.WalletID)
}

func TestRecipes_CreateEstimateExecute(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	ctx := context.Background()

	r, err := env.Service.CreateSwapRecipe(ctx, "eth", "USDC", "WETH", "uniswap")
	require.NoError(t, err)
	assert.Equal(t, "ethereum", r.Network)

	est, err := env.Service.EstimateRecipe(ctx, r.ID, map[string]string{"USDC": "25"})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000+180000+46000+180000+200000), est.TotalGas)
	assert.Equal(t, big.NewInt(18e9), est.GasPrice)
	assert.Equal(t, "ETH", est.Symbol)
	assert.NotEqual(t, "0", est.CostNative())

	slip := 1.0
	res, err := env.Service.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{
		RecipeID: r.ID, Wallet: w.ID, Password: railguntest.Password,
		Inputs: map[string]string{"usdc": "25"}, SlippagePct: &slip,
	})
	require.NoError(t, err)
	assert.Equal(t, txn.TypeRecipe, res.Record.Type)
	assert.Equal(t, r.ID, res.Record.Memo)

	var body engine.RecipeRequest
	require.NoError(t, env.Engine.Body("/recipes/populate", &body))
	assert.Equal(t, 100, body.SlippageBPS)
	require.Len(t, body.Inputs, 1)
	assert.Equal(t, "25000000", body.Inputs[0].Amount)
	assert.Len(t, body.Steps, 4)

	_, err = env.Service.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{RecipeID: r.ID, Wallet: w.ID, Password: railguntest.Password})
	assert.ErrorIs(t, err, railgun.ErrMissingInput)

	tooMuch := 60.0
	_, err = env.Service.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{
		RecipeID: r.ID, Wallet: w.ID, Inputs: map[string]string{"USDC": "1"}, SlippagePct: &tooMuch,
	})
	assert.ErrorIs(t, err, railgun.ErrInvalidSlippage)

	_, err = env.Service.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{
		RecipeID: r.ID, Wallet: w.ID, Password: railguntest.Password, Inputs: map[string]string{"USDC": "1", "DAI": "1"},
	})
	assert.ErrorIs(t, err, recipe.ErrInvalidRecipe)

	_, err = env.Service.CreateRecipe(ctx, "", "", "ethereum", []recipe.Step{{Type: recipe.StepSwap}})
	assert.ErrorIs(t, err, recipe.ErrInvalidRecipe)

	custom, err := env.Service.CreateRecipe(ctx, "stake dai", "", "ethereum", []recipe.Step{
		{Type: recipe.StepStake, Inputs: []recipe.TokenAmount{{Token: "DAI", Amount: "1000"}}},
	})
	require.NoError(t, err)
	list, err := env.Service.Recipes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.Service.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{RecipeID: custom.ID, Wallet: w.ID, Password: railguntest.Password})
	require.NoError(t, err, "fixed amounts need no inputs")
}

func TestRelayers(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	ctx := context.Background()

	relayers, err := env.Service.Relayers(ctx, "ethereum")
	require.NoError(t, err)
	require.Len(t, relayers, 2)
	assert.Equal(t, "relayer-a", relayers[0].ID, "most reliable first")

	_, err = env.Service.SubmitToRelayer(ctx, railgun.RelaySubmitRequest{RelayerID: "relayer-a", Network: "ethereum", TransactionData: "0xabcd", Priority: "ludicrous"})
	assert.Error(t, err)
	_, err = env.Service.SubmitToRelayer(ctx, railgun.RelaySubmitRequest{RelayerID: "relayer-a", Network: "ethereum", TransactionData: "abcd"})
	assert.Error(t, err)
	assert.Zero(t, env.Engine.Calls("/relayers/submit"))

	resp, err := env.Service.SubmitToRelayer(ctx, railgun.RelaySubmitRequest{
		RelayerID: "relayer-a", Network: "ethereum", TransactionData: "0xabcd", Wallet: w.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "relay-tx-1", resp.RelayerTransactionID)

	var body engine.SubmitRequest
	require.NoError(t, env.Engine.Body("/relayers/submit", &body))
	assert.Equal(t, railgun.DefaultRelayPriority, body.Priority)

	_, total, err := env.Service.History(ctx, txn.Query{WalletID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestTransfer_UnlistedTokenUsesOnChainDecimals(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	wbtc := common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	env.Chain.SetDecimals(wbtc, 8)
	env.Fund(w.Address0x, eth, map[common.Address]*big.Int{wbtc: big.NewInt(5e8)})
	ctx := context.Background()

	res, err := env.Service.Transfer(ctx, railgun.TransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: wbtc.Hex(), Amount: "1.5",
		To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})
	require.NoError(t, err)
	assert.Equal(t, "150000000", res.Record.Amount)
	assert.Equal(t, wbtc, *env.Chain.LastSent().To())

	// A contract without decimals() is refused rather than guessed.
	_, err = env.Service.Transfer(ctx, railgun.TransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "0x1111111111111111111111111111111111111111", Amount: "1",
		To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})
	assert.ErrorContains(t, err, "read decimals")
}

func TestTransactionStatus(t *testing.T) {
	env := railguntest.New(t)
	w := env.ImportHardhat(t)
	env.Fund(w.Address0x, eth, nil)
	ctx := context.Background()

	res, err := env.Service.Transfer(ctx, railgun.TransferRequest{
		Wallet: w.ID, Password: railguntest.Password, Token: "ETH", Amount: "0.1",
		To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})
	require.NoError(t, err)

	view, err := env.Service.TransactionStatus(ctx, res.Record.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, chain.StatePending, view.Chain.Status)
	assert.Equal(t, txn.StatusPending, view.Record.Status)

	pending, err := env.Service.Pending(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	env.Chain.Mine(common.HexToHash(res.TxHash), true, 42, 21000)
	view, err = env.Service.TransactionStatus(ctx, res.TxHash, "", 0)
	require.NoError(t, err)
	assert.Equal(t, chain.StateConfirmed, view.Chain.Status)
	assert.Equal(t, txn.StatusConfirmed, view.Record.Status)
	assert.Equal(t, uint64(42), view.Record.BlockNumber)

	_, err = env.Service.TransactionStatus(ctx, "tx_missing", "", 0)
	assert.ErrorIs(t, err, txn.ErrNotFound)

	// An unrecorded hash is still looked up on chain.
	view, err = env.Service.TransactionStatus(ctx, "0x"+common.Bytes2Hex(make([]byte, 32)), "ethereum", 0)
	require.NoError(t, err)
	assert.Nil(t, view.Record)
	assert.Equal(t, chain.StateUnknown, view.Chain.Status)
}

func TestVerifyProof(t *testing.T) {
	env := railguntest.New(t)
	_, err := env.Service.VerifyProof(context.Background(), "  ")
	assert.ErrorIs(t, err, railgun.ErrEmptyProof)

	v, err := env.Service.VerifyProof(context.Background(), "0xproof")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "groth16", v.ProofType)
}
