package mcpserver

import (
	"context"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/multiwallet"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/validation"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// maxWait bounds get_transaction_status waits.
const maxWait = 300 * time.Second

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	rail   *railgun.Service
	multi  *multiwallet.Service
	prices multiwallet.PriceSource
	cfg    *config.Config
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(rail *railgun.Service, prices multiwallet.PriceSource, cfg *config.Config) *Handlers {
	return &Handlers{
		rail:   rail,
		multi:  multiwallet.NewService(rail, prices),
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
	}
}

func str(req mcp.CallToolRequest, name string) string {
	return strings.TrimSpace(req.GetString(name, ""))
}

// --- Wallets ---

// HandleCreateWallet creates a fresh wallet.
func (h *Handlers) HandleCreateWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label := str(req, "label")
	if errs := validation.Validate(validation.MaxLength("label", label, 100)); len(errs) > 0 {
		return invalid(errs), nil
	}
	w, err := h.rail.Wallets().Create(ctx, wallet.CreateRequest{
		Network:  str(req, "network"),
		Password: req.GetString("password", ""),
		Label:    label,
	})
	if err != nil {
		return errorResult("create wallet", err), nil
	}
	return okResult(fields{
		"wallet":  w.Public(),
		"message": "Wallet created. The password is the only way to unlock it, so keep it safe.",
	}), nil
}

// HandleImportWallet imports a mnemonic or private key.
func (h *Handlers) HandleImportWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	secret := str(req, "private_key")
	index := req.GetInt("index", 0)
	if errs := validation.Validate(
		validation.Required("private_key", secret),
		validation.ValidSecret("private_key", secret),
		validation.Range("index", index, 0, math.MaxInt32),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	w, err := h.rail.Wallets().Import(ctx, wallet.ImportRequest{
		Secret:   secret,
		Network:  str(req, "network"),
		Password: req.GetString("password", ""),
		Index:    uint32(index),
	})
	if err != nil {
		return errorResult("import wallet", err), nil
	}
	return okResult(fields{"wallet": w.Public()}), nil
}

// HandleListWallets lists stored wallets.
func (h *Handlers) HandleListWallets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := h.rail.Wallets().List(ctx)
	if err != nil {
		return errorResult("list wallets", err), nil
	}
	out := make([]wallet.Public, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Public())
	}
	return okResult(fields{"wallets": out, "count": len(out)}), nil
}

type balanceLine struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"token_address"`
	Decimals int32  `json:"decimals"`
	Public   string `json:"public"`
	Private  string `json:"private"`
	Total    string `json:"total"`
}

func balanceLines(b *railgun.Balances, skipZero bool) []balanceLine {
	lines := make([]balanceLine, 0, len(b.Tokens))
	for _, t := range b.Tokens {
		total := t.Total()
		if skipZero && total.Sign() == 0 {
			continue
		}
		lines = append(lines, balanceLine{
			Symbol:   t.Token.Symbol,
			Address:  t.Token.Address,
			Decimals: t.Token.Decimals,
			Public:   formatOrZero(t.Public, t.Token.Decimals),
			Private:  formatOrZero(t.Private, t.Token.Decimals),
			Total:    amount.Format(total, t.Token.Decimals),
		})
	}
	return lines
}

func formatOrZero(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return amount.Format(raw, decimals)
}

// HandleGetBalance reports public and private balances.
func (h *Handlers) HandleGetBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := str(req, "wallet_id")
	if errs := validation.Validate(validation.Required("wallet_id", id)); len(errs) > 0 {
		return invalid(errs), nil
	}
	token := str(req, "token_address")
	b, err := h.rail.Balances(ctx, railgun.BalanceRequest{
		Wallet:         id,
		Network:        str(req, "network"),
		Token:          token,
		IncludePrivate: req.GetBool("include_private", true),
		Password:       req.GetString("password", ""),
	})
	if err != nil {
		return errorResult("get balance", err), nil
	}
	out := fields{
		"wallet_id":       b.WalletID,
		"network":         b.Network,
		"public_address":  b.Address0x,
		"railgun_address": b.Address0zk,
		"balances":        balanceLines(b, token == ""),
	}
	if b.PrivateError != "" {
		out["private_error"] = b.PrivateError
	}
	return okResult(out), nil
}

func gwei(v *big.Int) string {
	if v == nil {
		return ""
	}
	return amount.ToGwei(v).StringFixed(2)
}

// HandleGetGasPrice reports the fee market.
func (h *Handlers) HandleGetGasPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, q, err := h.rail.GasQuote(ctx, str(req, "network"))
	if err != nil {
		return errorResult("get gas price", err), nil
	}
	out := fields{
		"network":        n.Name,
		"gas_price_gwei": gwei(q.GasPrice),
		"max_fee_gwei":   gwei(q.MaxFee()),
	}
	if q.BaseFee != nil {
		out["base_fee_gwei"] = gwei(q.BaseFee)
		out["priority_fee_gwei"] = gwei(q.PriorityFee)
	}
	return okResult(out), nil
}

// --- Transfers ---

func resultFields(res *railgun.Result) fields {
	out := fields{
		"tx_hash":      res.TxHash,
		"explorer_url": res.ExplorerURL,
	}
	if res.Record != nil {
		out["transaction_id"] = res.Record.ID
		out["status"] = res.Record.Status
		out["amount"] = res.Record.Amount
		out["token"] = res.Record.TokenSymbol
	}
	if res.ApproveTxHash != "" {
		out["approve_tx_hash"] = res.ApproveTxHash
	}
	if res.RelayerTxID != "" {
		out["relayer_tx_id"] = res.RelayerTxID
		out["relayer_fee"] = res.RelayerFee
		out["estimated_time"] = res.EstimatedTime
	}
	if res.GasLimit > 0 {
		out["gas_limit"] = res.GasLimit
	}
	return out
}

func transferArgs(req mcp.CallToolRequest) (id, token, amt string, errs validation.ValidationErrors) {
	id, token, amt = str(req, "wallet_id"), str(req, "token_address"), str(req, "amount")
	errs = validation.Validate(
		validation.Required("wallet_id", id),
		validation.Required("token_address", token),
		validation.Required("amount", amt),
		validation.ValidAmount("amount", amt),
	)
	return id, token, amt, errs
}

// HandleShieldTokens moves public tokens into the pool.
func (h *Handlers) HandleShieldTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, token, amt, errs := transferArgs(req)
	if len(errs) > 0 {
		return invalid(errs), nil
	}
	res, err := h.rail.Shield(ctx, railgun.ShieldRequest{
		Wallet:   id,
		Password: req.GetString("password", ""),
		Network:  str(req, "network"),
		Token:    token,
		Amount:   amt,
	})
	if err != nil {
		return errorResult("shield", err), nil
	}
	return okResult(resultFields(res)), nil
}

// HandleUnshieldTokens moves private tokens to a public address.
func (h *Handlers) HandleUnshieldTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, token, amt, errs := transferArgs(req)
	recipient := str(req, "recipient_0x_address")
	errs = append(errs, validation.Validate(validation.ValidAddress("recipient_0x_address", recipient))...)
	if len(errs) > 0 {
		return invalid(errs), nil
	}
	res, err := h.rail.Unshield(ctx, railgun.UnshieldRequest{
		Wallet:    id,
		Password:  req.GetString("password", ""),
		Network:   str(req, "network"),
		Token:     token,
		Amount:    amt,
		Recipient: recipient,
		RelayerID: str(req, "relayer_id"),
	})
	if err != nil {
		return errorResult("unshield", err), nil
	}
	return okResult(resultFields(res)), nil
}

// HandlePrivateTransfer sends inside the pool.
func (h *Handlers) HandlePrivateTransfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, token, amt, errs := transferArgs(req)
	to := str(req, "recipient_0zk_address")
	memo := req.GetString("memo", "")
	errs = append(errs, validation.Validate(
		validation.Required("recipient_0zk_address", to),
		validation.ValidRailgunAddress("recipient_0zk_address", to),
		validation.MaxLength("memo", memo, validation.MaxStringLength),
	)...)
	if len(errs) > 0 {
		return invalid(errs), nil
	}
	res, err := h.rail.PrivateTransfer(ctx, railgun.PrivateTransferRequest{
		Wallet:    id,
		Password:  req.GetString("password", ""),
		Network:   str(req, "network"),
		Token:     token,
		Amount:    amt,
		Recipient: to,
		Memo:      validation.SanitizeString(memo, validation.MaxStringLength),
		RelayerID: str(req, "relayer_id"),
	})
	if err != nil {
		return errorResult("private transfer", err), nil
	}
	return okResult(resultFields(res)), nil
}

// --- Transactions ---

type chainView struct {
	Status            string `json:"status"`
	BlockNumber       uint64 `json:"block_number,omitempty"`
	GasUsed           uint64 `json:"gas_used,omitempty"`
	EffectiveGasPrice string `json:"effective_gas_price_gwei,omitempty"`
}

// HandleGetTransactionStatus looks a transaction up by id or hash.
func (h *Handlers) HandleGetTransactionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := str(req, "transaction_id")
	waitSecs := req.GetFloat("wait_seconds", 0)
	if errs := validation.Validate(
		validation.Required("transaction_id", ref),
		validation.Range("wait_seconds", int(waitSecs), 0, int(maxWait/time.Second)),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	view, err := h.rail.TransactionStatus(ctx, ref, str(req, "network"), time.Duration(waitSecs*float64(time.Second)))
	if err != nil {
		return errorResult("transaction status", err), nil
	}

	out := fields{"network": view.Network}
	status := chain.StateUnknown
	if view.Record != nil {
		out["transaction"] = view.Record
		status = string(view.Record.Status)
	}
	if view.Chain != nil {
		out["chain"] = chainView{
			Status:            view.Chain.Status,
			BlockNumber:       view.Chain.BlockNumber,
			GasUsed:           view.Chain.GasUsed,
			EffectiveGasPrice: gwei(view.Chain.EffectiveGasPrice),
		}
		if view.Record == nil {
			status = view.Chain.Status
		}
	}
	if view.ExplorerURL != "" {
		out["explorer_url"] = view.ExplorerURL
	}
	out["status"] = status
	return okResult(out), nil
}

// HandleGetTransactionHistory lists a wallet's records.
func (h *Handlers) HandleGetTransactionHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := str(req, "wallet_id")
	limit := req.GetInt("limit", txn.DefaultLimit)
	offset := req.GetInt("offset", 0)
	if errs := validation.Validate(
		validation.Required("wallet_id", id),
		validation.Range("limit", limit, 1, txn.MaxLimit),
		validation.Range("offset", offset, 0, math.MaxInt32),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	typ, err := txn.ParseType(str(req, "transaction_type"))
	if err != nil {
		return errorResult("", err), nil
	}
	status, err := txn.ParseStatus(str(req, "status"))
	if err != nil {
		return errorResult("", err), nil
	}

	recs, total, err := h.rail.History(ctx, txn.Query{
		WalletID: id, Type: typ, Status: status, Limit: limit, Offset: offset,
	})
	if err != nil {
		return errorResult("transaction history", err), nil
	}
	if recs == nil {
		recs = []*txn.Record{}
	}
	return okResult(fields{
		"transactions": recs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	}), nil
}

// --- Utility ---

// HandleVerifyProof checks a proof with the engine.
func (h *Handlers) HandleVerifyProof(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proof := str(req, "proof_data")
	if errs := validation.Validate(
		validation.Required("proof_data", proof),
		validation.ValidHex("proof_data", proof),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	v, err := h.rail.VerifyProof(ctx, proof)
	if err != nil {
		return errorResult("verify proof", err), nil
	}
	return okResult(fields{
		"valid":       v.Valid,
		"proof_type":  v.ProofType,
		"verified_at": v.VerifiedAt,
	}), nil
}

// HandleGetSupportedTokens lists a network's tokens.
func (h *Handlers) HandleGetSupportedTokens(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := h.rail.Networks().Lookup(str(req, "network"))
	if err != nil {
		return errorResult("", err), nil
	}
	tokens, err := h.rail.Networks().Tokens(n.Name)
	if err != nil {
		return errorResult("", err), nil
	}
	return okResult(fields{
		"network":  n.Name,
		"chain_id": n.ChainID,
		"tokens":   tokens,
	}), nil
}

// HandleCheckConfig reports configuration without secrets.
func (h *Handlers) HandleCheckConfig(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return okResult(fields{
		"config":            h.cfg.Summary(),
		"engine_configured": h.rail.EngineConfigured(),
		"networks":          h.rail.Networks().Names(),
		"message":           "Use environment variables or ~/.railgun/config.json to configure",
	}), nil
}
