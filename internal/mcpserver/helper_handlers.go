package mcpserver

import (
	"context"
	"math/big"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/samsavage/railgun-mcp/internal/advisor"
	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/validation"
)

// Plain-English helpers. They read balances and the fee market, then hand
// the figures to the advisor package.

func (h *Handlers) balances(ctx context.Context, walletRef, networkName, password string) (*railgun.Balances, error) {
	return h.rail.Balances(ctx, railgun.BalanceRequest{
		Wallet:         walletRef,
		Network:        networkName,
		IncludePrivate: true,
		Password:       password,
	})
}

// HandleCanIAffordThis checks token and gas balances for an action.
func (h *Handlers) HandleCanIAffordThis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, action, amt := str(req, "wallet_id"), str(req, "action"), str(req, "amount")
	symbol := str(req, "token")
	if symbol == "" {
		symbol = "USDC"
	}
	if errs := validation.Validate(
		validation.Required("wallet_id", id),
		validation.Required("action", action),
		validation.ValidAmount("amount", amt),
	); len(errs) > 0 {
		return invalid(errs), nil
	}

	b, err := h.balances(ctx, id, str(req, "network"), "")
	if err != nil {
		return errorResult("read balances", err), nil
	}
	tok, err := h.rail.Networks().ResolveToken(ctx, b.Network, symbol)
	if err != nil {
		return errorResult("", err), nil
	}
	raw := new(big.Int)
	if amt != "" {
		if raw, err = amount.Parse(amt, tok.Decimals); err != nil {
			return errorResult("", err), nil
		}
	}
	_, q, err := h.rail.GasQuote(ctx, b.Network)
	if err != nil {
		return errorResult("get gas price", err), nil
	}

	out := fields{
		"wallet_id":     b.WalletID,
		"action":        action,
		"token":         tok.Symbol,
		"affordability": advisor.CheckAffordability(b, q, action, tok, raw),
	}
	if b.PrivateError != "" {
		out["private_error"] = b.PrivateError
	}
	return okResult(out), nil
}

// HandleWhyIsThisSoExpensive explains an action's current cost.
func (h *Handlers) HandleWhyIsThisSoExpensive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := str(req, "action")
	if errs := validation.Validate(validation.Required("action", action)); len(errs) > 0 {
		return invalid(errs), nil
	}
	networkName := str(req, "network")
	if networkName == "" {
		networkName = "ethereum"
	}
	n, q, err := h.rail.GasQuote(ctx, networkName)
	if err != nil {
		return errorResult("get gas price", err), nil
	}
	var usd float64
	if h.prices != nil {
		usd = h.prices.USDPrice(ctx, n.CoinGeckoID)
	}
	return okResult(fields{
		"network": n.Name,
		"cost":    advisor.ExplainCost(action, q, n.NativeSymbol, usd),
	}), nil
}

// HandleJustSendMoney sends the simple way.
func (h *Handlers) HandleJustSendMoney(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, to, amt := str(req, "wallet_id"), str(req, "to"), str(req, "amount")
	if errs := validation.Validate(
		validation.Required("wallet_id", id),
		validation.Required("to", to),
		validation.ValidRecipient("to", to),
		validation.Required("amount", amt),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	if len(strings.Fields(amt)) == 1 {
		symbol := str(req, "token")
		if symbol == "" {
			symbol = "USDC"
		}
		amt += " " + symbol
	}

	res, err := h.rail.SendMoney(ctx, railgun.SendMoneyRequest{
		Wallet:   id,
		Password: req.GetString("password", ""),
		Network:  str(req, "network"),
		Amount:   amt,
		To:       to,
		Private:  req.GetBool("keep_private", true),
	})
	if err != nil {
		done := fields{}
		if res != nil && res.Shield != nil {
			done["shield"] = resultFields(res.Shield)
			done["steps"] = res.Steps
		}
		return partialResult("send money", err, done), nil
	}
	out := fields{
		"mode":  res.Mode,
		"steps": res.Steps,
		"sent":  amt,
		"to":    to,
	}
	if res.Shield != nil {
		out["shield"] = resultFields(res.Shield)
	}
	if res.Transfer != nil {
		out["transfer"] = resultFields(res.Transfer)
	}
	return okResult(out), nil
}

// HandleWhereAreMyTokens explains where a wallet's tokens sit.
func (h *Handlers) HandleWhereAreMyTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := str(req, "wallet_id")
	if errs := validation.Validate(validation.Required("wallet_id", id)); len(errs) > 0 {
		return invalid(errs), nil
	}
	b, err := h.balances(ctx, id, "", req.GetString("password", ""))
	if err != nil {
		return errorResult("read balances", err), nil
	}
	loc := advisor.LocateTokens(b)
	out := fields{
		"wallet_id":    b.WalletID,
		"network":      b.Network,
		"summary":      loc.Summary,
		"total_tokens": loc.TotalTokens,
	}
	if loc.Advice != "" {
		out["advice"] = loc.Advice
	}
	if req.GetBool("show_details", false) {
		out["tokens"] = loc.Tokens
		out["public_address"] = b.Address0x
		out["railgun_address"] = b.Address0zk
	}
	if b.PrivateError != "" {
		out["private_error"] = b.PrivateError
	}
	return okResult(out), nil
}

// HandleFixStuckTransaction diagnoses a slow pending transaction.
func (h *Handlers) HandleFixStuckTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ref := str(req, "wallet_id"), str(req, "transaction_id")
	if errs := validation.Validate(validation.Required("wallet_id", id)); len(errs) > 0 {
		return invalid(errs), nil
	}
	w, err := h.rail.Wallets().Get(ctx, id)
	if err != nil {
		return errorResult("", err), nil
	}
	pending, err := h.rail.Pending(ctx, w.ID)
	if err != nil {
		return errorResult("read pending transactions", err), nil
	}

	networkName := w.Network
	if ref != "" {
		var match []*txn.Record
		for _, r := range pending {
			if r.ID == ref || strings.EqualFold(r.TxHash, ref) {
				match = append(match, r)
			}
		}
		if len(match) == 0 {
			view, err := h.rail.TransactionStatus(ctx, ref, "", 0)
			if err != nil {
				return errorResult("transaction status", err), nil
			}
			status := ""
			if view.Record != nil {
				status = string(view.Record.Status)
			} else if view.Chain != nil {
				status = view.Chain.Status
			}
			return okResult(fields{
				"stuck":   false,
				"status":  status,
				"message": "That transaction is not pending, so there is nothing to fix.",
			}), nil
		}
		pending = match
		networkName = match[0].Network
	} else if len(pending) > 0 {
		networkName = pending[0].Network
	}

	_, q, err := h.rail.GasQuote(ctx, networkName)
	if err != nil {
		return errorResult("get gas price", err), nil
	}
	return okResult(fields{
		"wallet_id": w.ID,
		"diagnosis": advisor.DiagnoseStuck(pending, q, h.now()),
	}), nil
}

// HandleOptimizeMyPrivacy scores a wallet's privacy habits.
func (h *Handlers) HandleOptimizeMyPrivacy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := str(req, "wallet_id")
	if errs := validation.Validate(validation.Required("wallet_id", id)); len(errs) > 0 {
		return invalid(errs), nil
	}
	b, err := h.balances(ctx, id, "", req.GetString("password", ""))
	if err != nil {
		return errorResult("read balances", err), nil
	}
	recs, _, err := h.rail.History(ctx, txn.Query{WalletID: b.WalletID, Limit: txn.MaxLimit})
	if err != nil {
		return errorResult("read history", err), nil
	}
	return okResult(fields{
		"wallet_id": b.WalletID,
		"privacy":   advisor.PrivacyScore(b, recs),
	}), nil
}

// HandleEmergencyExit plans moving everything to a safe address.
func (h *Handlers) HandleEmergencyExit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, dest := str(req, "wallet_id"), str(req, "destination")
	reason := strings.ToLower(str(req, "reason"))
	if reason == "" {
		reason = "general"
	}
	if errs := validation.Validate(
		validation.Required("wallet_id", id),
		validation.Required("destination", dest),
		validation.ValidAddress("destination", dest),
		validation.OneOf("reason", reason, "general", "compromised", "migration"),
	); len(errs) > 0 {
		return invalid(errs), nil
	}

	b, err := h.balances(ctx, id, "", "")
	if err != nil {
		return errorResult("read balances", err), nil
	}
	if strings.EqualFold(b.Address0x, dest) {
		return invalid(validation.ValidationErrors{{Field: "destination", Message: "must differ from the wallet's own address"}}), nil
	}
	n, q, err := h.rail.GasQuote(ctx, b.Network)
	if err != nil {
		return errorResult("get gas price", err), nil
	}

	out := fields{
		"wallet_id": b.WalletID,
		"reason":    reason,
		"plan":      advisor.PlanEmergencyExit(b, q, n.NativeSymbol, dest),
	}
	if reason == "compromised" {
		out["urgent"] = "Run the unshield steps first. Private balances need the spending key, which an attacker may also hold."
	}
	return okResult(out), nil
}
