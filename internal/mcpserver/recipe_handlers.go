package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/recipe"
	"github.com/samsavage/railgun-mcp/internal/validation"
)

// decodeArg re-decodes a structured argument into v.
func decodeArg(req mcp.CallToolRequest, name string, v any) error {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s has the wrong shape: %w", name, err)
	}
	return nil
}

// inputAmounts reads [{token, amount}] into a token -> amount map.
func inputAmounts(req mcp.CallToolRequest) (map[string]string, error) {
	var list []recipe.TokenAmount
	if err := decodeArg(req, "input_amounts", &list); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for i, in := range list {
		tok := strings.TrimSpace(in.Token)
		if tok == "" {
			return nil, fmt.Errorf("input_amounts[%d]: token is required", i)
		}
		if err := validation.ValidAmount("amount", in.Amount)(); err != nil || in.Amount == "" {
			return nil, fmt.Errorf("input_amounts[%d]: amount must be a positive decimal", i)
		}
		out[tok] = in.Amount
	}
	return out, nil
}

func estimateFields(e *railgun.RecipeEstimate) fields {
	return fields{
		"network":        e.Network,
		"estimated_gas":  e.TotalGas,
		"gas_breakdown":  e.Breakdown,
		"gas_price_gwei": gwei(e.GasPrice),
		"estimated_cost": e.CostNative() + " " + e.Symbol,
	}
}

// HandleCreateRecipe stores a multi-step recipe.
func (h *Handlers) HandleCreateRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := str(req, "name")
	desc := req.GetString("description", "")
	if errs := validation.Validate(
		validation.Required("name", name),
		validation.MaxLength("name", name, 100),
		validation.MaxLength("description", desc, validation.MaxStringLength),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	var steps []recipe.Step
	if err := decodeArg(req, "steps", &steps); err != nil {
		return errorResult("", err), nil
	}

	r, err := h.rail.CreateRecipe(ctx, name, validation.SanitizeString(desc, validation.MaxStringLength), str(req, "network"), steps)
	if err != nil {
		return errorResult("create recipe", err), nil
	}
	return okResult(fields{
		"recipe_id":     r.ID,
		"recipe":        r,
		"input_tokens":  r.InputTokens(),
		"estimated_gas": recipe.EstimateGas(r, nil).TotalGas,
	}), nil
}

// HandleExecuteRecipe runs a recipe from the private balance.
func (h *Handlers) HandleExecuteRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, recipeID := str(req, "wallet_id"), str(req, "recipe_id")
	if errs := validation.Validate(
		validation.Required("wallet_id", id),
		validation.Required("recipe_id", recipeID),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	inputs, err := inputAmounts(req)
	if err != nil {
		return errorResult("", err), nil
	}
	slippage := req.GetFloat("slippage_percentage", railgun.DefaultSlippagePct)

	res, err := h.rail.ExecuteRecipe(ctx, railgun.ExecuteRecipeRequest{
		RecipeID:    recipeID,
		Wallet:      id,
		Password:    req.GetString("password", ""),
		Inputs:      inputs,
		SlippagePct: &slippage,
		RelayerID:   str(req, "relayer_id"),
	})
	if err != nil {
		return errorResult("execute recipe", err), nil
	}
	out := resultFields(res)
	out["recipe_id"] = recipeID
	out["slippage_percentage"] = slippage
	return okResult(out), nil
}

// HandleEstimateRecipeGas prices a recipe.
func (h *Handlers) HandleEstimateRecipeGas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := str(req, "recipe_id")
	if errs := validation.Validate(validation.Required("recipe_id", id)); len(errs) > 0 {
		return invalid(errs), nil
	}
	inputs, err := inputAmounts(req)
	if err != nil {
		return errorResult("", err), nil
	}
	est, err := h.rail.EstimateRecipe(ctx, id, inputs)
	if err != nil {
		return errorResult("estimate recipe", err), nil
	}
	out := estimateFields(est)
	out["recipe_id"] = id
	return okResult(out), nil
}

// HandleCreateSwapRecipe builds an unshield, approve, swap, shield recipe.
func (h *Handlers) HandleCreateSwapRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sell, buy := str(req, "sell_token"), str(req, "buy_token")
	dex := strings.ToLower(str(req, "dex"))
	if dex == "" {
		dex = "0x"
	}
	if errs := validation.Validate(
		validation.Required("sell_token", sell),
		validation.Required("buy_token", buy),
		validation.OneOf("dex", dex, "0x", "uniswap", "sushiswap"),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	r, err := h.rail.CreateSwapRecipe(ctx, str(req, "network"), sell, buy, dex)
	if err != nil {
		return errorResult("create swap recipe", err), nil
	}
	return okResult(fields{
		"recipe_id":     r.ID,
		"recipe":        r,
		"dex":           dex,
		"estimated_gas": recipe.EstimateGas(r, nil).TotalGas,
		"next_step":     "Run execute_recipe with input_amounts [{\"token\": \"" + sell + "\", \"amount\": \"...\"}]",
	}), nil
}

// --- Relayers ---

// HandleGetRelayers lists relayers.
func (h *Handlers) HandleGetRelayers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relayers, err := h.rail.Relayers(ctx, str(req, "network"))
	if err != nil {
		return errorResult("get relayers", err), nil
	}
	return okResult(fields{"relayers": relayers, "count": len(relayers)}), nil
}

// HandleSubmitToRelayer forwards transaction data to a relayer.
func (h *Handlers) HandleSubmitToRelayer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, relayer := str(req, "transaction_data"), str(req, "relayer_id")
	priority := strings.ToLower(str(req, "priority"))
	if errs := validation.Validate(
		validation.Required("transaction_data", data),
		validation.ValidHex("transaction_data", data),
		validation.Required("relayer_id", relayer),
		validation.OneOf("priority", priority, "slow", "normal", "fast"),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	resp, err := h.rail.SubmitToRelayer(ctx, railgun.RelaySubmitRequest{
		RelayerID:       relayer,
		Network:         str(req, "network"),
		TransactionData: data,
		Priority:        priority,
		Wallet:          str(req, "wallet_id"),
	})
	if err != nil && resp == nil {
		return errorResult("submit to relayer", err), nil
	}
	out := fields{
		"relayer_transaction_id": resp.RelayerTransactionID,
		"tx_hash":                resp.TxHash,
		"estimated_time":         resp.EstimatedTime,
		"fee":                    resp.Fee,
	}
	if err != nil {
		// Submitted, but the record could not be attached to the wallet.
		out["warning"] = err.Error()
	}
	return okResult(out), nil
}
