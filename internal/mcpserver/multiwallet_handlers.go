package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/samsavage/railgun-mcp/internal/multiwallet"
	"github.com/samsavage/railgun-mcp/internal/validation"
)

// HandleCreateWalletBatch creates several wallets at once.
func (h *Handlers) HandleCreateWalletBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := req.GetInt("count", 0)
	prefix := req.GetString("password_prefix", "")
	if errs := validation.Validate(
		validation.Range("count", count, 1, multiwallet.MaxBatch),
		validation.Required("password_prefix", prefix),
	); len(errs) > 0 {
		return invalid(errs), nil
	}
	unique := req.GetBool("use_unique_passwords", true)
	batch, err := h.multi.CreateBatch(ctx, multiwallet.BatchRequest{
		Count:           count,
		Network:         str(req, "network"),
		PasswordPrefix:  prefix,
		UniquePasswords: unique,
	})
	if err != nil {
		return partialResult("create wallet batch", err, fields{"created": batch}), nil
	}

	scheme := "every wallet uses the prefix as its password"
	if unique {
		scheme = "wallet i uses <prefix>_i as its password"
	}
	return okResult(fields{
		"wallets":         batch,
		"count":           len(batch),
		"password_scheme": scheme,
	}), nil
}

// HandleDistributeTokens splits a private balance across wallets.
func (h *Handlers) HandleDistributeTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, token, total := str(req, "source_wallet_id"), str(req, "token_address"), str(req, "total_amount")
	dests := req.GetStringSlice("destination_wallet_ids", nil)
	errs := validation.Validate(
		validation.Required("source_wallet_id", source),
		validation.Required("token_address", token),
		validation.Required("total_amount", total),
		validation.ValidAmount("total_amount", total),
	)
	if len(dests) == 0 {
		errs = append(errs, validation.ValidationError{Field: "destination_wallet_ids", Message: "is required"})
	}
	if len(errs) > 0 {
		return invalid(errs), nil
	}
	typ, err := multiwallet.ParseDistributionType(str(req, "distribution_type"))
	if err != nil {
		return errorResult("", err), nil
	}

	out, err := h.multi.Distribute(ctx, multiwallet.DistributeRequest{
		Source:       source,
		Password:     req.GetString("password", ""),
		Token:        token,
		Total:        total,
		Destinations: dests,
		Type:         typ,
		Amounts:      req.GetStringSlice("amounts", nil),
		RelayerID:    str(req, "relayer_id"),
	})
	if err != nil {
		if out != nil && len(out.Transfers) > 0 {
			return partialResult("distribute", err, fields{"distribution": out}), nil
		}
		return errorResult("distribute", err), nil
	}
	return okResult(fields{"distribution": out}), nil
}

// HandleMixTokens plans a mixing schedule between the caller's wallets.
func (h *Handlers) HandleMixTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("wallet_ids", nil)
	token := str(req, "token_address")
	rounds := req.GetInt("mixing_rounds", multiwallet.DefaultMixRounds)
	delay := req.GetInt("delay_seconds", int(multiwallet.DefaultMixDelay/time.Second))
	errs := validation.Validate(
		validation.Required("token_address", token),
		validation.Range("mixing_rounds", rounds, 1, multiwallet.MaxMixRounds),
		validation.Range("delay_seconds", delay, 0, 86400),
	)
	if len(ids) < 2 {
		errs = append(errs, validation.ValidationError{Field: "wallet_ids", Message: "needs at least two wallets"})
	}
	if len(errs) > 0 {
		return invalid(errs), nil
	}

	plan, err := h.multi.PlanMix(ctx, multiwallet.MixRequest{
		Wallets: ids,
		Network: str(req, "network"),
		Token:   token,
		Rounds:  rounds,
		Delay:   time.Duration(delay) * time.Second,
	})
	if err != nil {
		return errorResult("mix tokens", err), nil
	}
	return okResult(fields{
		"plan":                   plan,
		"estimated_time_seconds": int64(plan.EstimatedTime / time.Second),
		"estimated_time":         plan.EstimatedTime.String(),
		"next_step":              "Run each hop with private_transfer at its after_seconds offset. Vary the amounts so hops do not match.",
	}), nil
}

// HandleGetWalletAnalytics summarizes several wallets.
func (h *Handlers) HandleGetWalletAnalytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("wallet_ids", nil)
	if len(ids) == 0 {
		return invalid(validation.ValidationErrors{{Field: "wallet_ids", Message: "is required"}}), nil
	}
	out, err := h.multi.Analytics(ctx, multiwallet.AnalyticsRequest{
		Wallets:             ids,
		IncludeTransactions: req.GetBool("include_transactions", true),
		Password:            req.GetString("password", ""),
	})
	if err != nil {
		return errorResult("wallet analytics", err), nil
	}
	return okResult(fields{"analytics": out}), nil
}
