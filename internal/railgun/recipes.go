package railgun

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/recipe"
	"github.com/samsavage/railgun-mcp/internal/traces"
	"github.com/samsavage/railgun-mcp/internal/txn"
)

// Slippage bounds, in percent.
const (
	DefaultSlippagePct = 0.5
	MaxSlippagePct     = 50.0
)

// CreateRecipe validates and stores a custom recipe.
func (s *Service) CreateRecipe(ctx context.Context, name, description, networkName string, steps []recipe.Step) (*recipe.Recipe, error) {
	n, err := s.networks.Lookup(networkName)
	if err != nil {
		return nil, err
	}
	r := recipe.New(name, description, n.Name, steps)
	if err := recipe.Validate(r); err != nil {
		return nil, err
	}
	if err := s.recipes.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateSwapRecipe builds and stores a private swap template.
func (s *Service) CreateSwapRecipe(ctx context.Context, networkName, sell, buy, dex string) (*recipe.Recipe, error) {
	n, err := s.networks.Lookup(networkName)
	if err != nil {
		return nil, err
	}
	sellTok, err := s.networks.ResolveToken(ctx, n.Name, sell)
	if err != nil {
		return nil, err
	}
	buyTok, err := s.networks.ResolveToken(ctx, n.Name, buy)
	if err != nil {
		return nil, err
	}
	r, err := recipe.NewSwapRecipe(n.Name, sellTok, buyTok, dex)
	if err != nil {
		return nil, err
	}
	if err := s.recipes.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Recipe returns a stored recipe.
func (s *Service) Recipe(ctx context.Context, id string) (*recipe.Recipe, error) {
	return s.recipes.Get(ctx, id)
}

// Recipes lists stored recipes, newest first.
func (s *Service) Recipes(ctx context.Context) ([]*recipe.Recipe, error) {
	return s.recipes.List(ctx)
}

// RecipeEstimate is a recipe's gas budget priced at the current fee market.
type RecipeEstimate struct {
	recipe.Estimate
	GasPrice *big.Int
	Network  string
	Symbol   string
}

// CostNative formats the cost in the network's native coin.
func (e *RecipeEstimate) CostNative() string {
	if e.CostWei == nil {
		return "0"
	}
	return amount.Format(e.CostWei, 18)
}

// EstimateRecipe prices a stored recipe. Any supplied input amounts are
// checked against the recipe before pricing.
func (s *Service) EstimateRecipe(ctx context.Context, id string, inputs map[string]string) (*RecipeEstimate, error) {
	r, err := s.recipes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(inputs) > 0 {
		if _, err := s.recipeInputs(ctx, r, inputs); err != nil {
			return nil, err
		}
	}
	n, quote, err := s.GasQuote(ctx, r.Network)
	if err != nil {
		return nil, err
	}
	price := quote.MaxFee()
	return &RecipeEstimate{
		Estimate: recipe.EstimateGas(r, price),
		GasPrice: price,
		Network:  n.Name,
		Symbol:   n.NativeSymbol,
	}, nil
}

// ExecuteRecipeRequest runs a stored recipe from the private balance.
type ExecuteRecipeRequest struct {
	RecipeID    string
	Wallet      string
	Password    string
	Inputs      map[string]string // token symbol or address -> human amount
	SlippagePct *float64          // nil uses the default
	RelayerID   string
}

// ExecuteRecipe has the engine prove the recipe and broadcasts it.
func (s *Service) ExecuteRecipe(ctx context.Context, req ExecuteRecipeRequest) (*Result, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	slippage := DefaultSlippagePct
	if req.SlippagePct != nil {
		slippage = *req.SlippagePct
	}
	if slippage < 0 || slippage > MaxSlippagePct {
		return nil, ErrInvalidSlippage
	}

	r, err := s.recipes.Get(ctx, req.RecipeID)
	if err != nil {
		return nil, err
	}
	inputs, err := s.recipeInputs(ctx, r, req.Inputs)
	if err != nil {
		return nil, err
	}

	w, ks, err := s.wallets.Unlock(ctx, req.Wallet, req.Password)
	if err != nil {
		return nil, err
	}
	n, err := s.networks.Lookup(r.Network)
	if err != nil {
		return nil, err
	}
	ctx, span := traces.StartSpan(ctx, "railgun.ExecuteRecipe", traces.WalletID(w.ID), traces.Network(n.Name))
	defer span.End()

	engineID, err := s.wallets.EnsureEngineWallet(ctx, w, req.Password)
	if err != nil {
		return nil, err
	}

	steps := make([]engine.RecipeStep, len(r.Steps))
	for i, st := range r.Steps {
		steps[i] = engine.RecipeStep{
			Type:            string(st.Type),
			ContractAddress: st.ContractAddress,
			FunctionName:    st.FunctionName,
			FunctionArgs:    st.FunctionArgs,
		}
	}
	ptx, err := s.engine.PopulateRecipe(ctx, engine.RecipeRequest{
		Network:     n.Name,
		WalletID:    engineID,
		Steps:       steps,
		Inputs:      inputs,
		SlippageBPS: int(slippage * 100),
		RelayerID:   req.RelayerID,
	})
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	client, err := s.chains.Client(ctx, n.Name)
	if err != nil {
		return nil, err
	}
	first, _ := s.networks.Token(n.Name, inputs[0].TokenAddress)
	o := &op{w: w, ks: ks, n: n, tok: first, raw: mustRaw(inputs[0].Amount)}
	rec := o.newRecord(txn.TypeRecipe)
	rec.Memo = r.ID
	res := &Result{}
	if err := s.broadcast(ctx, client, o, req.RelayerID, ptx, rec, res); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// recipeInputs resolves the base-unit amount of every token the recipe
// consumes. Amounts fixed in the recipe apply unless overridden; supplied
// tokens the recipe never consumes are rejected.
func (s *Service) recipeInputs(ctx context.Context, r *recipe.Recipe, supplied map[string]string) ([]engine.TokenAmount, error) {
	fixed := map[common.Address]string{}
	for _, st := range r.Steps {
		for _, in := range st.Inputs {
			if in.Amount == "" {
				continue
			}
			tok, err := s.networks.Token(r.Network, in.Token)
			if err != nil {
				return nil, err
			}
			fixed[common.HexToAddress(tok.Address)] = in.Amount
		}
	}

	given := map[common.Address]string{}
	for key, human := range supplied {
		tok, err := s.networks.ResolveToken(ctx, r.Network, key)
		if err != nil {
			return nil, err
		}
		raw, err := parseAmount(human, tok)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", key, err)
		}
		given[common.HexToAddress(tok.Address)] = raw.String()
	}

	var out []engine.TokenAmount
	consumed := map[common.Address]bool{}
	for _, key := range r.InputTokens() {
		tok, err := s.networks.Token(r.Network, key)
		if err != nil {
			return nil, err
		}
		addr := common.HexToAddress(tok.Address)
		consumed[addr] = true
		amt, ok := given[addr]
		if !ok {
			amt, ok = fixed[addr]
		}
		if !ok {
			return nil, fmt.Errorf("%w: amount for %s", ErrMissingInput, tok.Symbol)
		}
		out = append(out, engine.TokenAmount{TokenAddress: tok.Address, Amount: amt})
	}
	for addr := range given {
		if !consumed[addr] {
			return nil, fmt.Errorf("%w: recipe does not consume %s", recipe.ErrInvalidRecipe, addr.Hex())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: recipe has no inputs", recipe.ErrInvalidRecipe)
	}
	return out, nil
}

func mustRaw(s string) *big.Int {
	v, err := amount.ParseRaw(s)
	if err != nil {
		return new(big.Int)
	}
	return v
}
