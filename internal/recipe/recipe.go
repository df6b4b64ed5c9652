// Package recipe models multi-step DeFi interactions run from the private
// balance: the engine unshields the inputs, performs the calls and
// reshields the outputs in one proved transaction.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/idgen"
	"github.com/samsavage/railgun-mcp/internal/network"
)

// Errors
var (
	ErrNotFound       = errors.New("recipe not found")
	ErrInvalidRecipe  = errors.New("invalid recipe")
	ErrUnsupportedDEX = errors.New("unsupported dex")
)

// StepType is the kind of call a step performs.
type StepType string

const (
	StepApprove         StepType = "approve"
	StepSwap            StepType = "swap"
	StepTransfer        StepType = "transfer"
	StepShield          StepType = "shield"
	StepUnshield        StepType = "unshield"
	StepAddLiquidity    StepType = "add_liquidity"
	StepRemoveLiquidity StepType = "remove_liquidity"
	StepStake           StepType = "stake"
	StepUnstake         StepType = "unstake"
)

// stepGas is the gas budget per step type.
var stepGas = map[StepType]uint64{
	StepApprove:         46000,
	StepSwap:            180000,
	StepTransfer:        65000,
	StepShield:          200000,
	StepUnshield:        180000,
	StepAddLiquidity:    250000,
	StepRemoveLiquidity: 200000,
	StepStake:           150000,
	StepUnstake:         150000,
}

// BaseGas is the intrinsic cost of any transaction.
const BaseGas = 21000

// MaxSteps bounds a recipe's length.
const MaxSteps = 20

// TokenAmount is a token (symbol or address) and a base-unit amount. An
// empty Amount is filled from the execution inputs.
type TokenAmount struct {
	Token  string `json:"token"`
	Amount string `json:"amount,omitempty"`
}

// Step is one call in a recipe.
type Step struct {
	ID              string         `json:"id"`
	Type            StepType       `json:"type"`
	Description     string         `json:"description,omitempty"`
	Inputs          []TokenAmount  `json:"inputs,omitempty"`
	Outputs         []TokenAmount  `json:"outputs,omitempty"`
	ContractAddress string         `json:"contract_address,omitempty"`
	FunctionName    string         `json:"function_name,omitempty"`
	FunctionArgs    map[string]any `json:"function_args,omitempty"`
}

// Recipe is a named, ordered list of steps on one network.
type Recipe struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Network     string    `json:"network"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
}

// New builds a recipe with fresh ids for it and any step lacking one.
func New(name, description, networkName string, steps []Step) *Recipe {
	r := &Recipe{
		ID:          idgen.WithPrefix(idgen.PrefixRecipe),
		Name:        strings.TrimSpace(name),
		Description: description,
		Network:     networkName,
		Steps:       steps,
		CreatedAt:   time.Now().UTC(),
	}
	for i := range r.Steps {
		if r.Steps[i].ID == "" {
			r.Steps[i].ID = idgen.WithPrefix(idgen.PrefixStep)
		}
		r.Steps[i].Type = StepType(strings.ToLower(string(r.Steps[i].Type)))
	}
	return r
}

// Validate checks the recipe's structure.
func Validate(r *Recipe) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecipe)
	}
	if r.Network == "" {
		return fmt.Errorf("%w: network is required", ErrInvalidRecipe)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidRecipe)
	}
	if len(r.Steps) > MaxSteps {
		return fmt.Errorf("%w: at most %d steps", ErrInvalidRecipe, MaxSteps)
	}
	for i, s := range r.Steps {
		if _, ok := stepGas[s.Type]; !ok {
			return fmt.Errorf("%w: step %d: unknown type %q", ErrInvalidRecipe, i+1, s.Type)
		}
		if s.ContractAddress != "" && !common.IsHexAddress(s.ContractAddress) {
			return fmt.Errorf("%w: step %d: invalid contract address %q", ErrInvalidRecipe, i+1, s.ContractAddress)
		}
		for _, ta := range append(append([]TokenAmount{}, s.Inputs...), s.Outputs...) {
			if strings.TrimSpace(ta.Token) == "" {
				return fmt.Errorf("%w: step %d: token is required", ErrInvalidRecipe, i+1)
			}
			if ta.Amount == "" {
				continue
			}
			if err := positive(ta.Amount); err != nil {
				return fmt.Errorf("%w: step %d: %v", ErrInvalidRecipe, i+1, err)
			}
		}
	}
	return nil
}

func positive(s string) error {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount %q is not a base-unit integer", s)
	}
	if v.Sign() <= 0 {
		return fmt.Errorf("amount %q must be positive", s)
	}
	return nil
}

// Estimate is a recipe gas estimate.
type Estimate struct {
	TotalGas  uint64            `json:"estimated_gas"`
	Breakdown map[string]uint64 `json:"gas_breakdown"`
	CostWei   *big.Int          `json:"-"`
}

// EstimateGas sums the per-step budgets plus the base cost. gasPrice may
// be nil, leaving CostWei nil.
func EstimateGas(r *Recipe, gasPrice *big.Int) Estimate {
	est := Estimate{TotalGas: BaseGas, Breakdown: map[string]uint64{"base": BaseGas}}
	for _, s := range r.Steps {
		g := stepGas[s.Type]
		est.Breakdown[s.ID] = g
		est.TotalGas += g
	}
	if gasPrice != nil {
		est.CostWei = new(big.Int).Mul(new(big.Int).SetUint64(est.TotalGas), gasPrice)
	}
	return est
}

// Routers maps each supported DEX to its router or exchange proxy.
var Routers = map[string]string{
	"0x":        "0xDef1C0ded9bec7F1a1670819833240f027b25EfF",
	"uniswap":   "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
	"sushiswap": "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
}

var swapFunctions = map[string]string{
	"0x":        "transformERC20",
	"uniswap":   "swapExactTokensForTokens",
	"sushiswap": "swapExactTokensForTokens",
}

// NewSwapRecipe builds the unshield, approve, swap, shield template for a
// DEX. The approve step is omitted when selling the native coin.
func NewSwapRecipe(networkName string, sell, buy network.Token, dex string) (*Recipe, error) {
	dex = strings.ToLower(strings.TrimSpace(dex))
	if dex == "" {
		dex = "0x"
	}
	router, ok := Routers[dex]
	if !ok {
		return nil, fmt.Errorf("%w: %q (use 0x, uniswap or sushiswap)", ErrUnsupportedDEX, dex)
	}
	if strings.EqualFold(sell.Address, buy.Address) {
		return nil, fmt.Errorf("%w: sell and buy token are the same", ErrInvalidRecipe)
	}

	steps := []Step{{
		Type:        StepUnshield,
		Description: fmt.Sprintf("Unshield %s from the private balance", sell.Symbol),
		Inputs:      []TokenAmount{{Token: sell.Address}},
	}}
	if !sell.IsNative() {
		steps = append(steps, Step{
			Type:            StepApprove,
			Description:     fmt.Sprintf("Approve %s router to spend %s", dex, sell.Symbol),
			ContractAddress: sell.Address,
			FunctionName:    "approve",
			FunctionArgs:    map[string]any{"spender": router},
		})
	}
	steps = append(steps,
		Step{
			Type:            StepSwap,
			Description:     fmt.Sprintf("Swap %s for %s on %s", sell.Symbol, buy.Symbol, dex),
			Inputs:          []TokenAmount{{Token: sell.Address}},
			Outputs:         []TokenAmount{{Token: buy.Address}},
			ContractAddress: router,
			FunctionName:    swapFunctions[dex],
			FunctionArgs:    map[string]any{"sell_token": sell.Address, "buy_token": buy.Address},
		},
		Step{
			Type:        StepShield,
			Description: fmt.Sprintf("Shield %s back into the private balance", buy.Symbol),
			Outputs:     []TokenAmount{{Token: buy.Address}},
		},
	)

	name := fmt.Sprintf("Swap %s to %s via %s", sell.Symbol, buy.Symbol, dex)
	desc := fmt.Sprintf("Private swap of %s for %s on %s using %s", sell.Symbol, buy.Symbol, networkName, dex)
	return New(name, desc, networkName, steps), nil
}

// InputTokens returns the distinct tokens the recipe consumes, in order.
func (r *Recipe) InputTokens() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.Steps {
		for _, in := range s.Inputs {
			key := strings.ToLower(in.Token)
			if !seen[key] {
				seen[key] = true
				out = append(out, in.Token)
			}
		}
	}
	return out
}

// Store persists recipes.
type Store interface {
	Create(ctx context.Context, r *Recipe) error
	Get(ctx context.Context, id string) (*Recipe, error)
	List(ctx context.Context) ([]*Recipe, error)
}
