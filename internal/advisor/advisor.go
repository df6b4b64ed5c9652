// Package advisor turns balances, gas quotes and transaction history into
// plain-English answers. Everything here is a pure function of its inputs;
// the caller gathers the data.
package advisor

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/txn"
)

// Gas budgets for plain-English actions.
const (
	DefaultActionGas uint64 = 200000
	UnshieldGas      uint64 = 180000
	TokenTransferGas uint64 = 65000
)

var actionGas = map[string]uint64{
	"shield":       200000,
	"unshield":     UnshieldGas,
	"swap":         300000,
	"send":         150000,
	"private_send": 180000,
}

// GasFor returns the gas budget for an action, falling back to the default.
func GasFor(action string) uint64 {
	if g, ok := actionGas[normalizeAction(action)]; ok {
		return g
	}
	return DefaultActionGas
}

func normalizeAction(action string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	return strings.ReplaceAll(a, " ", "_")
}

// Stuck transaction thresholds.
const (
	LowGasPriceGwei = 20
	StuckAfter      = 30 * time.Minute
	SpeedUpPct      = 50
)

// dustThreshold hides balances too small to mention, in whole tokens.
var dustThreshold = decimal.RequireFromString("0.01")

func cost(gas uint64, price *big.Int) *big.Int {
	if price == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
}

func quotePrice(q *chain.GasQuote) *big.Int {
	if q == nil {
		return new(big.Int)
	}
	return q.MaxFee()
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// AffordabilityDetails are the raw figures behind an affordability answer.
type AffordabilityDetails struct {
	TokenBalance     string `json:"token_balance"`
	PrivateBalance   string `json:"private_balance"`
	NativeBalance    string `json:"native_balance"`
	EstimatedGasCost string `json:"estimated_gas_cost"`
	GasNeeded        uint64 `json:"gas_needed"`
	GasPriceGwei     string `json:"gas_price_gwei"`
}

// Affordability answers "can I afford this?".
type Affordability struct {
	CanAfford bool                 `json:"can_afford"`
	Summary   string               `json:"summary"`
	Issues    []string             `json:"issues,omitempty"`
	Details   AffordabilityDetails `json:"details"`
}

// CheckAffordability checks that the wallet holds raw of tok across its
// public and private balances, and enough public native coin for the
// action's gas. Spending the native coin itself counts against the same
// public balance as the gas.
func CheckAffordability(b *railgun.Balances, q *chain.GasQuote, action string, tok network.Token, raw *big.Int) *Affordability {
	price := quotePrice(q)
	gas := GasFor(action)
	gasCost := cost(gas, price)

	held, _ := b.Find(tok.Address)
	public, private := orZero(held.Public), orZero(held.Private)
	native := b.Native()
	nativePublic := orZero(native.Public)

	out := &Affordability{
		Details: AffordabilityDetails{
			TokenBalance:     amount.Format(public, tok.Decimals),
			PrivateBalance:   amount.Format(private, tok.Decimals),
			NativeBalance:    amount.Format(nativePublic, 18),
			EstimatedGasCost: amount.Format(gasCost, 18),
			GasNeeded:        gas,
			GasPriceGwei:     amount.ToGwei(price).StringFixed(2),
		},
	}

	if raw != nil && raw.Cmp(held.Total()) > 0 {
		out.Issues = append(out.Issues, fmt.Sprintf("Not enough %s. You have %s public + %s private",
			tok.Symbol, out.Details.TokenBalance, out.Details.PrivateBalance))
	}

	needNative := new(big.Int).Set(gasCost)
	if tok.IsNative() && raw != nil && raw.Cmp(private) > 0 {
		needNative.Add(needNative, new(big.Int).Sub(raw, private))
	}
	if nativePublic.Cmp(needNative) < 0 {
		sym := native.Token.Symbol
		if sym == "" {
			sym = "native coin"
		}
		out.Issues = append(out.Issues, fmt.Sprintf("Not enough %s for gas. Need %s %s, have %s %s",
			sym, amount.FormatFixed(needNative, 18, 4), sym, amount.FormatFixed(nativePublic, 18, 4), sym))
	}

	out.CanAfford = len(out.Issues) == 0
	if out.CanAfford {
		out.Summary = "You're good to go!"
	} else {
		out.Summary = strings.Join(out.Issues, " AND ")
	}
	return out
}

type explanation struct {
	reason string
	tip    string
}

var explanations = map[string]explanation{
	"shield": {
		reason: "Shielding creates a zero-knowledge proof and adds your tokens to the private pool. It's like putting money in a safe that proves you own it without showing what's inside.",
		tip:    "Shield larger amounts less frequently to save on gas",
	},
	"unshield": {
		reason: "Unshielding removes tokens from the private pool while keeping your history private. It's like taking money out of the safe without revealing who you are.",
		tip:    "Batch your unshields if possible",
	},
	"swap": {
		reason: "Private swaps unshield your tokens, swap them and re-shield the result in one transaction, so you pay for all three.",
		tip:    "Swap larger amounts to make the gas worthwhile",
	},
}

var defaultExplanation = explanation{
	reason: "Railgun uses advanced cryptography to keep your transactions private.",
	tip:    "Private transactions cost more but protect your financial privacy",
}

// CheaperTimes is when gas is usually cheapest.
const CheaperTimes = "Usually late night US time or weekends"

// CostExplanation answers "why is this so expensive?".
type CostExplanation struct {
	Action           string `json:"action"`
	Explanation      string `json:"explanation"`
	GasNeeded        uint64 `json:"gas_needed"`
	CurrentGasPrice  string `json:"current_gas_price"`
	EstimatedCost    string `json:"estimated_cost"`
	EstimatedCostUSD string `json:"estimated_cost_usd"`
	MoneySavingTip   string `json:"money_saving_tip"`
	CheaperTimes     string `json:"cheaper_times"`
}

// ExplainCost prices an action at the quoted gas price. nativeUSD is the
// native coin's USD price.
func ExplainCost(action string, q *chain.GasQuote, nativeSymbol string, nativeUSD float64) *CostExplanation {
	info, ok := explanations[normalizeAction(action)]
	if !ok {
		info = defaultExplanation
	}
	price := quotePrice(q)
	gas := GasFor(action)
	wei := cost(gas, price)
	usd := amount.ToDecimal(wei, 18).Mul(decimal.NewFromFloat(nativeUSD))

	return &CostExplanation{
		Action:           normalizeAction(action),
		Explanation:      info.reason,
		GasNeeded:        gas,
		CurrentGasPrice:  amount.ToGwei(price).StringFixed(1) + " gwei",
		EstimatedCost:    amount.FormatFixed(wei, 18, 6) + " " + nativeSymbol,
		EstimatedCostUSD: "$" + usd.StringFixed(2),
		MoneySavingTip:   info.tip,
		CheaperTimes:     CheaperTimes,
	}
}

// TokenLocation is where one token sits.
type TokenLocation struct {
	Symbol  string `json:"symbol"`
	Public  string `json:"public"`
	Private string `json:"private"`
	Total   string `json:"total"`
}

// Locations answers "where are my tokens?".
type Locations struct {
	Summary     []string        `json:"summary"`
	Tokens      []TokenLocation `json:"tokens"`
	TotalTokens int             `json:"total_tokens"`
	Advice      string          `json:"advice"`
}

// LocateTokens describes every token holding above dust, split between the
// public balance and the private pool.
func LocateTokens(b *railgun.Balances) *Locations {
	out := &Locations{}
	anyPublic := false
	for _, t := range b.Tokens {
		pub := amount.ToDecimal(t.Public, t.Token.Decimals)
		priv := amount.ToDecimal(t.Private, t.Token.Decimals)
		total := pub.Add(priv)
		if pub.IsPositive() {
			anyPublic = true
		}
		if total.LessThanOrEqual(dustThreshold) {
			continue
		}
		sym := t.Token.Symbol
		var line string
		switch {
		case pub.IsPositive() && priv.IsPositive():
			line = fmt.Sprintf("%s %s (%s public + %s private)", total.StringFixed(2), sym, pub.StringFixed(2), priv.StringFixed(2))
		case priv.IsPositive():
			line = fmt.Sprintf("%s %s (all private)", priv.StringFixed(2), sym)
		default:
			line = fmt.Sprintf("%s %s (all public)", pub.StringFixed(2), sym)
		}
		out.Summary = append(out.Summary, line)
		out.Tokens = append(out.Tokens, TokenLocation{
			Symbol:  sym,
			Public:  pub.String(),
			Private: priv.String(),
			Total:   total.String(),
		})
	}
	out.TotalTokens = len(out.Tokens)
	if len(out.Summary) == 0 {
		out.Summary = []string{"No tokens found"}
	}
	if anyPublic {
		out.Advice = "Shield tokens to make them private"
	} else {
		out.Advice = "Your tokens are private!"
	}
	return out
}

// StuckTransaction is the diagnosis of the oldest pending transaction.
type StuckTransaction struct {
	ID            string   `json:"id"`
	Type          txn.Type `json:"type"`
	TxHash        string   `json:"tx_hash,omitempty"`
	AgeMinutes    int      `json:"age_minutes"`
	GasPriceGwei  string   `json:"gas_price_gwei"`
	SuggestedGwei string   `json:"suggested_gas_price_gwei"`
}

// Diagnosis answers "fix my stuck transaction".
type Diagnosis struct {
	Stuck         bool              `json:"stuck"`
	Message       string            `json:"message,omitempty"`
	Transaction   *StuckTransaction `json:"stuck_transaction,omitempty"`
	Solutions     []string          `json:"solutions,omitempty"`
	QuickFix      string            `json:"quick_fix,omitempty"`
	PreventFuture string            `json:"prevent_future,omitempty"`
}

// DiagnoseStuck looks at the oldest pending record. Its gas price is too
// low when under 20 gwei or under the current base fee.
func DiagnoseStuck(records []*txn.Record, q *chain.GasQuote, now time.Time) *Diagnosis {
	var pending []*txn.Record
	for _, r := range records {
		if r.Status == txn.StatusPending {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return &Diagnosis{Message: "No stuck transactions found! You're all good"}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	r := pending[0]

	price, ok := new(big.Int).SetString(r.GasPrice, 10)
	if !ok {
		price = new(big.Int)
	}
	age := now.Sub(r.CreatedAt)
	if age < 0 {
		age = 0
	}

	var solutions []string
	floor := amount.FromGwei(decimal.NewFromInt(LowGasPriceGwei))
	if q != nil && q.BaseFee != nil && q.BaseFee.Cmp(floor) > 0 {
		floor = q.BaseFee
	}
	if price.Cmp(floor) < 0 {
		solutions = append(solutions, "Gas price too low. Need to speed up with higher gas.")
	}
	if age > StuckAfter {
		solutions = append(solutions, "Transaction is old. May need to cancel and retry.")
	}
	if len(solutions) == 0 {
		solutions = append(solutions, "Nothing looks wrong yet. Give it a few more minutes.")
	}

	bumped := new(big.Int).Mul(price, big.NewInt(100+SpeedUpPct))
	bumped.Div(bumped, big.NewInt(100))
	if current := quotePrice(q); bumped.Cmp(current) < 0 {
		bumped = current
	}

	return &Diagnosis{
		Stuck: true,
		Transaction: &StuckTransaction{
			ID:            r.ID,
			Type:          r.Type,
			TxHash:        r.TxHash,
			AgeMinutes:    int(age.Minutes()),
			GasPriceGwei:  amount.ToGwei(price).StringFixed(2),
			SuggestedGwei: amount.ToGwei(bumped).StringFixed(2),
		},
		Solutions:     solutions,
		QuickFix:      fmt.Sprintf("Try cancelling and resending with %d%% higher gas price", SpeedUpPct),
		PreventFuture: "Always check gas prices before sending",
	}
}

// Privacy score deductions.
const (
	publicHeavyPenalty    = 30
	fewRecipientsPenalty  = 20
	regularTimingPenalty  = 10
	minDistinctRecipients = 3
	minDistinctHours      = 5
)

// NextSteps are general privacy habits.
var NextSteps = []string{
	"Shield remaining public tokens",
	"Use multiple wallets for different purposes",
	"Add delays between related transactions",
	"Use relayers for maximum privacy",
}

// PrivacyReport answers "how private am I?".
type PrivacyReport struct {
	Score     int      `json:"score"`
	Rating    string   `json:"privacy_score"`
	Tips      []string `json:"tips"`
	NextSteps []string `json:"next_steps"`
}

// PrivacyScore starts at 100 and deducts for public-heavy holdings,
// repeated recipients and transactions clustered at the same hours.
func PrivacyScore(b *railgun.Balances, records []*txn.Record) *PrivacyReport {
	score := 100
	var tips []string

	public, private := decimal.Zero, decimal.Zero
	for _, t := range b.Tokens {
		public = public.Add(amount.ToDecimal(t.Public, t.Token.Decimals))
		private = private.Add(amount.ToDecimal(t.Private, t.Token.Decimals))
	}
	if public.GreaterThan(private) {
		score -= publicHeavyPenalty
		tips = append(tips, "Most of your funds are public! Shield them for privacy.")
	}

	recipients := map[string]bool{}
	hours := map[int]bool{}
	for _, r := range records {
		if r.Type == txn.TypeApprove {
			continue
		}
		if r.Recipient != "" {
			recipients[strings.ToLower(r.Recipient)] = true
		}
		hours[r.CreatedAt.UTC().Hour()] = true
	}
	if len(recipients) < minDistinctRecipients {
		score -= fewRecipientsPenalty
		tips = append(tips, "You're sending to the same addresses repeatedly. Mix it up!")
	}
	if len(hours) < minDistinctHours {
		score -= regularTimingPenalty
		tips = append(tips, "You transact at similar times. Vary your schedule.")
	}
	if len(tips) == 0 {
		tips = append(tips, "Great job! Your privacy practices are solid!")
	}

	return &PrivacyReport{
		Score:     score,
		Rating:    fmt.Sprintf("%d/100", score),
		Tips:      tips,
		NextSteps: append([]string(nil), NextSteps...),
	}
}

// ExitStep moves one balance out.
type ExitStep struct {
	Type        txn.Type `json:"type"`
	Token       string   `json:"token"`
	Amount      string   `json:"amount"`
	GasEstimate uint64   `json:"gas_estimate"`
}

// ExitPlan is an emergency exit, planned but not executed.
type ExitPlan struct {
	Destination   string     `json:"destination"`
	Steps         []ExitStep `json:"steps"`
	TokensToMove  []string   `json:"tokens_to_move"`
	TotalGas      uint64     `json:"total_gas"`
	EstimatedCost string     `json:"estimated_cost"`
	EstimatedTime string     `json:"estimated_time"`
	Warning       string     `json:"warning"`
}

// minutesPerExitStep is the rough confirmation time of one exit step.
const minutesPerExitStep = 2

// PlanEmergencyExit unshields every private balance and transfers every
// non-native public token to destination. The native coin stays behind to
// pay for gas.
func PlanEmergencyExit(b *railgun.Balances, q *chain.GasQuote, nativeSymbol, destination string) *ExitPlan {
	plan := &ExitPlan{
		Destination: destination,
		Warning:     "This will move ALL funds and reduce privacy!",
	}
	for _, t := range b.Tokens {
		if t.Private != nil && t.Private.Sign() > 0 {
			plan.Steps = append(plan.Steps, ExitStep{
				Type:        txn.TypeUnshield,
				Token:       t.Token.Symbol,
				Amount:      amount.Format(t.Private, t.Token.Decimals),
				GasEstimate: UnshieldGas,
			})
		}
	}
	for _, t := range b.Tokens {
		if t.Token.IsNative() || t.Public == nil || t.Public.Sign() <= 0 {
			continue
		}
		plan.Steps = append(plan.Steps, ExitStep{
			Type:        txn.TypeTransfer,
			Token:       t.Token.Symbol,
			Amount:      amount.Format(t.Public, t.Token.Decimals),
			GasEstimate: TokenTransferGas,
		})
	}

	seen := map[string]bool{}
	for _, s := range plan.Steps {
		plan.TotalGas += s.GasEstimate
		if !seen[s.Token] {
			seen[s.Token] = true
			plan.TokensToMove = append(plan.TokensToMove, s.Token)
		}
	}
	plan.EstimatedCost = amount.FormatFixed(cost(plan.TotalGas, quotePrice(q)), 18, 4) + " " + nativeSymbol
	plan.EstimatedTime = fmt.Sprintf("%d minutes", len(plan.Steps)*minutesPerExitStep)
	return plan
}
