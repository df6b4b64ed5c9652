package multiwallet

import (
	"context"
	"fmt"
	"time"
)

// Mixing bounds.
const (
	MaxMixRounds     = 10
	DefaultMixRounds = 3
	DefaultMixDelay  = 30 * time.Second
)

// MixRequest asks for a mixing schedule between wallets.
type MixRequest struct {
	Wallets []string
	Network string
	Token   string
	Rounds  int
	Delay   time.Duration
}

// Hop is one scheduled private transfer between two wallets of the set.
type Hop struct {
	Round      int    `json:"round"`
	FromWallet string `json:"from_wallet"`
	ToWallet   string `json:"to_wallet"`
	To0zk      string `json:"to_address"`
	AfterSecs  int64  `json:"after_seconds"`
}

// MixPlan is a round-robin schedule of hops.
type MixPlan struct {
	Token         string        `json:"token"`
	Wallets       int           `json:"wallets"`
	Rounds        int           `json:"rounds"`
	Hops          []Hop         `json:"hops"`
	EstimatedTime time.Duration `json:"-"`
}

// PlanMix schedules rounds of hops in which every wallet sends once per
// round. In round r wallet i sends to wallet i+1+(r mod (n-1)), so no wallet
// sends to itself and successive rounds pair wallets differently. Hops are
// spaced delay apart, giving an estimated time of rounds × delay × wallets.
func (s *Service) PlanMix(ctx context.Context, req MixRequest) (*MixPlan, error) {
	if len(req.Wallets) < 2 {
		return nil, ErrTooFewWallets
	}
	rounds := req.Rounds
	if rounds == 0 {
		rounds = DefaultMixRounds
	}
	if rounds < 1 || rounds > MaxMixRounds {
		return nil, ErrMixRounds
	}
	if req.Delay < 0 {
		return nil, ErrMixDelay
	}

	ids := make([]string, len(req.Wallets))
	addrs := make([]string, len(req.Wallets))
	seen := map[string]bool{}
	networkName := req.Network
	for i, ref := range req.Wallets {
		w, err := s.rail.Wallets().Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", ref, err)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrTooFewWallets, w.ID)
		}
		seen[w.ID] = true
		ids[i], addrs[i] = w.ID, w.Address0zk
		if networkName == "" {
			networkName = w.Network
		}
	}
	tok, err := s.rail.Networks().ResolveToken(ctx, networkName, req.Token)
	if err != nil {
		return nil, err
	}

	n := len(ids)
	plan := &MixPlan{
		Token:         tok.Symbol,
		Wallets:       n,
		Rounds:        rounds,
		EstimatedTime: time.Duration(rounds*n) * req.Delay,
	}
	step := int64(0)
	for r := range rounds {
		shift := 1 + r%(n-1)
		for i := range n {
			j := (i + shift) % n
			plan.Hops = append(plan.Hops, Hop{
				Round:      r + 1,
				FromWallet: ids[i],
				ToWallet:   ids[j],
				To0zk:      addrs[j],
				AfterSecs:  step * int64(req.Delay/time.Second),
			})
			step++
		}
	}
	return plan, nil
}
