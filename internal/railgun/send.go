package railgun

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/keys"
	"github.com/samsavage/railgun-mcp/internal/logging"
)

// Send modes.
const (
	ModePrivate = "private"
	ModePublic  = "public"
)

// SendMoneyRequest is a one-line send such as "10 USDC" to an address.
type SendMoneyRequest struct {
	Wallet   string
	Password string
	Network  string
	Amount   string // "<value> <symbol>"; a bare value means the native coin
	To       string
	Private  bool
}

// SendMoneyResult reports what SendMoney did.
type SendMoneyResult struct {
	Mode     string
	Steps    []string
	Shield   *Result
	Transfer *Result // private transfer, public transfer or the unshield leg
}

// SendMoney picks the right path for a send. A 0zk recipient always goes
// privately, topping up the private balance with a shield of the shortfall
// first. A 0x recipient goes publicly unless privacy was asked for, in which
// case the funds are shielded as needed and unshielded to the recipient.
func (s *Service) SendMoney(ctx context.Context, req SendMoneyRequest) (*SendMoneyResult, error) {
	value, symbol, err := amount.Split(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount should look like \"10 USDC\": %w", err)
	}
	to := strings.TrimSpace(req.To)
	zk := keys.IsRailgunAddress(to)

	w, err := s.wallets.Get(ctx, req.Wallet)
	if err != nil {
		return nil, err
	}
	n, err := s.resolveNetwork(req.Network, w)
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		symbol = n.NativeSymbol
	}
	o, err := s.resolve(ctx, w.ID, req.Password, n.Name, symbol, value)
	if err != nil {
		return nil, err
	}

	switch {
	case zk:
		return s.sendPrivately(ctx, o, req.Password, to)
	case !validAddress(to):
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, to)
	case req.Private:
		return s.sendPrivately(ctx, o, req.Password, to)
	}

	res, err := s.transfer(ctx, o, common.HexToAddress(to))
	if err != nil {
		return nil, err
	}
	return &SendMoneyResult{
		Mode:     ModePublic,
		Steps:    []string{fmt.Sprintf("Sent %s %s publicly to %s", o.human, o.tok.Symbol, to)},
		Transfer: res,
	}, nil
}

func (s *Service) sendPrivately(ctx context.Context, o *op, password, to string) (*SendMoneyResult, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	engineID, err := s.wallets.EnsureEngineWallet(ctx, o.w, password)
	if err != nil {
		return nil, err
	}
	out := &SendMoneyResult{Mode: ModePrivate}

	have, err := s.privateBalance(ctx, engineID, o)
	if err != nil {
		return nil, fmt.Errorf("read private balance: %w", err)
	}
	if have.Cmp(o.raw) < 0 {
		shortfall := new(big.Int).Sub(o.raw, have)
		top := *o
		top.raw = shortfall
		top.human = amount.Format(shortfall, o.tok.Decimals)
		logging.L(ctx).Info("shielding shortfall before private send",
			"wallet_id", o.w.ID, "token", o.tok.Symbol, "shortfall", top.human)
		res, err := s.shield(ctx, &top)
		if err != nil {
			return nil, fmt.Errorf("shield shortfall of %s %s: %w", top.human, o.tok.Symbol, err)
		}
		out.Shield = res
		o.toppedUp = true
		out.Steps = append(out.Steps, fmt.Sprintf("Shielded %s %s to cover the private balance", top.human, o.tok.Symbol))
	}

	step, verb := "private transfer", "Sent %s %s privately to %s"
	var res *Result
	if keys.IsRailgunAddress(to) {
		res, err = s.privateTransfer(ctx, o, PrivateTransferRequest{Password: password, Recipient: to})
	} else {
		step, verb = "unshield", "Unshielded %s %s to %s"
		res, err = s.unshield(ctx, o, password, to, "")
	}
	if err != nil {
		if out.Shield != nil {
			return out, fmt.Errorf("shield %s sent, %s failed: %w", out.Shield.TxHash, step, err)
		}
		return nil, err
	}
	out.Transfer = res
	out.Steps = append(out.Steps, fmt.Sprintf(verb, o.human, o.tok.Symbol, to))
	return out, nil
}
