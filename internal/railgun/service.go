// Package railgun orchestrates wallets, chain access, the protocol engine
// and transaction records into the operations the tool server exposes.
package railgun

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/recipe"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// Errors
var (
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRecipient    = errors.New("invalid recipient address")
	ErrInvalidSlippage     = errors.New("slippage must be between 0 and 50 percent")
	ErrMissingInput        = errors.New("missing recipe input")
	ErrEmptyProof          = errors.New("proof data is required")
)

// Engine is the subset of the engine API the service uses. *engine.Client
// satisfies it.
type Engine interface {
	Configured() bool
	Balances(ctx context.Context, walletID, network string) ([]engine.PrivateBalance, error)
	PopulateShield(ctx context.Context, req engine.ShieldRequest) (*engine.PopulatedTx, error)
	PopulateUnshield(ctx context.Context, req engine.UnshieldRequest) (*engine.PopulatedTx, error)
	PopulateTransfer(ctx context.Context, req engine.TransferRequest) (*engine.PopulatedTx, error)
	PopulateRecipe(ctx context.Context, req engine.RecipeRequest) (*engine.PopulatedTx, error)
	Relayers(ctx context.Context, network string) ([]engine.Relayer, error)
	SubmitToRelayer(ctx context.Context, req engine.SubmitRequest) (*engine.SubmitResponse, error)
	VerifyProof(ctx context.Context, proofData string) (*engine.ProofVerification, error)
}

// Service implements the wallet-facing Railgun operations.
type Service struct {
	wallets  *wallet.Manager
	networks *network.Registry
	chains   *chain.Pool
	engine   Engine
	txns     txn.Store
	recipes  recipe.Store
	tracker  *txn.Tracker
}

// NewService creates a new service.
func NewService(wallets *wallet.Manager, networks *network.Registry, chains *chain.Pool, eng Engine, txns txn.Store) *Service {
	return &Service{
		wallets:  wallets,
		networks: networks,
		chains:   chains,
		engine:   eng,
		txns:     txns,
		recipes:  recipe.NewMemoryStore(),
	}
}

// WithRecipeStore replaces the in-memory recipe store.
func (s *Service) WithRecipeStore(store recipe.Store) *Service {
	s.recipes = store
	return s
}

// WithTracker lets status lookups refresh pending records on demand.
func (s *Service) WithTracker(t *txn.Tracker) *Service {
	s.tracker = t
	return s
}

// Wallets returns the wallet manager.
func (s *Service) Wallets() *wallet.Manager { return s.wallets }

// Networks returns the network registry.
func (s *Service) Networks() *network.Registry { return s.networks }

// EngineConfigured reports whether private operations are available.
func (s *Service) EngineConfigured() bool {
	return s.engine != nil && s.engine.Configured()
}

// resolveNetwork picks the explicit network or falls back to the wallet's.
func (s *Service) resolveNetwork(name string, w *wallet.Wallet) (*network.Network, error) {
	if strings.TrimSpace(name) == "" && w != nil {
		name = w.Network
	}
	return s.networks.Lookup(name)
}

// parseAmount converts a human amount to base units and rejects zero.
func parseAmount(s string, tok network.Token) (*big.Int, error) {
	raw, err := amount.Parse(s, tok.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if raw.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return raw, nil
}

// record persists a transaction record. Store failures are logged, not
// returned: the transaction may already be on chain.
func (s *Service) record(ctx context.Context, r *txn.Record) {
	if err := s.txns.Create(ctx, r); err != nil {
		logging.L(ctx).Warn("failed to record transaction", "id", r.ID, "tx_hash", r.TxHash, "error", err)
	}
}

// GasQuote returns the current fee market on a network.
func (s *Service) GasQuote(ctx context.Context, networkName string) (*network.Network, *chain.GasQuote, error) {
	n, err := s.networks.Lookup(networkName)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.chains.Client(ctx, n.Name)
	if err != nil {
		return nil, nil, err
	}
	quote, err := client.GasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}
	return n, quote, nil
}

// StatusView is a transaction's stored record merged with its chain state.
type StatusView struct {
	Record      *txn.Record
	Chain       *chain.TxState
	Network     string
	ExplorerURL string
}

// TransactionStatus looks a transaction up by record id or hash, refreshing
// pending records from the chain. A positive wait blocks until the
// transaction is mined or the wait elapses.
func (s *Service) TransactionStatus(ctx context.Context, ref, networkName string, wait time.Duration) (*StatusView, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("transaction id or hash is required")
	}

	var rec *txn.Record
	var err error
	if strings.HasPrefix(ref, "0x") {
		rec, err = s.txns.GetByHash(ctx, ref)
	} else {
		rec, err = s.txns.Get(ctx, ref)
	}
	if err != nil && !errors.Is(err, txn.ErrNotFound) {
		return nil, err
	}
	if rec == nil && !strings.HasPrefix(ref, "0x") {
		return nil, fmt.Errorf("%w: %s", txn.ErrNotFound, ref)
	}

	hash := ref
	if rec != nil {
		hash = rec.TxHash
		if networkName == "" {
			networkName = rec.Network
		}
	}
	n, err := s.networks.Lookup(networkName)
	if err != nil {
		return nil, err
	}
	view := &StatusView{Record: rec, Network: n.Name}
	if hash == "" {
		// Relayed and not yet broadcast.
		return view, nil
	}
	view.ExplorerURL = n.TxURL(hash)

	client, err := s.chains.Client(ctx, n.Name)
	if err != nil {
		return nil, err
	}
	st, err := client.TransactionState(ctx, hash)
	if err != nil {
		return nil, err
	}
	if wait > 0 && (st.Status == chain.StatePending || st.Status == chain.StateUnknown) {
		if mined, err := client.WaitForConfirmation(ctx, hash, wait); mined != nil {
			st = mined
		} else if err != nil && !errors.Is(err, chain.ErrTimeout) {
			return nil, err
		}
	}
	view.Chain = st

	if rec != nil && rec.Status == txn.StatusPending && s.tracker != nil {
		if updated, err := s.tracker.Refresh(ctx, rec); err == nil {
			view.Record = updated
		} else {
			logging.L(ctx).Warn("refresh transaction failed", "id", rec.ID, "error", err)
		}
	}
	return view, nil
}

// History lists stored transaction records.
func (s *Service) History(ctx context.Context, q txn.Query) ([]*txn.Record, int, error) {
	if q.WalletID != "" {
		w, err := s.wallets.Get(ctx, q.WalletID)
		if err != nil {
			return nil, 0, err
		}
		q.WalletID = w.ID
	}
	return s.txns.List(ctx, q)
}

// Pending returns a wallet's pending records, oldest first.
func (s *Service) Pending(ctx context.Context, walletRef string) ([]*txn.Record, error) {
	w, err := s.wallets.Get(ctx, walletRef)
	if err != nil {
		return nil, err
	}
	recs, _, err := s.txns.List(ctx, txn.Query{WalletID: w.ID, Status: txn.StatusPending, Limit: txn.MaxLimit})
	if err != nil {
		return nil, err
	}
	// List is newest first.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// VerifyProof asks the engine to verify a serialized proof.
func (s *Service) VerifyProof(ctx context.Context, proofData string) (*engine.ProofVerification, error) {
	if strings.TrimSpace(proofData) == "" {
		return nil, ErrEmptyProof
	}
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	return s.engine.VerifyProof(ctx, proofData)
}

func validAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
