package railgun

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/txn"
)

// Relayers lists relayers on a network, most reliable first.
func (s *Service) Relayers(ctx context.Context, networkName string) ([]engine.Relayer, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	n, err := s.networks.Lookup(networkName)
	if err != nil {
		return nil, err
	}
	relayers, err := s.engine.Relayers(ctx, n.Name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(relayers, func(i, j int) bool { return relayers[i].Reliability > relayers[j].Reliability })
	return relayers, nil
}

// RelaySubmitRequest hands signed or populated transaction data to a
// relayer.
type RelaySubmitRequest struct {
	RelayerID       string
	Network         string
	TransactionData string // 0x hex
	Priority        string // slow, normal, fast
	Wallet          string // optional; records the submission
}

// SubmitToRelayer forwards transaction data to a relayer.
func (s *Service) SubmitToRelayer(ctx context.Context, req RelaySubmitRequest) (*engine.SubmitResponse, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	if strings.TrimSpace(req.RelayerID) == "" {
		return nil, fmt.Errorf("relayer_id is required")
	}
	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = DefaultRelayPriority
	}
	if !relayPriorities[priority] {
		return nil, fmt.Errorf("invalid priority %q (use slow, normal or fast)", req.Priority)
	}
	if _, err := hexutil.Decode(req.TransactionData); err != nil {
		return nil, fmt.Errorf("transaction_data must be 0x-prefixed hex: %w", err)
	}
	n, err := s.networks.Lookup(req.Network)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.SubmitToRelayer(ctx, engine.SubmitRequest{
		RelayerID:       req.RelayerID,
		Network:         n.Name,
		TransactionData: req.TransactionData,
		Priority:        priority,
	})
	if err != nil {
		return nil, err
	}

	if req.Wallet != "" {
		w, err := s.wallets.Get(ctx, req.Wallet)
		if err != nil {
			return resp, err
		}
		rec := txn.New(w.ID, n.Name, txn.TypePrivateTransfer)
		rec.RelayerTxID = resp.RelayerTransactionID
		rec.TxHash = resp.TxHash
		rec.Memo = "relayer " + req.RelayerID
		s.record(ctx, rec)
	}
	return resp, nil
}
