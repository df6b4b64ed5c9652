package txn

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/metrics"
)

// StateReader reads on-chain transaction status. *chain.Pool satisfies it.
type StateReader interface {
	TransactionState(ctx context.Context, network, hash string) (*chain.TxState, error)
}

// TrackerConfig for the pending-transaction tracker.
type TrackerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxPendingAge marks a record failed once it has been pending this
	// long without a receipt. Zero keeps records pending indefinitely.
	MaxPendingAge time.Duration
}

// DefaultTrackerConfig returns sensible defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PollInterval:  15 * time.Second,
		BatchSize:     100,
		MaxPendingAge: 24 * time.Hour,
	}
}

// Tracker polls pending records and moves them to confirmed or failed once
// a receipt appears.
type Tracker struct {
	store  Store
	chain  StateReader
	config TrackerConfig
	logger *slog.Logger
	now    func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewTracker creates a tracker. Call Start to begin polling.
func NewTracker(store Store, reader StateReader, cfg TrackerConfig, logger *slog.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultTrackerConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultTrackerConfig().BatchSize
	}
	return &Tracker{
		store:  store,
		chain:  reader,
		config: cfg,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// WithClock replaces time.Now (for tests).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Start begins polling in a goroutine.
func (t *Tracker) Start(ctx context.Context) {
	t.logger.Info("transaction tracker started", "interval", t.config.PollInterval)
	go t.pollLoop(ctx)
}

// Stop stops the tracker and waits for the loop to exit.
func (t *Tracker) Stop() {
	close(t.stop)
	<-t.done
}

func (t *Tracker) pollLoop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			if err := t.Poll(ctx); err != nil {
				t.logger.Error("transaction poll failed", "error", err)
			}
		}
	}
}

// Poll checks one batch of pending records. Records still pending are
// touched so the next batch starts with the ones checked least recently,
// and records pending past MaxPendingAge are marked failed.
func (t *Tracker) Poll(ctx context.Context) error {
	recs, err := t.store.Pending(ctx, t.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	still := 0
	for _, r := range recs {
		updated, err := t.Refresh(ctx, r)
		if err != nil {
			t.logger.Warn("transaction refresh failed", "id", r.ID, "tx_hash", r.TxHash, "error", err)
		}
		if updated.Status != StatusPending {
			continue
		}
		now := t.now().UTC()
		if t.config.MaxPendingAge > 0 && updated.Age(now) > t.config.MaxPendingAge {
			if err := t.expire(ctx, updated, now); err != nil {
				t.logger.Warn("transaction expire failed", "id", r.ID, "error", err)
			}
			continue
		}
		still++
		if err := t.touch(ctx, updated.ID, now); err != nil {
			t.logger.Warn("transaction touch failed", "id", r.ID, "error", err)
		}
	}
	metrics.PendingTransactions.Set(float64(still))
	return nil
}

// touch re-reads the record so a concurrent update is not overwritten,
// then bumps UpdatedAt.
func (t *Tracker) touch(ctx context.Context, id string, now time.Time) error {
	cur, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status != StatusPending {
		return nil
	}
	cur.UpdatedAt = now
	return t.store.Update(ctx, cur)
}

// expire gives up on a record that never produced a receipt.
func (t *Tracker) expire(ctx context.Context, r *Record, now time.Time) error {
	r.Status = StatusFailed
	if r.TxHash == "" {
		r.Error = fmt.Sprintf("relayer never reported a transaction hash within %s", t.config.MaxPendingAge)
	} else {
		r.Error = fmt.Sprintf("no receipt within %s; the transaction was likely dropped or replaced", t.config.MaxPendingAge)
	}
	r.UpdatedAt = now
	if err := t.store.Update(ctx, r); err != nil {
		return err
	}
	metrics.TransactionsTotal.WithLabelValues(string(r.Type), string(r.Status)).Inc()
	t.logger.Warn("transaction expired", "id", r.ID, "type", r.Type, "tx_hash", r.TxHash, "age", r.Age(now))
	return nil
}

// Refresh reads the chain for a pending record and persists any change.
// Records without a hash (relayed, not yet broadcast) stay pending.
func (t *Tracker) Refresh(ctx context.Context, r *Record) (*Record, error) {
	if r.Status.Final() || r.TxHash == "" {
		return r, nil
	}
	st, err := t.chain.TransactionState(ctx, r.Network, r.TxHash)
	if err != nil {
		return r, err
	}

	switch st.Status {
	case chain.StateConfirmed:
		r.Status = StatusConfirmed
	case chain.StateFailed:
		r.Status = StatusFailed
		r.Error = "transaction reverted"
	default:
		return r, nil
	}
	r.GasUsed = st.GasUsed
	r.BlockNumber = st.BlockNumber
	if st.EffectiveGasPrice != nil && st.EffectiveGasPrice.Cmp(big.NewInt(0)) > 0 {
		r.GasPrice = st.EffectiveGasPrice.String()
	}
	r.UpdatedAt = t.now().UTC()

	if err := t.store.Update(ctx, r); err != nil {
		return r, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(r.Type), string(r.Status)).Inc()
	t.logger.Info("transaction settled",
		"id", r.ID, "type", r.Type, "status", r.Status, "tx_hash", r.TxHash, "block", r.BlockNumber)
	return r, nil
}
