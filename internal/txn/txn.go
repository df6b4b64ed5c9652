// Package txn records the transactions this server submits and tracks them
// to a final on-chain status.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samsavage/railgun-mcp/internal/idgen"
)

// Errors
var (
	ErrNotFound      = errors.New("transaction not found")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidStatus = errors.New("invalid transaction status")
)

// Type is the kind of transaction.
type Type string

const (
	TypeShield          Type = "shield"
	TypeUnshield        Type = "unshield"
	TypePrivateTransfer Type = "private_transfer"
	TypeRecipe          Type = "recipe"
	TypeTransfer        Type = "transfer"
	TypeApprove         Type = "approve"
)

var validTypes = map[Type]bool{
	TypeShield: true, TypeUnshield: true, TypePrivateTransfer: true,
	TypeRecipe: true, TypeTransfer: true, TypeApprove: true,
}

// ParseType validates a type filter. Empty is allowed and means any.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" || validTypes[t] {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status filter. Empty is allowed and means any.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "", StatusPending, StatusConfirmed, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Final reports whether the status can no longer change.
func (s Status) Final() bool {
	return s != StatusPending
}

// Record is one submitted transaction. Amount and GasPrice are base-unit
// integers as decimal strings.
type Record struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	Network     string    `json:"network"`
	Type        Type      `json:"type"`
	Token       string    `json:"token,omitempty"`
	TokenSymbol string    `json:"token_symbol,omitempty"`
	Amount      string    `json:"amount"`
	Recipient   string    `json:"recipient,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	RelayerTxID string    `json:"relayer_tx_id,omitempty"`
	Status      Status    `json:"status"`
	GasPrice    string    `json:"gas_price,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Memo        string    `json:"memo,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New returns a pending record with a fresh id.
func New(walletID, network string, typ Type) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        idgen.WithPrefix(idgen.PrefixTransaction),
		WalletID:  walletID,
		Network:   network,
		Type:      typ,
		Amount:    "0",
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Age is the time since submission.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Query filters a history listing.
type Query struct {
	WalletID string
	Type     Type
	Status   Status
	Limit    int
	Offset   int
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Normalize clamps Limit and Offset into range.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func (q Query) matches(r *Record) bool {
	return (q.WalletID == "" || r.WalletID == q.WalletID) &&
		(q.Type == "" || r.Type == q.Type) &&
		(q.Status == "" || r.Status == q.Status)
}

// Store persists transaction records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetByHash(ctx context.Context, hash string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	// List returns one page, newest first, plus the total match count.
	List(ctx context.Context, q Query) ([]*Record, int, error)
	// Pending returns up to limit pending records, least recently
	// checked (UpdatedAt) first.
	Pending(ctx context.Context, limit int) ([]*Record, error)
}

// page filters, sorts newest first and slices in memory.
func page(all []*Record, q Query) ([]*Record, int) {
	q = q.Normalize()
	var matched []*Record
	for _, r := range all {
		if q.matches(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if q.Offset >= total {
		return []*Record{}, total
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return matched[q.Offset:end], total
}

func pending(all []*Record, limit int) []*Record {
	var out []*Record
	for _, r := range all {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
