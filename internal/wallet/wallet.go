// Package wallet manages local Railgun wallets: generation and import,
// sealed storage of the mnemonic, unlocking to a key set, and registration
// with the engine.
package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samsavage/railgun-mcp/internal/vault"
)

// Errors
var (
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrWalletExists     = errors.New("wallet already exists")
	ErrPasswordRequired = errors.New("password required: pass one or set RAILGUN_WALLET_PASSWORD")
	ErrInvalidSecret    = errors.New("secret must be a BIP-39 mnemonic or a 64-character hex private key")
)

// Source records how a wallet entered the store.
type Source string

const (
	SourceCreated  Source = "created"
	SourceImported Source = "imported"
)

// Wallet is a stored wallet. The mnemonic only exists sealed.
type Wallet struct {
	ID             string       `json:"id"`
	Label          string       `json:"label,omitempty"`
	Network        string       `json:"network"`
	Index          uint32       `json:"index"`
	Address0x      string       `json:"address_0x"`
	Address0zk     string       `json:"address_0zk"`
	EngineWalletID string       `json:"engine_wallet_id,omitempty"`
	Sealed         vault.Sealed `json:"sealed"`
	Source         Source       `json:"source"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Matches reports whether ref names this wallet by id, 0x or 0zk address.
func (w *Wallet) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == w.ID ||
		strings.EqualFold(ref, w.Address0x) ||
		strings.EqualFold(ref, w.Address0zk)
}

// Public is the view of a wallet returned to tool callers.
type Public struct {
	ID           string    `json:"wallet_id"`
	Label        string    `json:"label,omitempty"`
	Network      string    `json:"network"`
	Address0x    string    `json:"public_address"`
	Address0zk   string    `json:"railgun_address"`
	EngineLoaded bool      `json:"engine_loaded"`
	Source       Source    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips the sealed secret.
func (w *Wallet) Public() Public {
	return Public{
		ID:           w.ID,
		Label:        w.Label,
		Network:      w.Network,
		Address0x:    w.Address0x,
		Address0zk:   w.Address0zk,
		EngineLoaded: w.EngineWalletID != "",
		Source:       w.Source,
		CreatedAt:    w.CreatedAt,
	}
}

// secret is the plaintext sealed in the vault.
type secret struct {
	Mnemonic   string `json:"mnemonic"`
	PrivateKey string `json:"private_key,omitempty"`
}

// Store persists wallets.
type Store interface {
	Create(ctx context.Context, w *Wallet) error
	Get(ctx context.Context, id string) (*Wallet, error)
	List(ctx context.Context) ([]*Wallet, error)
	Update(ctx context.Context, w *Wallet) error
}
