package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/idgen"
	"github.com/samsavage/railgun-mcp/internal/keys"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/metrics"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/vault"
)

// Registrar loads wallets into the engine. *engine.Client satisfies it.
type Registrar interface {
	Configured() bool
	LoadWallet(ctx context.Context, req engine.LoadWalletRequest) (*engine.LoadWalletResponse, error)
}

// CreateRequest contains the parameters for generating a wallet.
type CreateRequest struct {
	Network  string
	Password string
	Label    string
}

// ImportRequest contains the parameters for importing a wallet.
type ImportRequest struct {
	Secret   string // mnemonic or hex private key
	Network  string
	Password string
	Label    string
	Index    uint32 // derivation index for mnemonics
}

// Manager creates, imports and unlocks wallets.
type Manager struct {
	store           Store
	networks        *network.Registry
	engine          Registrar
	defaultPassword string
	vaultParams     vault.Params
}

// NewManager creates a wallet manager. eng may be nil when no engine is
// configured; private operations then fail with engine.ErrNotConfigured.
func NewManager(store Store, networks *network.Registry, eng Registrar, defaultPassword string) *Manager {
	return &Manager{
		store:           store,
		networks:        networks,
		engine:          eng,
		defaultPassword: defaultPassword,
		vaultParams:     vault.DefaultParams,
	}
}

// WithVaultParams overrides the scrypt costs for new wallets.
func (m *Manager) WithVaultParams(p vault.Params) *Manager {
	m.vaultParams = p
	return m
}

// Create generates a new wallet with a fresh 12-word mnemonic.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Wallet, error) {
	n, err := m.networks.Lookup(req.Network)
	if err != nil {
		return nil, err
	}
	password, err := m.password(req.Password)
	if err != nil {
		return nil, err
	}
	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		return nil, err
	}
	return m.save(ctx, n.Name, secret{Mnemonic: mnemonic}, 0, password, req.Label, SourceCreated)
}

// Import stores a wallet from a mnemonic or a raw private key. A raw key
// stays the public signer; its bytes seed the mnemonic for Railgun keys.
func (m *Manager) Import(ctx context.Context, req ImportRequest) (*Wallet, error) {
	n, err := m.networks.Lookup(req.Network)
	if err != nil {
		return nil, err
	}
	password, err := m.password(req.Password)
	if err != nil {
		return nil, err
	}

	var sec secret
	raw := strings.TrimSpace(req.Secret)
	switch {
	case keys.ValidMnemonic(raw):
		sec.Mnemonic = keys.NormalizeMnemonic(raw)
	case len(strings.Fields(raw)) == 1:
		mnemonic, err := keys.MnemonicFromPrivateKey(raw)
		if err != nil {
			return nil, ErrInvalidSecret
		}
		sec.Mnemonic = mnemonic
		sec.PrivateKey = "0x" + strings.TrimPrefix(strings.ToLower(raw), "0x")
	default:
		return nil, ErrInvalidSecret
	}
	return m.save(ctx, n.Name, sec, req.Index, password, req.Label, SourceImported)
}

// DefaultLabel names the wallet imported from RAILGUN_PRIVATE_KEY.
const DefaultLabel = "default"

// ImportDefault makes sure the configured signer key is a stored wallet,
// importing it on first start and returning the existing wallet after that.
func (m *Manager) ImportDefault(ctx context.Context, privateKey, networkName string) (*Wallet, error) {
	key, err := keys.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	w, err := m.Get(ctx, addr)
	if err == nil {
		return w, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return m.Import(ctx, ImportRequest{Secret: privateKey, Network: networkName, Label: DefaultLabel})
}

func (m *Manager) save(ctx context.Context, networkName string, sec secret, index uint32, password, label string, source Source) (*Wallet, error) {
	ks, err := sec.keySet(index)
	if err != nil {
		return nil, err
	}
	addr0zk, err := ks.RailgunAddress(nil)
	if err != nil {
		return nil, err
	}

	plain, err := json.Marshal(sec)
	if err != nil {
		return nil, err
	}
	sealed, err := vault.SealWith(plain, password, m.vaultParams)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		ID:         idgen.WithPrefix(idgen.PrefixWallet),
		Label:      label,
		Network:    networkName,
		Index:      index,
		Address0x:  ks.Address.Hex(),
		Address0zk: addr0zk,
		Sealed:     sealed,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Create(ctx, w); err != nil {
		return nil, err
	}
	metrics.WalletsTotal.Inc()
	logging.L(ctx).Info("wallet stored", "wallet_id", w.ID, "network", w.Network, "source", source, "address", w.Address0x)

	if m.engine != nil && m.engine.Configured() {
		if err := m.register(ctx, w, sec); err != nil {
			// The wallet is usable for public operations; registration is
			// retried on the first private operation.
			logging.L(ctx).Warn("engine registration deferred", "wallet_id", w.ID, "error", err)
		}
	}
	return w, nil
}

// List returns all stored wallets.
func (m *Manager) List(ctx context.Context) ([]*Wallet, error) {
	return m.store.List(ctx)
}

// Get resolves a wallet by id, 0x address or 0zk address.
func (m *Manager) Get(ctx context.Context, ref string) (*Wallet, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrWalletNotFound)
	}
	if idgen.HasPrefix(ref, idgen.PrefixWallet) {
		return m.store.Get(ctx, ref)
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range all {
		if w.Matches(ref) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, ref)
}

// Unlock opens a wallet's vault and derives its key set.
func (m *Manager) Unlock(ctx context.Context, ref, password string) (*Wallet, *keys.KeySet, error) {
	w, err := m.Get(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	sec, err := m.open(w, password)
	if err != nil {
		return nil, nil, err
	}
	ks, err := sec.keySet(w.Index)
	if err != nil {
		return nil, nil, err
	}
	return w, ks, nil
}

// EnsureEngineWallet returns the engine wallet id, loading the wallet into
// the engine first if it was never registered.
func (m *Manager) EnsureEngineWallet(ctx context.Context, w *Wallet, password string) (string, error) {
	if w.EngineWalletID != "" {
		return w.EngineWalletID, nil
	}
	if m.engine == nil || !m.engine.Configured() {
		return "", engine.ErrNotConfigured
	}
	sec, err := m.open(w, password)
	if err != nil {
		return "", err
	}
	if err := m.register(ctx, w, sec); err != nil {
		return "", err
	}
	return w.EngineWalletID, nil
}

func (m *Manager) register(ctx context.Context, w *Wallet, sec secret) error {
	resp, err := m.engine.LoadWallet(ctx, engine.LoadWalletRequest{
		Mnemonic: sec.Mnemonic,
		Index:    w.Index,
		Network:  w.Network,
	})
	if err != nil {
		return fmt.Errorf("load wallet into engine: %w", err)
	}
	w.EngineWalletID = resp.WalletID
	return m.store.Update(ctx, w)
}

func (m *Manager) open(w *Wallet, password string) (secret, error) {
	password, err := m.password(password)
	if err != nil {
		return secret{}, err
	}
	plain, err := vault.Open(w.Sealed, password)
	if err != nil {
		return secret{}, fmt.Errorf("unlock wallet %s: %w", w.ID, err)
	}
	var sec secret
	if err := json.Unmarshal(plain, &sec); err != nil {
		return secret{}, fmt.Errorf("unlock wallet %s: %w", w.ID, vault.ErrCorrupt)
	}
	return sec, nil
}

func (m *Manager) password(p string) (string, error) {
	if p != "" {
		return p, nil
	}
	if m.defaultPassword != "" {
		return m.defaultPassword, nil
	}
	return "", ErrPasswordRequired
}

func (s secret) keySet(index uint32) (*keys.KeySet, error) {
	if s.PrivateKey == "" {
		return keys.Derive(s.Mnemonic, index)
	}
	signer, err := keys.ParsePrivateKey(s.PrivateKey)
	if err != nil {
		return nil, err
	}
	return keys.DeriveWithSigner(s.Mnemonic, index, signer)
}

// IsNotFound reports whether err means the wallet does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound)
}
