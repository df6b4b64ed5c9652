package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/keys"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/vault"
)

const (
	hardhatMnemonic = "test test test test test test test test test test test junk"
	hardhatKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var fastVault = vault.Params{N: 1024, R: 8, P: 1}

// fakeEngine records LoadWallet calls.
type fakeEngine struct {
	mu         sync.Mutex
	configured bool
	fail       error
	loads      []engine.LoadWalletRequest
}

func (f *fakeEngine) Configured() bool { return f.configured }

func (f *fakeEngine) LoadWallet(_ context.Context, req engine.LoadWalletRequest) (*engine.LoadWalletResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, req)
	if f.fail != nil {
		return nil, f.fail
	}
	return &engine.LoadWalletResponse{WalletID: "eng-" + req.Network}, nil
}

func testRegistry() *network.Registry {
	cfg := &config.Config{
		RPCEndpoints:   map[string]string{"ethereum": "https://eth.example.com", "polygon": "https://polygon.example.com"},
		Contracts:      config.DefaultContracts,
		ChainIDs:       config.DefaultChainIDs,
		DefaultNetwork: "ethereum",
	}
	return network.NewRegistry(cfg)
}

func newTestManager(eng Registrar, defaultPassword string) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	m := NewManager(store, testRegistry(), eng, defaultPassword).WithVaultParams(fastVault)
	return m, store
}

func TestManager_Create(t *testing.T) {
	m, _ := newTestManager(nil, "")
	ctx := context.Background()

	w, err := m.Create(ctx, CreateRequest{Network: "matic", Password: "pw", Label: "main"})
	require.NoError(t, err)

	assert.Equal(t, "polygon", w.Network)
	assert.Equal(t, SourceCreated, w.Source)
	assert.True(t, strings.HasPrefix(w.Address0zk, "0zk1"))
	assert.True(t, keys.IsRailgunAddress(w.Address0zk))
	assert.Empty(t, w.EngineWalletID)

	// The sealed secret must not contain the mnemonic in clear.
	_, ks, err := m.Unlock(ctx, w.ID, "pw")
	require.NoError(t, err)
	assert.Equal(t, w.Address0x, ks.Address.Hex())
}

func TestManager_CreateRequiresPassword(t *testing.T) {
	m, _ := newTestManager(nil, "")
	_, err := m.Create(context.Background(), CreateRequest{Network: "ethereum"})
	assert.ErrorIs(t, err, ErrPasswordRequired)

	withDefault, _ := newTestManager(nil, "default-pw")
	w, err := withDefault.Create(context.Background(), CreateRequest{Network: "ethereum"})
	require.NoError(t, err)
	_, _, err = withDefault.Unlock(context.Background(), w.ID, "")
	assert.NoError(t, err)
}

func TestManager_CreateUnknownNetwork(t *testing.T) {
	m, _ := newTestManager(nil, "pw")
	_, err := m.Create(context.Background(), CreateRequest{Network: "solana"})
	assert.ErrorIs(t, err, network.ErrUnknownNetwork)
}

func TestManager_ImportMnemonic(t *testing.T) {
	m, _ := newTestManager(nil, "")
	ctx := context.Background()

	w, err := m.Import(ctx, ImportRequest{Secret: "  " + strings.ToUpper(hardhatMnemonic), Network: "ethereum", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, w.Address0x)
	assert.Equal(t, SourceImported, w.Source)

	_, err = m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "ethereum", Password: "pw"})
	assert.ErrorIs(t, err, ErrWalletExists)

	// Same key on another network is a distinct wallet.
	_, err = m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "polygon", Password: "pw"})
	assert.NoError(t, err)
}

func TestManager_ImportPrivateKeyKeepsSigner(t *testing.T) {
	m, _ := newTestManager(nil, "")
	ctx := context.Background()

	w, err := m.Import(ctx, ImportRequest{Secret: hardhatKey, Network: "ethereum", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, w.Address0x)

	_, ks, err := m.Unlock(ctx, w.Address0x, "pw")
	require.NoError(t, err)
	assert.Equal(t, hardhatKey, ks.SignerHex())

	// The Railgun side comes from the key-seeded mnemonic, not the Hardhat one.
	fromMnemonic, err := keys.Derive(hardhatMnemonic, 0)
	require.NoError(t, err)
	assert.NotEqual(t, 0, ks.MasterPublicKey.Cmp(fromMnemonic.MasterPublicKey))
}

func TestManager_ImportDefaultOnce(t *testing.T) {
	m, store := newTestManager(nil, "pw")
	ctx := context.Background()

	w, err := m.ImportDefault(ctx, hardhatKey, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, w.Address0x)
	assert.Equal(t, DefaultLabel, w.Label)
	assert.Equal(t, SourceImported, w.Source)

	again, err := m.ImportDefault(ctx, strings.TrimPrefix(hardhatKey, "0x"), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, ks, err := m.Unlock(ctx, w.ID, "")
	require.NoError(t, err)
	assert.Equal(t, hardhatKey, ks.SignerHex())

	_, err = m.ImportDefault(ctx, "0x1234", "ethereum")
	assert.ErrorIs(t, err, keys.ErrInvalidPrivateKey)

	noPassword, _ := newTestManager(nil, "")
	_, err = noPassword.ImportDefault(ctx, hardhatKey, "ethereum")
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestManager_ImportRejectsGarbage(t *testing.T) {
	m, _ := newTestManager(nil, "pw")
	for _, secret := range []string{"", "not a mnemonic at all", "0x1234", "zz"} {
		_, err := m.Import(context.Background(), ImportRequest{Secret: secret, Network: "ethereum"})
		assert.ErrorIs(t, err, ErrInvalidSecret, secret)
	}
}

func TestManager_GetByAnyReference(t *testing.T) {
	m, _ := newTestManager(nil, "pw")
	ctx := context.Background()
	w, err := m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "ethereum"})
	require.NoError(t, err)

	for _, ref := range []string{w.ID, w.Address0x, strings.ToLower(w.Address0x), w.Address0zk} {
		got, err := m.Get(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, w.ID, got.ID)
	}

	_, err = m.Get(ctx, "0x0000000000000000000000000000000000000001")
	assert.True(t, IsNotFound(err))
	_, err = m.Get(ctx, "")
	assert.True(t, IsNotFound(err))
}

func TestManager_UnlockWrongPassword(t *testing.T) {
	m, _ := newTestManager(nil, "")
	ctx := context.Background()
	w, err := m.Create(ctx, CreateRequest{Network: "ethereum", Password: "right"})
	require.NoError(t, err)

	_, _, err = m.Unlock(ctx, w.ID, "wrong")
	assert.ErrorIs(t, err, vault.ErrWrongPassword)
}

func TestManager_RegistersWithEngine(t *testing.T) {
	eng := &fakeEngine{configured: true}
	m, store := newTestManager(eng, "pw")
	ctx := context.Background()

	w, err := m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "polygon"})
	require.NoError(t, err)
	assert.Equal(t, "eng-polygon", w.EngineWalletID)
	require.Len(t, eng.loads, 1)
	assert.Equal(t, hardhatMnemonic, eng.loads[0].Mnemonic)

	stored, err := store.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "eng-polygon", stored.EngineWalletID)
	assert.True(t, stored.Public().EngineLoaded)
}

func TestManager_EngineFailureDefersRegistration(t *testing.T) {
	eng := &fakeEngine{configured: true, fail: errors.New("engine down")}
	m, _ := newTestManager(eng, "pw")
	ctx := context.Background()

	w, err := m.Create(ctx, CreateRequest{Network: "ethereum"})
	require.NoError(t, err)
	assert.Empty(t, w.EngineWalletID)

	eng.fail = nil
	id, err := m.EnsureEngineWallet(ctx, w, "")
	require.NoError(t, err)
	assert.Equal(t, "eng-ethereum", id)
	assert.Len(t, eng.loads, 2)

	// Already registered: no further engine calls.
	_, err = m.EnsureEngineWallet(ctx, w, "")
	require.NoError(t, err)
	assert.Len(t, eng.loads, 2)
}

func TestManager_EnsureEngineWalletNotConfigured(t *testing.T) {
	m, _ := newTestManager(nil, "pw")
	w, err := m.Create(context.Background(), CreateRequest{Network: "ethereum"})
	require.NoError(t, err)
	_, err = m.EnsureEngineWallet(context.Background(), w, "")
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
}

func TestFileStore_Persists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	m := NewManager(store, testRegistry(), nil, "pw").WithVaultParams(fastVault)
	ctx := context.Background()

	w, err := m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "ethereum", Label: "hardhat"})
	require.NoError(t, err)

	// A second store over the same directory sees the wallet.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "hardhat", got.Label)
	assert.Equal(t, w.Sealed.Salt, got.Sealed.Salt)

	_, err = m.Import(ctx, ImportRequest{Secret: hardhatMnemonic, Network: "ethereum"})
	assert.ErrorIs(t, err, ErrWalletExists)

	got.EngineWalletID = "eng-1"
	require.NoError(t, reopened.Update(ctx, got))
	again, err := store.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "eng-1", again.EngineWalletID)

	_, err = reopened.Get(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	assert.ErrorIs(t, reopened.Update(ctx, &Wallet{ID: "wal_missing"}), ErrWalletNotFound)
}
