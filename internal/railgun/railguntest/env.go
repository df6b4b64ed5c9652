// Package railguntest wires a railgun.Service to a fake chain and a stub
// engine for tests.
package railguntest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/chain/chaintest"
	"github.com/samsavage/railgun-mcp/internal/circuitbreaker"
	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/retry"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/vault"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// Well-known test credentials (the Hardhat default account).
const (
	Mnemonic = "test test test test test test test test test test test junk"
	Address  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	Password = "pw"
)

// Token addresses on the test ethereum network.
var (
	USDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	DAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

// FastVault keeps scrypt cheap in tests.
var FastVault = vault.Params{N: 1024, R: 8, P: 1}

// Env is a fully wired service over fakes.
type Env struct {
	Service  *railgun.Service
	Wallets  *wallet.Manager
	Registry *network.Registry
	Chain    *chaintest.Client
	Engine   *EngineStub
	Txns     *txn.MemoryStore
	Tracker  *txn.Tracker
	Config   *config.Config
}

// Config returns a two-network configuration with an engine at engineURL.
func Config(engineURL string) *config.Config {
	return &config.Config{
		APIKey:         "test-key",
		APIURL:         engineURL,
		RPCEndpoints:   map[string]string{"ethereum": "https://eth.example.com", "polygon": "https://polygon.example.com"},
		Contracts:      config.DefaultContracts,
		ChainIDs:       config.DefaultChainIDs,
		DefaultNetwork: "ethereum",
		Transport:      config.TransportStdio,
	}
}

// New builds an Env. The fake chain serves ethereum.
func New(t *testing.T) *Env {
	t.Helper()
	stub := NewEngineStub()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := Config(srv.URL)
	registry := network.NewRegistry(cfg)
	eng := engine.New(engine.Config{BaseURL: cfg.APIURL, APIKey: cfg.APIKey},
		engine.WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}),
		engine.WithBreaker(circuitbreaker.New(100, time.Minute)))

	fake := chaintest.New()
	pool := chain.NewPool(cfg,
		chain.WithClient("ethereum", fake),
		chain.WithRetryPolicy(retry.Policy{Attempts: 1, BaseDelay: time.Millisecond}))
	t.Cleanup(pool.Close)
	registry.WithDecimalsReader(pool)

	wallets := wallet.NewManager(wallet.NewMemoryStore(), registry, eng, "").WithVaultParams(FastVault)
	txns := txn.NewMemoryStore()
	tracker := txn.NewTracker(txns, pool, txn.TrackerConfig{}, logging.NewWithWriter(io.Discard, "error", "text"))
	svc := railgun.NewService(wallets, registry, pool, eng, txns).WithTracker(tracker)

	return &Env{
		Service:  svc,
		Wallets:  wallets,
		Registry: registry,
		Chain:    fake,
		Engine:   stub,
		Txns:     txns,
		Tracker:  tracker,
		Config:   cfg,
	}
}

// ImportHardhat imports the Hardhat mnemonic on ethereum.
func (e *Env) ImportHardhat(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := e.Wallets.Import(context.Background(), wallet.ImportRequest{
		Secret: Mnemonic, Network: "ethereum", Password: Password, Label: "hardhat",
	})
	if err != nil {
		t.Fatalf("import wallet: %v", err)
	}
	return w
}

// NewWallet creates a fresh wallet on ethereum.
func (e *Env) NewWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := e.Wallets.Create(context.Background(), wallet.CreateRequest{Network: "ethereum", Password: Password})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return w
}

// Fund sets public balances for an address.
func (e *Env) Fund(addr string, wei *big.Int, tokens map[common.Address]*big.Int) {
	owner := common.HexToAddress(addr)
	e.Chain.SetBalance(owner, wei)
	for tok, v := range tokens {
		e.Chain.SetTokenBalance(tok, owner, v)
	}
}

// EngineStub is an in-memory engine API.
type EngineStub struct {
	mu       sync.Mutex
	loaded   int
	private  map[string][]engine.PrivateBalance
	relayers []engine.Relayer
	fail     map[string]int
	calls    map[string]int
	bodies   map[string][]byte

	// Populated is returned by every populate endpoint.
	Populated engine.PopulatedTx
}

// NewEngineStub returns a stub with a default populated transaction aimed
// at the ethereum proxy.
func NewEngineStub() *EngineStub {
	return &EngineStub{
		private: make(map[string][]engine.PrivateBalance),
		fail:    make(map[string]int),
		calls:   make(map[string]int),
		bodies:  make(map[string][]byte),
		Populated: engine.PopulatedTx{
			To:       config.DefaultContracts["ethereum"].Proxy,
			Data:     "0xdeadbeef",
			Value:    "0",
			GasLimit: 250000,
			ProofID:  "proof-1",
		},
		relayers: []engine.Relayer{
			{ID: "relayer-b", Address0zk: "0zk1b", FeePerUnitGas: "1000", FeeToken: "USDC", Reliability: 0.90},
			{ID: "relayer-a", Address0zk: "0zk1a", FeePerUnitGas: "1200", FeeToken: "USDC", Reliability: 0.99},
		},
	}
}

// SetPrivate sets an engine wallet's private balance of a token.
func (s *EngineStub) SetPrivate(engineWalletID string, token common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.private[engineWalletID]
	for i := range list {
		if common.HexToAddress(list[i].TokenAddress) == token {
			list[i].Amount = amount.String()
			return
		}
	}
	s.private[engineWalletID] = append(list, engine.PrivateBalance{TokenAddress: token.Hex(), Amount: amount.String()})
}

// FailWith makes requests to path answer with status.
func (s *EngineStub) FailWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = status
}

// Calls returns how many requests hit path.
func (s *EngineStub) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Body decodes the last request body sent to path into v.
func (s *EngineStub) Body(path string, v any) error {
	s.mu.Lock()
	b, ok := s.bodies[path]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no request to %s", path)
	}
	return json.Unmarshal(b, v)
}

func (s *EngineStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls[r.URL.Path]++
	if len(body) > 0 {
		s.bodies[r.URL.Path] = body
	}
	status := s.fail[r.URL.Path]
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-key" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad key"})
		return
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "stub failure"})
		return
	}

	path := r.URL.Path
	switch {
	case path == "/wallets/load":
		s.mu.Lock()
		s.loaded++
		id := fmt.Sprintf("eng-%d", s.loaded)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, engine.LoadWalletResponse{WalletID: id, Address0zk: "0zk1stub"})
	case strings.HasPrefix(path, "/wallets/") && strings.HasSuffix(path, "/balances"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/wallets/"), "/balances")
		s.mu.Lock()
		list := append([]engine.PrivateBalance(nil), s.private[id]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"balances": list})
	case strings.HasSuffix(path, "/populate"):
		writeJSON(w, http.StatusOK, s.Populated)
	case path == "/relayers/submit":
		writeJSON(w, http.StatusOK, engine.SubmitResponse{
			RelayerTransactionID: "relay-tx-1",
			TxHash:               "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
			EstimatedTime:        "2 minutes",
			Fee:                  "0.5",
		})
	case strings.HasPrefix(path, "/relayers/"):
		s.mu.Lock()
		list := append([]engine.Relayer(nil), s.relayers...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"relayers": list})
	case path == "/proofs/verify":
		var req struct {
			ProofData string `json:"proof_data"`
		}
		_ = json.Unmarshal(body, &req)
		writeJSON(w, http.StatusOK, engine.ProofVerification{
			Valid: strings.HasPrefix(req.ProofData, "0x"), ProofType: "groth16", VerifiedAt: "2026-01-01T00:00:00Z",
		})
	case path == "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
