package engine

import (
	"fmt"
	"math/big"
	"strings"
)

// LoadWalletRequest registers a wallet's mnemonic with the engine so it can
// scan commitments and prove spends for it.
type LoadWalletRequest struct {
	Mnemonic string `json:"mnemonic"`
	Index    uint32 `json:"index"`
	Network  string `json:"network"`
}

// LoadWalletResponse identifies the engine-side wallet.
type LoadWalletResponse struct {
	WalletID   string `json:"wallet_id"`
	Address0zk string `json:"address_0zk"`
}

// PrivateBalance is one shielded token balance in base units.
type PrivateBalance struct {
	TokenAddress string `json:"token_address"`
	Symbol       string `json:"symbol"`
	Amount       string `json:"amount"`
}

type balancesResponse struct {
	Balances []PrivateBalance `json:"balances"`
}

// ShieldRequest asks the engine to build a shield transaction moving public
// tokens from FromAddress into the pool for Recipient0zk.
type ShieldRequest struct {
	Network      string `json:"network"`
	FromAddress  string `json:"from_address"`
	Recipient0zk string `json:"recipient_0zk"`
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
}

// UnshieldRequest asks the engine to prove and build an unshield to a
// public address.
type UnshieldRequest struct {
	Network      string `json:"network"`
	WalletID     string `json:"wallet_id"`
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`
	RelayerID    string `json:"relayer_id,omitempty"`
}

// TransferRequest asks the engine to prove and build a private transfer.
type TransferRequest struct {
	Network      string `json:"network"`
	WalletID     string `json:"wallet_id"`
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
	Recipient0zk string `json:"recipient_0zk"`
	Memo         string `json:"memo,omitempty"`
	RelayerID    string `json:"relayer_id,omitempty"`
}

// RecipeStep is the engine's view of one recipe call.
type RecipeStep struct {
	Type            string         `json:"type"`
	ContractAddress string         `json:"contract_address,omitempty"`
	FunctionName    string         `json:"function_name,omitempty"`
	FunctionArgs    map[string]any `json:"function_args,omitempty"`
}

// TokenAmount pairs a token address with a base-unit amount.
type TokenAmount struct {
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
}

// RecipeRequest asks the engine to prove and build a cross-contract call
// that unshields inputs, runs steps, and reshields outputs.
type RecipeRequest struct {
	Network     string        `json:"network"`
	WalletID    string        `json:"wallet_id"`
	Steps       []RecipeStep  `json:"steps"`
	Inputs      []TokenAmount `json:"inputs"`
	SlippageBPS int           `json:"slippage_bps"`
	RelayerID   string        `json:"relayer_id,omitempty"`
}

// PopulatedTx is an unsigned transaction produced by the engine.
type PopulatedTx struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit uint64 `json:"gas_limit"`
	ProofID  string `json:"proof_id,omitempty"`
}

// ValueWei parses Value as a base-10 (or 0x hex) integer; empty is zero.
func (p *PopulatedTx) ValueWei() (*big.Int, error) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(v, "0x") {
		v, base = v[2:], 16
	}
	out, ok := new(big.Int).SetString(v, base)
	if !ok {
		return nil, fmt.Errorf("invalid tx value %q", p.Value)
	}
	return out, nil
}

// Relayer is a broadcaster advertising fees on a network.
type Relayer struct {
	ID            string  `json:"id"`
	Address0zk    string  `json:"address_0zk"`
	FeePerUnitGas string  `json:"fee_per_unit_gas"`
	FeeToken      string  `json:"fee_token"`
	Reliability   float64 `json:"reliability"`
}

type relayersResponse struct {
	Relayers []Relayer `json:"relayers"`
}

// SubmitRequest hands a signed or populated transaction to a relayer.
type SubmitRequest struct {
	RelayerID       string `json:"relayer_id"`
	Network         string `json:"network"`
	TransactionData string `json:"transaction_data"`
	Priority        string `json:"priority,omitempty"`
}

// SubmitResponse is the relayer's acknowledgement.
type SubmitResponse struct {
	RelayerTransactionID string `json:"relayer_transaction_id"`
	TxHash               string `json:"tx_hash"`
	EstimatedTime        string `json:"estimated_time"`
	Fee                  string `json:"fee"`
}

// ProofVerification is the engine's verdict on a proof.
type ProofVerification struct {
	Valid      bool   `json:"valid"`
	ProofType  string `json:"proof_type"`
	VerifiedAt string `json:"verified_at"`
}
