package railgun

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/samsavage/railgun-mcp/internal/amount"
	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/keys"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/traces"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// DefaultRelayPriority is used when a relayed submit names none.
const DefaultRelayPriority = "normal"

var relayPriorities = map[string]bool{"slow": true, "normal": true, "fast": true}

// ShieldRequest moves public tokens into the privacy pool.
type ShieldRequest struct {
	Wallet   string
	Password string
	Network  string
	Token    string
	Amount   string // human units
}

// UnshieldRequest moves private tokens to a public address.
type UnshieldRequest struct {
	Wallet    string
	Password  string
	Network   string
	Token     string
	Amount    string
	Recipient string // 0x; defaults to the wallet's own address
	RelayerID string
}

// PrivateTransferRequest sends tokens inside the pool.
type PrivateTransferRequest struct {
	Wallet    string
	Password  string
	Network   string
	Token     string
	Amount    string
	Recipient string // 0zk
	Memo      string
	RelayerID string
}

// TransferRequest is a plain public transfer.
type TransferRequest struct {
	Wallet   string
	Password string
	Network  string
	Token    string
	Amount   string
	To       string
}

// Result describes a submitted operation.
type Result struct {
	Record        *txn.Record
	TxHash        string
	ApproveTxHash string
	RelayerTxID   string
	RelayerFee    string
	EstimatedTime string
	ExplorerURL   string
	GasLimit      uint64
}

// op is a resolved, unlocked request.
type op struct {
	w     *wallet.Wallet
	ks    *keys.KeySet
	n     *network.Network
	tok   network.Token
	raw   *big.Int
	human string

	// toppedUp skips the private balance check right after a shield the
	// engine has not scanned yet.
	toppedUp bool
}

func (s *Service) resolve(ctx context.Context, walletRef, password, networkName, token, human string) (*op, error) {
	w, ks, err := s.wallets.Unlock(ctx, walletRef, password)
	if err != nil {
		return nil, err
	}
	n, err := s.resolveNetwork(networkName, w)
	if err != nil {
		return nil, err
	}
	tok, err := s.networks.ResolveToken(ctx, n.Name, token)
	if err != nil {
		return nil, err
	}
	raw, err := parseAmount(human, tok)
	if err != nil {
		return nil, err
	}
	return &op{w: w, ks: ks, n: n, tok: tok, raw: raw, human: amount.Format(raw, tok.Decimals)}, nil
}

func (o *op) newRecord(typ txn.Type) *txn.Record {
	r := txn.New(o.w.ID, o.n.Name, typ)
	r.Token = o.tok.Address
	r.TokenSymbol = o.tok.Symbol
	r.Amount = o.raw.String()
	return r
}

// Shield approves the proxy if needed, then sends the engine-built shield
// transaction from the wallet's public address.
func (s *Service) Shield(ctx context.Context, req ShieldRequest) (*Result, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	o, err := s.resolve(ctx, req.Wallet, req.Password, req.Network, req.Token, req.Amount)
	if err != nil {
		return nil, err
	}
	return s.shield(ctx, o)
}

func (s *Service) shield(ctx context.Context, o *op) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "railgun.Shield",
		traces.WalletID(o.w.ID), traces.Network(o.n.Name), traces.Amount(o.raw.String()))
	defer span.End()

	if o.n.Contracts.Proxy == "" {
		return nil, fmt.Errorf("no Railgun proxy configured for %s", o.n.Name)
	}
	client, err := s.chains.Client(ctx, o.n.Name)
	if err != nil {
		return nil, err
	}
	if err := s.checkPublic(ctx, client, o); err != nil {
		return nil, err
	}

	res := &Result{}
	if !o.tok.IsNative() {
		proxy := common.HexToAddress(o.n.Contracts.Proxy)
		token := common.HexToAddress(o.tok.Address)
		allowance, err := client.Allowance(ctx, token, o.ks.Address, proxy)
		if err != nil {
			return nil, err
		}
		if allowance.Cmp(o.raw) < 0 {
			sent, err := client.Approve(ctx, o.ks.Signer, token, proxy, o.raw)
			if err != nil {
				traces.RecordError(span, err)
				return nil, fmt.Errorf("approve %s: %w", o.tok.Symbol, err)
			}
			ar := o.newRecord(txn.TypeApprove)
			ar.Recipient = proxy.Hex()
			ar.TxHash = sent.TxHash
			ar.GasPrice = sent.GasPrice.String()
			s.record(ctx, ar)
			res.ApproveTxHash = sent.TxHash
		}
	}

	recipient, err := o.ks.RailgunAddress(keys.EVMChain(o.n.ChainID))
	if err != nil {
		return nil, err
	}
	ptx, err := s.engine.PopulateShield(ctx, engine.ShieldRequest{
		Network:      o.n.Name,
		FromAddress:  o.ks.Address.Hex(),
		Recipient0zk: recipient,
		TokenAddress: o.tok.Address,
		Amount:       o.raw.String(),
	})
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	rec := o.newRecord(txn.TypeShield)
	rec.Recipient = recipient
	if err := s.broadcast(ctx, client, o, "", ptx, rec, res); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// Unshield withdraws from the private balance to a public address.
func (s *Service) Unshield(ctx context.Context, req UnshieldRequest) (*Result, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	o, err := s.resolve(ctx, req.Wallet, req.Password, req.Network, req.Token, req.Amount)
	if err != nil {
		return nil, err
	}
	return s.unshield(ctx, o, req.Password, req.Recipient, req.RelayerID)
}

func (s *Service) unshield(ctx context.Context, o *op, password, recipient, relayerID string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "railgun.Unshield",
		traces.WalletID(o.w.ID), traces.Network(o.n.Name), traces.Amount(o.raw.String()))
	defer span.End()

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = o.ks.Address.Hex()
	}
	if !validAddress(recipient) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, recipient)
	}

	engineID, err := s.wallets.EnsureEngineWallet(ctx, o.w, password)
	if err != nil {
		return nil, err
	}
	if !o.toppedUp {
		if err := s.checkPrivate(ctx, engineID, o); err != nil {
			return nil, err
		}
	}
	ptx, err := s.engine.PopulateUnshield(ctx, engine.UnshieldRequest{
		Network:      o.n.Name,
		WalletID:     engineID,
		TokenAddress: o.tok.Address,
		Amount:       o.raw.String(),
		Recipient:    common.HexToAddress(recipient).Hex(),
		RelayerID:    relayerID,
	})
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	client, err := s.chains.Client(ctx, o.n.Name)
	if err != nil {
		return nil, err
	}
	rec := o.newRecord(txn.TypeUnshield)
	rec.Recipient = common.HexToAddress(recipient).Hex()
	res := &Result{}
	if err := s.broadcast(ctx, client, o, relayerID, ptx, rec, res); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// PrivateTransfer sends tokens to another 0zk address.
func (s *Service) PrivateTransfer(ctx context.Context, req PrivateTransferRequest) (*Result, error) {
	if !s.EngineConfigured() {
		return nil, engine.ErrNotConfigured
	}
	if !keys.IsRailgunAddress(req.Recipient) {
		return nil, fmt.Errorf("%w: expected a 0zk address", ErrInvalidRecipient)
	}
	o, err := s.resolve(ctx, req.Wallet, req.Password, req.Network, req.Token, req.Amount)
	if err != nil {
		return nil, err
	}
	return s.privateTransfer(ctx, o, req)
}

func (s *Service) privateTransfer(ctx context.Context, o *op, req PrivateTransferRequest) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "railgun.PrivateTransfer",
		traces.WalletID(o.w.ID), traces.Network(o.n.Name), traces.Amount(o.raw.String()))
	defer span.End()

	engineID, err := s.wallets.EnsureEngineWallet(ctx, o.w, req.Password)
	if err != nil {
		return nil, err
	}
	if !o.toppedUp {
		if err := s.checkPrivate(ctx, engineID, o); err != nil {
			return nil, err
		}
	}
	ptx, err := s.engine.PopulateTransfer(ctx, engine.TransferRequest{
		Network:      o.n.Name,
		WalletID:     engineID,
		TokenAddress: o.tok.Address,
		Amount:       o.raw.String(),
		Recipient0zk: req.Recipient,
		Memo:         req.Memo,
		RelayerID:    req.RelayerID,
	})
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	client, err := s.chains.Client(ctx, o.n.Name)
	if err != nil {
		return nil, err
	}
	rec := o.newRecord(txn.TypePrivateTransfer)
	rec.Recipient = req.Recipient
	rec.Memo = req.Memo
	res := &Result{}
	if err := s.broadcast(ctx, client, o, req.RelayerID, ptx, rec, res); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// Transfer sends native coin or an ERC-20 from the public address.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if !validAddress(req.To) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, req.To)
	}
	o, err := s.resolve(ctx, req.Wallet, req.Password, req.Network, req.Token, req.Amount)
	if err != nil {
		return nil, err
	}
	return s.transfer(ctx, o, common.HexToAddress(req.To))
}

func (s *Service) transfer(ctx context.Context, o *op, to common.Address) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "railgun.Transfer",
		traces.WalletID(o.w.ID), traces.Network(o.n.Name), traces.Amount(o.raw.String()))
	defer span.End()

	client, err := s.chains.Client(ctx, o.n.Name)
	if err != nil {
		return nil, err
	}
	if err := s.checkPublic(ctx, client, o); err != nil {
		return nil, err
	}

	rec := o.newRecord(txn.TypeTransfer)
	rec.Recipient = to.Hex()
	token := common.Address{}
	if !o.tok.IsNative() {
		token = common.HexToAddress(o.tok.Address)
	}
	sent, err := client.Transfer(ctx, o.ks.Signer, token, to, o.raw)
	if err != nil {
		traces.RecordError(span, err)
		s.fail(ctx, rec, err)
		return nil, err
	}
	rec.TxHash = sent.TxHash
	rec.GasPrice = sent.GasPrice.String()
	s.record(ctx, rec)
	return &Result{Record: rec, TxHash: sent.TxHash, ExplorerURL: o.n.TxURL(sent.TxHash), GasLimit: sent.GasLimit}, nil
}

// broadcast sends a populated transaction from the wallet, or hands it to a
// relayer when relayerID is set, and records the outcome.
func (s *Service) broadcast(ctx context.Context, client *chain.Client, o *op, relayerID string, ptx *engine.PopulatedTx, rec *txn.Record, res *Result) error {
	res.Record = rec
	res.GasLimit = ptx.GasLimit

	if relayerID != "" {
		resp, err := s.engine.SubmitToRelayer(ctx, engine.SubmitRequest{
			RelayerID:       relayerID,
			Network:         o.n.Name,
			TransactionData: ptx.Data,
			Priority:        DefaultRelayPriority,
		})
		if err != nil {
			s.fail(ctx, rec, err)
			return err
		}
		rec.RelayerTxID = resp.RelayerTransactionID
		rec.TxHash = resp.TxHash
		s.record(ctx, rec)
		res.RelayerTxID = resp.RelayerTransactionID
		res.RelayerFee = resp.Fee
		res.EstimatedTime = resp.EstimatedTime
		res.TxHash = resp.TxHash
		if resp.TxHash != "" {
			res.ExplorerURL = o.n.TxURL(resp.TxHash)
		}
		return nil
	}

	req, err := txRequest(ptx)
	if err != nil {
		s.fail(ctx, rec, err)
		return err
	}
	sent, err := client.Send(ctx, o.ks.Signer, req)
	if err != nil {
		s.fail(ctx, rec, err)
		return err
	}
	rec.TxHash = sent.TxHash
	rec.GasPrice = sent.GasPrice.String()
	s.record(ctx, rec)
	res.TxHash = sent.TxHash
	res.GasLimit = sent.GasLimit
	res.ExplorerURL = o.n.TxURL(sent.TxHash)
	return nil
}

func txRequest(ptx *engine.PopulatedTx) (chain.TxRequest, error) {
	if !common.IsHexAddress(ptx.To) {
		return chain.TxRequest{}, fmt.Errorf("engine returned invalid target %q", ptx.To)
	}
	var data []byte
	if ptx.Data != "" && ptx.Data != "0x" {
		d, err := hexutil.Decode(ptx.Data)
		if err != nil {
			return chain.TxRequest{}, fmt.Errorf("engine returned invalid calldata: %w", err)
		}
		data = d
	}
	value, err := ptx.ValueWei()
	if err != nil {
		return chain.TxRequest{}, err
	}
	return chain.TxRequest{
		To:       common.HexToAddress(ptx.To),
		Data:     data,
		Value:    value,
		GasLimit: ptx.GasLimit,
	}, nil
}

// fail records a transaction that never reached the chain.
func (s *Service) fail(ctx context.Context, rec *txn.Record, err error) {
	rec.Status = txn.StatusFailed
	rec.Error = err.Error()
	var te *chain.TxError
	if errors.As(err, &te) && te.TxHash != "" {
		rec.TxHash = te.TxHash
	}
	s.record(ctx, rec)
}

func (s *Service) checkPublic(ctx context.Context, client *chain.Client, o *op) error {
	var have *big.Int
	var err error
	if o.tok.IsNative() {
		have, err = client.NativeBalance(ctx, o.ks.Address)
	} else {
		have, err = client.TokenBalance(ctx, common.HexToAddress(o.tok.Address), o.ks.Address)
	}
	if err != nil {
		return err
	}
	if have.Cmp(o.raw) < 0 {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientBalance,
			amount.Format(have, o.tok.Decimals), o.tok.Symbol, o.human)
	}
	return nil
}

// checkPrivate rejects amounts above the private balance. An unreadable
// balance is left for the engine to judge.
func (s *Service) checkPrivate(ctx context.Context, engineID string, o *op) error {
	have, err := s.privateBalance(ctx, engineID, o)
	if err != nil {
		logging.L(ctx).Debug("private balance check skipped", "error", err)
		return nil
	}
	if have.Cmp(o.raw) < 0 {
		return fmt.Errorf("%w: have %s private %s, need %s", ErrInsufficientBalance,
			amount.Format(have, o.tok.Decimals), o.tok.Symbol, o.human)
	}
	return nil
}

func (s *Service) privateBalance(ctx context.Context, engineID string, o *op) (*big.Int, error) {
	balances, err := s.engine.Balances(ctx, engineID, o.n.Name)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	want := common.HexToAddress(o.tok.Address)
	for _, b := range balances {
		if common.HexToAddress(b.TokenAddress) != want {
			continue
		}
		v, err := amount.ParseRaw(b.Amount)
		if err != nil {
			continue
		}
		total.Add(total, v)
	}
	return total, nil
}
