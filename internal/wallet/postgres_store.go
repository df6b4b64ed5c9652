package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists wallets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, w *Wallet) error {
	sealed, err := json.Marshal(w.Sealed)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO wallets (
			id, label, network, derivation_index, address_0x,
			address_0zk, engine_wallet_id, sealed, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.Label, w.Network, int64(w.Index), w.Address0x,
		w.Address0zk, nullString(w.EngineWalletID), sealed, string(w.Source), w.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrWalletExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Wallet, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, label, network, derivation_index, address_0x,
		       address_0zk, engine_wallet_id, sealed, source, created_at
		FROM wallets WHERE id = $1`, id)

	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

func (p *PostgresStore) List(ctx context.Context) ([]*Wallet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, label, network, derivation_index, address_0x,
		       address_0zk, engine_wallet_id, sealed, source, created_at
		FROM wallets
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, w *Wallet) error {
	sealed, err := json.Marshal(w.Sealed)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE wallets
		SET label = $2, engine_wallet_id = $3, sealed = $4
		WHERE id = $1`,
		w.ID, w.Label, nullString(w.EngineWalletID), sealed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// --- scanners ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(sc scanner) (*Wallet, error) {
	w := &Wallet{}
	var (
		index    int64
		engineID sql.NullString
		sealed   []byte
		source   string
	)
	err := sc.Scan(
		&w.ID, &w.Label, &w.Network, &index, &w.Address0x,
		&w.Address0zk, &engineID, &sealed, &source, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Index = uint32(index) //nolint:gosec // column is written from a uint32
	w.EngineWalletID = engineID.String
	w.Source = Source(source)
	if err := json.Unmarshal(sealed, &w.Sealed); err != nil {
		return nil, err
	}
	return w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
