package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore persists transaction records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, wallet_id, network, tx_type, token, token_symbol, amount,
	recipient, tx_hash, relayer_tx_id, status, gas_price, gas_used, block_number,
	memo, error, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		r.ID, r.WalletID, r.Network, string(r.Type), r.Token, r.TokenSymbol, numeric(r.Amount),
		r.Recipient, r.TxHash, r.RelayerTxID, string(r.Status), nullNumeric(r.GasPrice),
		nullUint(r.GasUsed), nullUint(r.BlockNumber), r.Memo, r.Error, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM transactions WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM transactions
		WHERE LOWER(tx_hash) = LOWER($1) AND tx_hash <> ''
		ORDER BY created_at DESC LIMIT 1`, hash)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) Update(ctx context.Context, r *Record) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE transactions
		SET tx_hash = $2, relayer_tx_id = $3, status = $4, gas_price = $5,
		    gas_used = $6, block_number = $7, error = $8, updated_at = $9
		WHERE id = $1`,
		r.ID, r.TxHash, r.RelayerTxID, string(r.Status), nullNumeric(r.GasPrice),
		nullUint(r.GasUsed), nullUint(r.BlockNumber), r.Error, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, q Query) ([]*Record, int, error) {
	q = q.Normalize()

	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.WalletID != "" {
		add("wallet_id = $%d", q.WalletID)
	}
	if q.Type != "" {
		add("tx_type = $%d", string(q.Type))
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Offset)
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM transactions%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, recordColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	result := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, r)
	}
	return result, total, rows.Err()
}

func (p *PostgresStore) Pending(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = MaxLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM transactions
		WHERE status = 'pending'
		ORDER BY updated_at ASC, created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- scanners ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*Record, error) {
	r := &Record{}
	var (
		typ, status string
		gasPrice    sql.NullString
		gasUsed     sql.NullInt64
		block       sql.NullInt64
	)
	err := sc.Scan(
		&r.ID, &r.WalletID, &r.Network, &typ, &r.Token, &r.TokenSymbol, &r.Amount,
		&r.Recipient, &r.TxHash, &r.RelayerTxID, &status, &gasPrice, &gasUsed, &block,
		&r.Memo, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = Type(typ)
	r.Status = Status(status)
	r.GasPrice = gasPrice.String
	r.GasUsed = uint64(gasUsed.Int64)   //nolint:gosec // written from a uint64
	r.BlockNumber = uint64(block.Int64) //nolint:gosec // written from a uint64
	return r, nil
}

func numeric(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func nullNumeric(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUint(v uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0} //nolint:gosec // gas and block numbers fit in int64
}
