package txlog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS tx_log (
    tx_hash TEXT PRIMARY KEY,
    tx_type TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    telegram_user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, txHash string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT tx_hash, tx_type, wallet_address, telegram_user_id, created_at
FROM tx_log
WHERE tx_hash = $1
`, normalizeHash(txHash))

	var rec Record
	if err := row.Scan(&rec.TxHash, &rec.TxType, &rec.WalletAddress, &rec.TelegramUserID, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, rec Record) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
INSERT INTO tx_log (tx_hash, tx_type, wallet_address, telegram_user_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tx_hash) DO NOTHING
`, normalizeHash(rec.TxHash), rec.TxType, rec.WalletAddress, rec.TelegramUserID, rec.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
