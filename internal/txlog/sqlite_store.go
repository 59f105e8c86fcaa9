package txlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const createSQLiteTableSQL = `
CREATE TABLE IF NOT EXISTS tx_log (
    tx_hash TEXT PRIMARY KEY,
    tx_type TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    telegram_user_id TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`

// SQLiteStore persists records in a local SQLite file. Suitable for a single backend instance.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", clean+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSQLiteTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tx_log table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, txHash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT tx_hash, tx_type, wallet_address, telegram_user_id, created_at
FROM tx_log
WHERE tx_hash = ?
`, normalizeHash(txHash))

	var (
		rec     Record
		created int64
	)
	if err := row.Scan(&rec.TxHash, &rec.TxType, &rec.WalletAddress, &rec.TelegramUserID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return &rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tx_log (tx_hash, tx_type, wallet_address, telegram_user_id, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tx_hash) DO NOTHING
`, normalizeHash(rec.TxHash), rec.TxType, rec.WalletAddress, rec.TelegramUserID, rec.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
