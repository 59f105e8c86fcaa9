// Package txlog records the transactions users submitted from the mini app.
package txlog

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Record is one submitted transaction. TxHash is the key.
type Record struct {
	TxHash         string    `json:"txHash"`
	TxType         string    `json:"txType"`
	WalletAddress  string    `json:"walletAddress"`
	TelegramUserID string    `json:"telegramUserId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store abstracts transaction log persistence. Save keeps the first record for a hash and
// reports whether rec was inserted.
type Store interface {
	Get(ctx context.Context, txHash string) (*Record, error)
	Save(ctx context.Context, rec Record) (bool, error)
}

// normalizeHash makes lookups case-insensitive.
func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

func (m *MemoryStore) Get(_ context.Context, txHash string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[normalizeHash(txHash)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalizeHash(rec.TxHash)
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	rec.TxHash = key
	m.data[key] = rec
	return true, nil
}
