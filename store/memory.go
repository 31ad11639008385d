package store

import (
	"context"
	"sync"
	"time"

	creditgate "github.com/mark3labs/creditgate-go"
)

// MemoryStore is a mutex-guarded in-process Store. State is lost on
// restart, so it suits tests and single-process embedding only.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*creditgate.Session
	byWallet map[walletKey]string
	consumed map[txKey]struct{}
}

type walletKey struct {
	wallet  string
	chainID string
}

type txKey struct {
	chainID string
	txRef   string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*creditgate.Session),
		byWallet: make(map[walletKey]string),
		consumed: make(map[txKey]struct{}),
	}
}

// SaveSession implements Store.
func (m *MemoryStore) SaveSession(_ context.Context, s *creditgate.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	m.byWallet[walletKey{s.Wallet, s.ChainID}] = s.ID
	return nil
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*creditgate.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// GetSessionByWallet implements Store.
func (m *MemoryStore) GetSessionByWallet(_ context.Context, wallet, chainID string) (*creditgate.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byWallet[walletKey{wallet, chainID}]
	if !ok {
		return nil, nil
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	delete(m.byWallet, walletKey{s.Wallet, s.ChainID})
	return nil
}

// HasTransaction implements Store.
func (m *MemoryStore) HasTransaction(_ context.Context, chainID, txRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, used := m.consumed[txKey{chainID, txRef}]
	return used, nil
}

// MarkTransactionUsed implements Store.
func (m *MemoryStore) MarkTransactionUsed(_ context.Context, chainID, txRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := txKey{chainID, txRef}
	if _, used := m.consumed[key]; used {
		return creditgate.ErrTransactionUsed
	}
	m.consumed[key] = struct{}{}
	return nil
}

// TopUpSession implements Store.
func (m *MemoryStore) TopUpSession(_ context.Context, id string, credits int64, expiresAt time.Time) (*creditgate.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	s.TotalCredits += credits
	s.RemainingCredits += credits
	s.ExpiresAt = expiresAt
	cp := *s
	return &cp, nil
}

// UseCredit implements Store.
func (m *MemoryStore) UseCredit(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(now) || s.RemainingCredits <= 0 {
		return false, nil
	}
	s.RemainingCredits--
	s.LastUsedAt = now
	return true, nil
}

// CleanupExpiredSessions implements Store.
func (m *MemoryStore) CleanupExpiredSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			delete(m.byWallet, walletKey{s.Wallet, s.ChainID})
			removed++
		}
	}
	return removed, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
