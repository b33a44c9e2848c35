package store

import (
	"context"
	"sync"
	"time"

	"github.com/veritasvault/vv-auth/ports"
)

// MemoryStore is an in-memory implementation of the NonceStore
// interface, intended for tests and single-instance deployments.
type MemoryStore struct {
	usedNonces map[string]time.Time
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory nonce store.
func NewMemoryStore() ports.NonceStore {
	return &MemoryStore{
		usedNonces: make(map[string]time.Time),
	}
}

// MarkUsed records a nonce as consumed until its TTL elapses.
func (s *MemoryStore) MarkUsed(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := time.Now().Add(ttl)
	s.usedNonces[nonce] = expiry

	go func() {
		time.Sleep(ttl)

		s.mu.Lock()
		defer s.mu.Unlock()

		// Only delete if the expiry hasn't been extended meanwhile.
		if stored, exists := s.usedNonces[nonce]; exists && !stored.After(expiry) {
			delete(s.usedNonces, nonce)
		}
	}()

	return nil
}

// IsUsed checks whether a nonce has been consumed.
func (s *MemoryStore) IsUsed(ctx context.Context, nonce string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, exists := s.usedNonces[nonce]
	if !exists {
		return false, nil
	}
	if time.Now().After(expiry) {
		return false, nil
	}
	return true, nil
}
