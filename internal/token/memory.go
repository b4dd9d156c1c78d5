package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps tokens in process memory. Suitable for single-instance
// and test setups; tokens do not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Issue stores payload under a fresh token.
func (s *MemoryStore) Issue(ctx context.Context, payload []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tok] = memoryEntry{
		payload:   append([]byte(nil), payload...),
		expiresAt: s.now().Add(ttl),
	}
	return tok, nil
}

// Pop retrieves and deletes a token's payload.
func (s *MemoryStore) Pop(ctx context.Context, tok string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tok]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, tok)
	if s.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.payload, nil
}

// Sweep removes expired entries. Run it periodically; without it, tokens
// that are never redeemed accumulate until restart.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for tok, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, tok)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
