// Package devreset keeps the latest password-reset token per email in memory, used only when
// RESET_TOKEN_RETURN_TO_CLIENT is enabled (GET /dev/reset-token).
package devreset

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store holds plain reset tokens by email for dev-only retrieval. Not used in production.
type Store interface {
	Put(ctx context.Context, email, token string, expiresAt time.Time)
	// Get returns the token for email if present and not expired.
	Get(ctx context.Context, email string) (token string, ok bool)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put replaces any earlier token for email.
func (s *MemoryStore) Put(_ context.Context, email, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(email)] = entry{token: token, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(_ context.Context, email string) (string, bool) {
	k := key(email)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.token, true
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
