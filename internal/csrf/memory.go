package csrf

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// MemoryStore keeps tokens in process for single instance deployments
type MemoryStore struct {
	clock clock.PassiveClock

	mu     sync.Mutex
	tokens map[string]time.Time
}

// NewMemoryStore creates an in-memory store. A nil clock uses the real clock.
func NewMemoryStore(c clock.PassiveClock) *MemoryStore {
	if c == nil {
		c = clock.RealClock{}
	}
	return &MemoryStore{
		clock:  c,
		tokens: make(map[string]time.Time),
	}
}

// SaveToken stores a token and drops any that already expired
func (s *MemoryStore) SaveToken(_ context.Context, token string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}
	if expiresIn <= 0 {
		return ErrTokenExpired
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for t, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(expiresIn)
	return nil
}

// ValidateToken checks if a token exists and has not expired
func (s *MemoryStore) ValidateToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[token]
	if !ok {
		return ErrInvalidToken
	}
	if !s.clock.Now().Before(exp) {
		delete(s.tokens, token)
		return ErrTokenExpired
	}
	return nil
}

// CheckHealth always succeeds
func (s *MemoryStore) CheckHealth(context.Context) error {
	return nil
}
