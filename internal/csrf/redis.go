package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenPrefix = "devicetoken:csrf:"

// RedisStore keeps tokens in Redis so they survive restarts and are shared
// between replicas
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new Redis-backed CSRF token store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// SaveToken stores a CSRF token with expiration
func (s *RedisStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}
	if expiresIn <= 0 {
		return ErrTokenExpired
	}

	if err := s.client.Set(ctx, tokenPrefix+token, "1", expiresIn).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// ValidateToken checks if a token exists and has not expired
func (s *RedisStore) ValidateToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	// PTTL is -2 for missing keys and -1 for keys without expiry
	ttl, err := s.client.PTTL(ctx, tokenPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("checking token TTL: %w", err)
	}
	switch {
	case ttl == -2:
		return ErrInvalidToken
	case ttl == -1 || ttl == 0:
		return ErrTokenExpired
	}
	return nil
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
