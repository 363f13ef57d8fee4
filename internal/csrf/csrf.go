// Package csrf issues and checks the anti forgery tokens required by the
// state changing web API calls
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HeaderName carries the token on API requests
const HeaderName = "X-CSRF-Token"

var (
	// ErrInvalidToken indicates a missing or invalid CSRF token
	ErrInvalidToken = errors.New("invalid csrf token")

	// ErrTokenExpired indicates the CSRF token has expired
	ErrTokenExpired = errors.New("csrf token expired")
)

// Store remembers issued tokens until they expire
type Store interface {
	// SaveToken stores a CSRF token with expiry
	SaveToken(ctx context.Context, token string, expiresIn time.Duration) error

	// ValidateToken checks if a token exists and is valid
	ValidateToken(ctx context.Context, token string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Manager signs tokens with an HMAC secret and records them in a Store.
// Tokens are reusable until they expire so a page can start several flows.
type Manager struct {
	store     Store
	secret    []byte
	expiresIn time.Duration
}

// NewManager creates a new CSRF token manager
func NewManager(store Store, secret []byte, expiresIn time.Duration) *Manager {
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
	}
}

// GenerateToken creates and stores a new token of the form <random>.<signature>
func (m *Manager) GenerateToken(ctx context.Context) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	nonce := base64.RawURLEncoding.EncodeToString(raw)
	token := nonce + "." + base64.RawURLEncoding.EncodeToString(m.sign(nonce))

	if err := m.store.SaveToken(ctx, token, m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}
	return token, nil
}

// ValidateToken checks the signature first so forged tokens never reach the store
func (m *Manager) ValidateToken(ctx context.Context, token string) error {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return ErrInvalidToken
	}

	actual, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(m.sign(nonce), actual) {
		return ErrInvalidToken
	}

	if err := m.store.ValidateToken(ctx, token); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	return nil
}

// CheckHealth verifies the CSRF manager is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("csrf store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) sign(nonce string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(nonce))
	return h.Sum(nil)
}
