// Package ratelimit provides per client rate limiting for the device code endpoint
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Config holds rate limiter configuration
type Config struct {
	// PerMinute is the number of requests allowed per minute and client
	PerMinute int
	// Burst is the maximum number of requests allowed at once, PerMinute when zero
	Burst int
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration
}

// entry holds the limiter and last access time of one client
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter implements per-IP rate limiting with periodic cleanup
type Limiter struct {
	config Config
	clock  clock.WithTicker

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a per-IP rate limiter. A nil clock uses the real clock.
func New(cfg Config, c clock.WithTicker) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Limiter{
		config:  cfg,
		clock:   c,
		entries: make(map[string]*entry),
	}
}

// Allow reports whether a request from key may proceed now
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.config.PerMinute)), l.config.Burst),
		}
		l.entries[key] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit through onLimit. Clients are
// keyed by the host part of RemoteAddr, so chi's RealIP should run first.
func (l *Limiter) Middleware(onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientKey(r)) {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run removes stale entries periodically until ctx is done
func (l *Limiter) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			l.Cleanup()
		}
	}
}

// Cleanup removes entries that haven't been accessed recently
func (l *Limiter) Cleanup() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > l.config.MaxAge {
			delete(l.entries, key)
		}
	}
}

// Len returns the current number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
