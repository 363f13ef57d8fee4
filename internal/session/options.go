package session

import (
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	// DefaultIdleTimeout matches the usual device code lifetime
	DefaultIdleTimeout = 15 * time.Minute

	// DefaultSweepInterval is how often Run evicts idle sessions
	DefaultSweepInterval = time.Minute

	// DefaultMaxSessions bounds the number of concurrently held sessions
	DefaultMaxSessions = 1000
)

// Metrics receives registry lifecycle events
type Metrics interface {
	SessionCreated()
	EvictedSessions(n int)
	ActiveSessions(n int)
}

type nopMetrics struct{}

func (nopMetrics) SessionCreated()     {}
func (nopMetrics) EvictedSessions(int) {}
func (nopMetrics) ActiveSessions(int)  {}

// Option configures a Registry
type Option func(*Registry)

// WithClock sets the clock used for idle accounting and the sweep ticker
func WithClock(c clock.WithTicker) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithIdleTimeout sets how long a session survives without a Status or Cancel call
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// WithSweepInterval sets the period of the background sweep
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.sweepInterval = d
	}
}

// WithMaxSessions caps concurrently held sessions
func WithMaxSessions(n int) Option {
	return func(r *Registry) {
		r.maxSessions = n
	}
}

// WithLogger sets the registry logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the lifecycle metrics sink
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}
