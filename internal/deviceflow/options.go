// Package deviceflow implements the client side of the OAuth 2.0 Device Authorization Grant (RFC 8628)
package deviceflow

import (
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Option configures the device flow engine
type Option func(*Engine)

// WithClock sets the clock used for waits, deadlines and elapsed time
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTimeout sets a client side ceiling on the whole flow, independent of
// the expiry the provider grants. Zero disables the ceiling.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithSlowDownIncrement sets how much a slow_down response adds to the interval
// per RFC 8628 section 3.5
func WithSlowDownIncrement(d time.Duration) Option {
	return func(e *Engine) {
		e.slowDownStep = d
	}
}

// WithMaxTransientErrors sets how many consecutive transient failures end the flow
func WithMaxTransientErrors(n int) Option {
	return func(e *Engine) {
		e.maxTransient = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver receives poll and outcome events, typically for metrics
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}
