// Package session keeps device flows started from the web alive between
// requests. Each session owns one engine driven to completion by a background
// goroutine; callers only ever read its state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/wrale/devicetoken/internal/deviceflow"
)

// Common errors returned by the registry
var (
	// ErrSessionNotFound covers both ids never issued and sessions evicted for idleness
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions indicates the registry is at capacity
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrClosed indicates the registry has been shut down
	ErrClosed = errors.New("session registry closed")
)

// EngineFactory builds a fresh, unstarted engine for each session
type EngineFactory func() *deviceflow.Engine

// Session is one web initiated device flow
type Session struct {
	ID        string
	Engine    *deviceflow.Engine
	CreatedAt time.Time

	lastAccess time.Time
}

// Registry maps opaque session identifiers to running device flows
type Registry struct {
	newEngine     EngineFactory
	clock         clock.WithTicker
	idleTimeout   time.Duration
	sweepInterval time.Duration
	maxSessions   int
	logger        *zap.Logger
	metrics       Metrics

	// ctx bounds every background Run; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry building engines with factory
func NewRegistry(factory EngineFactory, opts ...Option) *Registry {
	r := &Registry{
		newEngine:     factory,
		clock:         clock.RealClock{},
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		maxSessions:   DefaultMaxSessions,
		logger:        zap.NewNop(),
		metrics:       nopMetrics{},
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.idleTimeout <= 0 {
		r.idleTimeout = DefaultIdleTimeout
	}
	if r.sweepInterval <= 0 {
		r.sweepInterval = DefaultSweepInterval
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Create starts a device flow and hands it to a background goroutine that
// polls until the flow ends. The grant is returned for display; start
// failures are returned as is and no session is kept.
func (r *Registry) Create(ctx context.Context, req deviceflow.DeviceCodeRequest) (string, *deviceflow.DeviceCodeGrant, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", nil, ErrClosed
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return "", nil, ErrTooManySessions
	}
	r.mu.Unlock()

	engine := r.newEngine()
	grant, err := engine.Start(ctx, req)
	if err != nil {
		return "", nil, err
	}

	now := r.clock.Now()
	s := &Session{
		ID:         uuid.NewString(),
		Engine:     engine,
		CreatedAt:  now,
		lastAccess: now,
	}

	// Starts run unlocked, so concurrent creates may have filled the registry
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		engine.Cancel()
		return "", nil, ErrClosed
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		engine.Cancel()
		return "", nil, ErrTooManySessions
	}
	r.sessions[s.ID] = s
	active := len(r.sessions)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		o := engine.Run(r.ctx)
		r.logger.Debug("session flow finished", zap.String("session_id", s.ID), zap.String("outcome", o.Kind.String()))
	}()

	r.metrics.SessionCreated()
	r.metrics.ActiveSessions(active)
	r.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("client_id", req.ClientID),
		zap.String("user_code", grant.UserCode))

	return s.ID, grant, nil
}

// Status reports the latest outcome recorded by the session's background
// poller. It never contacts the provider. Any non-terminal outcome is reported
// as Pending, carrying the last transient error message if there was one.
func (r *Registry) Status(id string) (deviceflow.Outcome, error) {
	s, err := r.touch(id)
	if err != nil {
		return deviceflow.Outcome{}, err
	}

	o := s.Engine.State().Outcome
	if !o.Terminal() {
		return deviceflow.Outcome{Kind: deviceflow.OutcomePending, Message: o.Message}, nil
	}
	return o, nil
}

// Get returns a snapshot of the session's flow
func (r *Registry) Get(id string) (deviceflow.State, error) {
	s, err := r.touch(id)
	if err != nil {
		return deviceflow.State{}, err
	}
	return s.Engine.State(), nil
}

// Cancel cancels the session's flow. The session stays readable until it goes idle.
func (r *Registry) Cancel(id string) error {
	s, err := r.touch(id)
	if err != nil {
		return err
	}
	s.Engine.Cancel()
	r.logger.Info("session cancelled", zap.String("session_id", id))
	return nil
}

// Sweep removes sessions idle for at least the idle timeout, whatever their
// phase, and cancels their flows. It returns the number removed.
func (r *Registry) Sweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if r.idleLocked(s, now) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, s := range evicted {
		s.Engine.Cancel()
	}

	if len(evicted) > 0 {
		r.metrics.EvictedSessions(len(evicted))
		r.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)), zap.Int("active", active))
	}
	r.metrics.ActiveSessions(active)
	return len(evicted)
}

// Len returns the number of sessions held
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps periodically until ctx is done
func (r *Registry) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.Sweep()
		}
	}
}

// Shutdown cancels every flow and waits for the background pollers to exit
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	r.cancel()
	for _, s := range sessions {
		s.Engine.Cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session pollers: %w", ctx.Err())
	}
}

// touch looks up a live session and refreshes its last access time. Sessions
// found idle are evicted on the spot.
func (r *Registry) touch(id string) (*Session, error) {
	now := r.clock.Now()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if r.idleLocked(s, now) {
		delete(r.sessions, id)
		active := len(r.sessions)
		r.mu.Unlock()

		s.Engine.Cancel()
		r.metrics.EvictedSessions(1)
		r.metrics.ActiveSessions(active)
		return nil, ErrSessionNotFound
	}
	s.lastAccess = now
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) idleLocked(s *Session, now time.Time) bool {
	return now.Sub(s.lastAccess) >= r.idleTimeout
}
