package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	// SlowDownIncrement is added to the interval on slow_down per RFC 8628 section 3.5
	SlowDownIncrement = 5 * time.Second

	// MaxTransientErrors consecutive provider failures end the flow
	MaxTransientErrors = 3
)

// Provider is the identity provider as seen by the engine
type Provider interface {
	// RequestDeviceCode performs the device authorization request (RFC 8628 section 3.1)
	RequestDeviceCode(ctx context.Context, req DeviceCodeRequest) (*DeviceCodeGrant, error)

	// PollToken performs a single device access token request (RFC 8628 section 3.4).
	// Protocol errors are reported as *DeviceFlowError.
	PollToken(ctx context.Context, req DeviceCodeRequest, deviceCode string) (*TokenResponse, error)
}

// Engine runs one device authorization flow from request to a terminal outcome.
// It is safe for concurrent use: polls are serialized and State may be read at
// any time.
type Engine struct {
	provider     Provider
	clock        clock.Clock
	timeout      time.Duration
	slowDownStep time.Duration
	maxTransient int
	logger       *zap.Logger
	observer     Observer

	// ctx is cancelled once the flow is terminal, waking waits and aborting
	// in-flight provider calls
	ctx    context.Context
	cancel context.CancelFunc

	pollMu sync.Mutex

	mu         sync.RWMutex
	phase      Phase
	req        DeviceCodeRequest
	grant      *DeviceCodeGrant
	interval   time.Duration
	startedAt  time.Time
	finishedAt time.Time
	lastPoll   time.Time
	polls      int
	transient  int
	outcome    Outcome
}

// State is a point in time copy of an engine's flow state
type State struct {
	Phase                Phase
	Request              DeviceCodeRequest
	Grant                *DeviceCodeGrant
	Interval             time.Duration
	Elapsed              time.Duration
	Polls                int
	ConsecutiveTransient int
	Outcome              Outcome
}

// NewEngine creates a device flow engine with provided options
func NewEngine(provider Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		clock:        clock.RealClock{},
		slowDownStep: SlowDownIncrement,
		maxTransient: MaxTransientErrors,
		logger:       zap.NewNop(),
		observer:     nopObserver{},
		outcome:      Outcome{Kind: OutcomePending},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.slowDownStep <= 0 {
		e.slowDownStep = SlowDownIncrement
	}
	if e.maxTransient <= 0 {
		e.maxTransient = MaxTransientErrors
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start requests a device code. Every failure here is fatal and ends the flow.
func (e *Engine) Start(ctx context.Context, req DeviceCodeRequest) (*DeviceCodeGrant, error) {
	req = req.Normalize()

	e.mu.Lock()
	if e.phase != PhaseNotStarted {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if err := req.Validate(); err != nil {
		e.finishLocked(Outcome{Kind: OutcomeFatalError, Message: err.Error()})
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrFatal, err)
	}
	e.req = req
	e.startedAt = e.clock.Now()
	e.advanceLocked(PhaseRequested)
	e.mu.Unlock()

	log := e.logger.With(zap.String("client_id", req.ClientID), zap.String("tenant", req.Tenant))
	log.Debug("requesting device code", zap.String("scope", req.Scope))

	callCtx, done := e.callContext(ctx)
	grant, err := e.provider.RequestDeviceCode(callCtx, req)
	done()
	if err == nil && (grant == nil || grant.DeviceCode == "" || grant.UserCode == "") {
		err = errors.New("device authorization response missing device_code or user_code")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseTerminal {
		return nil, fmt.Errorf("%w: %s", ErrFatal, e.outcome.Kind)
	}
	if err != nil {
		log.Warn("device code request failed", zap.Error(err))
		e.finishLocked(Outcome{Kind: OutcomeFatalError, Message: err.Error()})
		return nil, fmt.Errorf("%w: requesting device code: %w", ErrFatal, err)
	}

	if grant.Interval <= 0 {
		grant.Interval = DefaultInterval
	}
	if grant.ExpiresIn <= 0 {
		grant.ExpiresIn = DefaultExpiresIn
	}
	grant.IssuedAt = e.clock.Now()
	if grant.Message == "" {
		grant.Message = fmt.Sprintf("To sign in, use a web browser to open the page %s and enter the code %s to authenticate.",
			grant.VerificationURI, grant.UserCode)
	}

	e.grant = grant
	e.interval = time.Duration(grant.Interval) * time.Second
	e.lastPoll = grant.IssuedAt
	e.advanceLocked(PhasePolling)

	log.Info("device code issued",
		zap.String("user_code", grant.UserCode),
		zap.Int("expires_in", grant.ExpiresIn),
		zap.Int("interval", grant.Interval))

	out := *grant
	return &out, nil
}

// Cancel abandons the flow. A waiting or in-flight Poll returns promptly and
// no further provider calls are made.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseTerminal {
		return
	}
	e.finishLocked(Outcome{Kind: OutcomeCancelled, Message: "cancelled by user"})
}

// Run polls until the flow reaches a terminal outcome. Cancelling ctx cancels the flow.
func (e *Engine) Run(ctx context.Context) Outcome {
	for {
		if o := e.Poll(ctx); o.Terminal() {
			return o
		}
	}
}

// State returns a snapshot of the flow
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{
		Phase:                e.phase,
		Request:              e.req,
		Interval:             e.interval,
		Polls:                e.polls,
		ConsecutiveTransient: e.transient,
		Outcome:              e.outcome,
	}
	if e.grant != nil {
		g := *e.grant
		s.Grant = &g
	}
	if !e.startedAt.IsZero() {
		end := e.clock.Now()
		if e.phase == PhaseTerminal {
			end = e.finishedAt
		}
		s.Elapsed = end.Sub(e.startedAt)
	}
	return s
}

// advanceLocked moves the phase forward, never backward
func (e *Engine) advanceLocked(p Phase) {
	if p > e.phase {
		e.phase = p
	}
}

// finishLocked records the one terminal outcome of the flow
func (e *Engine) finishLocked(o Outcome) Outcome {
	e.outcome = o
	e.finishedAt = e.clock.Now()
	e.advanceLocked(PhaseTerminal)
	e.cancel()
	e.observer.ObserveOutcome(o.Kind.String())

	fields := []zap.Field{
		zap.String("client_id", e.req.ClientID),
		zap.String("outcome", o.Kind.String()),
		zap.Int("polls", e.polls),
	}
	if o.Message != "" {
		fields = append(fields, zap.String("message", o.Message))
	}
	e.logger.Info("device flow finished", fields...)
	return o
}

// callContext derives a context for a provider call that also ends when the flow does
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}
