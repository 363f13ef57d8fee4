package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Poll waits until the next poll is allowed, then makes at most one device
// access token request per RFC 8628 section 3.4 and classifies the reply.
// Once the flow is terminal Poll returns the stored outcome without waiting or
// contacting the provider. Cancelling ctx cancels the flow.
func (e *Engine) Poll(ctx context.Context) Outcome {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()

	e.mu.RLock()
	phase, outcome := e.phase, e.outcome
	var next time.Time
	if phase == PhasePolling {
		next = e.nextPollLocked()
	}
	e.mu.RUnlock()

	switch phase {
	case PhaseTerminal:
		return outcome
	case PhaseNotStarted, PhaseRequested:
		return Outcome{Kind: OutcomeFatalError, Message: ErrNotStarted.Error()}
	}

	if err := e.waitUntil(ctx, next); err != nil {
		if !errors.Is(err, errCancelled) {
			e.Cancel()
		}
		return e.State().Outcome
	}

	e.mu.Lock()
	if e.phase == PhaseTerminal {
		o := e.outcome
		e.mu.Unlock()
		return o
	}
	now := e.clock.Now()
	if !now.Before(e.grant.Deadline()) {
		o := e.finishLocked(Outcome{Kind: OutcomeExpired, Message: "device code expired"})
		e.mu.Unlock()
		return o
	}
	if e.timeout > 0 && now.Sub(e.startedAt) >= e.timeout {
		o := e.finishLocked(Outcome{Kind: OutcomeTimedOut, Message: fmt.Sprintf("no token after %s", e.timeout)})
		e.mu.Unlock()
		return o
	}
	e.lastPoll = now
	e.polls++
	req, deviceCode, attempt := e.req, e.grant.DeviceCode, e.polls
	e.mu.Unlock()

	e.logger.Debug("polling token endpoint", zap.String("client_id", req.ClientID), zap.Int("attempt", attempt))

	callCtx, done := e.callContext(ctx)
	token, err := e.provider.PollToken(callCtx, req, deviceCode)
	done()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Cancelled while the request was in flight; the reply is discarded
	if e.phase == PhaseTerminal {
		return e.outcome
	}
	if ctx.Err() != nil {
		return e.finishLocked(Outcome{Kind: OutcomeCancelled, Message: "cancelled by user"})
	}

	o := e.classifyLocked(token, err)
	if !o.Terminal() {
		e.outcome = o
	}
	return o
}

// nextPollLocked returns when the next poll may happen, pulled in to the
// grant deadline or client ceiling when those come first
func (e *Engine) nextPollLocked() time.Time {
	next := e.lastPoll.Add(e.interval)
	if deadline := e.grant.Deadline(); deadline.Before(next) {
		next = deadline
	}
	if e.timeout > 0 {
		if ceiling := e.startedAt.Add(e.timeout); ceiling.Before(next) {
			next = ceiling
		}
	}
	return next
}

func (e *Engine) waitUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(e.clock.Now())
	if d <= 0 {
		return ctx.Err()
	}

	timer := e.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-e.ctx.Done():
		return errCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyLocked maps one provider reply onto the outcome taxonomy
func (e *Engine) classifyLocked(token *TokenResponse, err error) Outcome {
	if err == nil {
		if token != nil && token.AccessToken != "" {
			e.transient = 0
			e.observer.ObservePoll("success")
			return e.finishLocked(Outcome{Kind: OutcomeSuccess, Token: token})
		}
		err = errors.New("token response missing access_token")
	}

	var dferr *DeviceFlowError
	if errors.As(err, &dferr) {
		e.observer.ObservePoll(dferr.Code)

		switch dferr.Code {
		case ErrorCodeAuthorizationPending:
			e.transient = 0
			return Outcome{Kind: OutcomePending}

		case ErrorCodeSlowDown:
			e.transient = 0
			e.interval += e.slowDownStep
			e.logger.Info("provider asked to slow down", zap.Duration("interval", e.interval))
			return Outcome{Kind: OutcomePending}

		case ErrorCodeAccessDenied, ErrorCodeAuthorizationDeclined:
			return e.finishLocked(Outcome{Kind: OutcomeDenied, Message: describe(dferr)})

		case ErrorCodeExpiredToken, ErrorCodeCodeExpired:
			return e.finishLocked(Outcome{Kind: OutcomeExpired, Message: describe(dferr)})
		}

		if !dferr.Temporary() {
			return e.finishLocked(Outcome{Kind: OutcomeFatalError, Message: err.Error()})
		}
	} else {
		e.observer.ObservePoll("transport_error")
	}

	e.transient++
	if e.transient >= e.maxTransient {
		return e.finishLocked(Outcome{
			Kind:    OutcomeFatalError,
			Message: fmt.Sprintf("giving up after %d consecutive provider failures: %v", e.transient, err),
		})
	}

	e.logger.Warn("transient provider failure", zap.Int("consecutive", e.transient), zap.Error(err))
	return Outcome{Kind: OutcomeTransientError, Message: err.Error()}
}

func describe(err *DeviceFlowError) string {
	if err.Description != "" {
		return err.Description
	}
	return err.Code
}
