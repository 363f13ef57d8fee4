// Package deviceflowtest provides a scripted identity provider for tests
package deviceflowtest

import (
	"context"
	"sync"

	"github.com/wrale/devicetoken/internal/deviceflow"
)

// Reply is one scripted answer to a token poll
type Reply struct {
	Token *deviceflow.TokenResponse
	Err   error
}

// Pending is the authorization_pending reply
func Pending() Reply {
	return Reply{Err: &deviceflow.DeviceFlowError{Code: deviceflow.ErrorCodeAuthorizationPending, StatusCode: 400}}
}

// SlowDown is the slow_down reply
func SlowDown() Reply {
	return Reply{Err: &deviceflow.DeviceFlowError{Code: deviceflow.ErrorCodeSlowDown, StatusCode: 400}}
}

// OAuthError is a structured error reply
func OAuthError(code string, status int) Reply {
	return Reply{Err: &deviceflow.DeviceFlowError{Code: code, Description: code + " from provider", StatusCode: status}}
}

// Token is a successful reply
func Token(access string) Reply {
	return Reply{Token: &deviceflow.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Scope:       "https://management.azure.com/user_impersonation",
	}}
}

// Provider implements deviceflow.Provider from a script of replies. When the
// script runs out the last reply repeats, or authorization_pending if the
// script was empty.
type Provider struct {
	mu sync.Mutex

	Grant     deviceflow.DeviceCodeGrant
	GrantErr  error
	Replies   []Reply
	Requests  []deviceflow.DeviceCodeRequest
	PollCalls int

	// Polled, if set, receives the poll number after each PollToken call
	Polled chan int

	// Block, if set, holds PollToken until it is closed or ctx ends
	Block chan struct{}

	// StartGate, if set, holds RequestDeviceCode after the request is
	// recorded until it is closed or ctx ends
	StartGate chan struct{}
}

var _ deviceflow.Provider = (*Provider)(nil)

// New creates a provider issuing a typical grant
func New(replies ...Reply) *Provider {
	return &Provider{
		Grant: deviceflow.DeviceCodeGrant{
			DeviceCode:      "device-code-secret",
			UserCode:        "ABCD-EFGH",
			VerificationURI: "https://microsoft.com/devicelogin",
			ExpiresIn:       900,
			Interval:        5,
		},
		Replies: replies,
	}
}

// RequestDeviceCode implements deviceflow.Provider
func (p *Provider) RequestDeviceCode(ctx context.Context, req deviceflow.DeviceCodeRequest) (*deviceflow.DeviceCodeGrant, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	gate := p.StartGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GrantErr != nil {
		return nil, p.GrantErr
	}
	grant := p.Grant
	return &grant, nil
}

// PollToken implements deviceflow.Provider
func (p *Provider) PollToken(ctx context.Context, req deviceflow.DeviceCodeRequest, deviceCode string) (*deviceflow.TokenResponse, error) {
	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	p.PollCalls++
	n := p.PollCalls
	reply := Pending()
	switch {
	case n <= len(p.Replies):
		reply = p.Replies[n-1]
	case len(p.Replies) > 0:
		reply = p.Replies[len(p.Replies)-1]
	}
	polled := p.Polled
	p.mu.Unlock()

	if polled != nil {
		polled <- n
	}
	return reply.Token, reply.Err
}

// Received returns a copy of the device code requests seen so far
func (p *Provider) Received() []deviceflow.DeviceCodeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]deviceflow.DeviceCodeRequest(nil), p.Requests...)
}

// Calls returns the number of PollToken calls so far
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PollCalls
}
