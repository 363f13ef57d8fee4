package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/validation"
)

const (
	// Microsoft identity platform v2.0 endpoint paths, relative to the tenant
	deviceCodePath  = "/oauth2/v2.0/devicecode"
	tokenPath       = "/oauth2/v2.0/token"
	healthCheckPath = "/v2.0/.well-known/openid-configuration"

	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// EntraProvider implements deviceflow.Provider against Microsoft Entra ID
type EntraProvider struct {
	client    *http.Client
	authority string
	logger    *zap.Logger
}

var _ deviceflow.Provider = (*EntraProvider)(nil)

// NewEntraProvider creates a new Entra ID provider
func NewEntraProvider(cfg EntraConfig) (*EntraProvider, error) {
	authority := strings.TrimSuffix(cfg.Authority, "/")
	if authority == "" {
		authority = DefaultAuthority
	}
	u, err := url.Parse(authority)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthority, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidAuthority, cfg.Authority)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EntraProvider{
		client:    client,
		authority: authority,
		logger:    logger,
	}, nil
}

// Endpoint returns the device flow endpoints of a tenant
func (p *EntraProvider) Endpoint(tenant string) oauth2.Endpoint {
	if tenant == "" {
		tenant = deviceflow.DefaultTenant
	}
	base := p.authority + "/" + url.PathEscape(tenant)
	return oauth2.Endpoint{
		DeviceAuthURL: base + deviceCodePath,
		TokenURL:      base + tokenPath,
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// RequestDeviceCode performs the device authorization request
func (p *EntraProvider) RequestDeviceCode(ctx context.Context, req deviceflow.DeviceCodeRequest) (*deviceflow.DeviceCodeGrant, error) {
	if err := validation.ValidateTenant(req.Tenant); err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID: req.ClientID,
		Endpoint: p.Endpoint(req.Tenant),
		Scopes:   strings.Fields(req.Scope),
	}

	// DeviceAuthResponse has no field for the provider's localized message
	next := p.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	rec := &messageRecorder{next: next}
	client := *p.client
	client.Transport = rec

	resp, err := cfg.DeviceAuth(context.WithValue(ctx, oauth2.HTTPClient, &client))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, retrieveError(rerr)
		}
		return nil, fmt.Errorf("requesting device code: %w", err)
	}

	grant := &deviceflow.DeviceCodeGrant{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                int(resp.Interval),
		Message:                 strings.TrimSpace(rec.message),
	}
	if !resp.Expiry.IsZero() {
		grant.ExpiresIn = int(math.Round(time.Until(resp.Expiry).Seconds()))
	}

	p.logger.Debug("device code received",
		zap.String("client_id", req.ClientID),
		zap.String("tenant", req.Tenant),
		zap.Int("expires_in", grant.ExpiresIn))

	return grant, nil
}

// PollToken performs one device access token request
func (p *EntraProvider) PollToken(ctx context.Context, req deviceflow.DeviceCodeRequest, deviceCode string) (*deviceflow.TokenResponse, error) {
	data := url.Values{
		"grant_type":  {deviceCodeGrantType},
		"client_id":   {req.ClientID},
		"device_code": {deviceCode},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(req.Tenant).TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}

	return &deviceflow.TokenResponse{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		ExpiresIn:    tokenResp.ExpiresIn,
		Scope:        tokenResp.Scope,
		RefreshToken: tokenResp.RefreshToken,
		IDToken:      tokenResp.IDToken,
	}, nil
}

// CheckHealth verifies the provider is accessible
func (p *EntraProvider) CheckHealth(ctx context.Context, tenant string) error {
	if tenant == "" {
		tenant = deviceflow.DefaultTenant
	}
	healthURL := p.authority + "/" + url.PathEscape(tenant) + healthCheckPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: discovery returned %s", ErrProviderUnavailable, resp.Status)
	}
	return nil
}

// messageRecorder keeps the message field of a successful device
// authorization reply
type messageRecorder struct {
	next    http.RoundTripper
	message string
}

func (m *messageRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := m.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading device code response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var reply struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &reply) == nil {
		m.message = reply.Message
	}
	return resp, nil
}

func retrieveError(rerr *oauth2.RetrieveError) error {
	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}
	if rerr.ErrorCode != "" {
		return &deviceflow.DeviceFlowError{
			Code:        rerr.ErrorCode,
			Description: rerr.ErrorDescription,
			StatusCode:  status,
		}
	}
	return statusError(status, rerr.Body)
}

// statusError turns a non-200 reply into a structured error when the body is
// an OAuth error, a retryable server error for 5xx and 429, and a plain error
// otherwise
func statusError(status int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &deviceflow.DeviceFlowError{
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			StatusCode:  status,
		}
	}

	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return &deviceflow.DeviceFlowError{
			Code:        deviceflow.ErrorCodeServerError,
			Description: fmt.Sprintf("provider returned %d %s", status, http.StatusText(status)),
			StatusCode:  status,
		}
	}
	return fmt.Errorf("unexpected token endpoint status %d", status)
}
