package deviceflow

import (
	"strings"
	"time"

	"github.com/wrale/devicetoken/internal/validation"
)

const (
	// DefaultScope is requested when the caller does not name one
	DefaultScope = "https://graph.microsoft.com/.default offline_access openid"

	// DefaultTenant routes the request to the multi-tenant endpoint
	DefaultTenant = "common"

	// DefaultInterval applies when the provider omits interval per RFC 8628 section 3.2
	DefaultInterval = 5

	// DefaultExpiresIn applies when the provider omits expires_in
	DefaultExpiresIn = 900
)

// DeviceCodeRequest names the application and permissions a flow asks for
type DeviceCodeRequest struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"` // Space separated
	Tenant   string `json:"tenant,omitempty"`
}

// Normalize returns a copy with defaults applied and whitespace collapsed
func (r DeviceCodeRequest) Normalize() DeviceCodeRequest {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Scope = validation.NormalizeScope(r.Scope)
	if r.Scope == "" {
		r.Scope = DefaultScope
	}
	r.Tenant = strings.TrimSpace(r.Tenant)
	if r.Tenant == "" {
		r.Tenant = DefaultTenant
	}
	return r
}

// Validate checks the request can be sent to a provider
func (r DeviceCodeRequest) Validate() error {
	if err := validation.ValidateClientID(r.ClientID); err != nil {
		return err
	}
	if r.Tenant != "" {
		if err := validation.ValidateTenant(r.Tenant); err != nil {
			return err
		}
	}
	return validation.ValidateScope(r.Scope)
}

// DeviceCodeGrant represents the device authorization details per RFC 8628 section 3.2
type DeviceCodeGrant struct {
	// Only used when polling, never shown to the user
	DeviceCode      string `json:"-"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"` // Lifetime in seconds from IssuedAt
	Interval        int    `json:"interval"`   // Poll interval in seconds

	// Optional verification_uri_complete per RFC 8628 section 3.3.1
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`

	// Human readable instructions, provider supplied or built locally
	Message string `json:"message,omitempty"`

	IssuedAt time.Time `json:"-"`
}

// Deadline returns the absolute expiry of the device code
func (g *DeviceCodeGrant) Deadline() time.Time {
	return g.IssuedAt.Add(time.Duration(g.ExpiresIn) * time.Second)
}

// TokenResponse represents the OAuth2 token response per RFC 8628 section 3.5
type TokenResponse struct {
	AccessToken  string `json:"access_token"`            // The OAuth2 access token
	TokenType    string `json:"token_type"`              // Token type (usually "Bearer")
	ExpiresIn    int    `json:"expires_in"`              // Token validity in seconds
	Scope        string `json:"scope,omitempty"`         // OAuth2 scope granted
	RefreshToken string `json:"refresh_token,omitempty"` // Optional refresh token
	IDToken      string `json:"id_token,omitempty"`      // Present when openid was requested
}
