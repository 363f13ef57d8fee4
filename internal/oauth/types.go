// Package oauth talks to the Microsoft identity platform on behalf of the
// device flow engine
package oauth

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAuthority is the public cloud login host
	DefaultAuthority = "https://login.microsoftonline.com"

	// Per request timeout when no HTTP client is supplied
	defaultTimeout = 10 * time.Second

	// Error bodies larger than this are truncated before decoding
	maxBodySize = 1 << 20
)

// Common errors returned by providers
var (
	ErrProviderUnavailable = errors.New("oauth provider unavailable")
	ErrInvalidAuthority    = errors.New("invalid authority")
)

// EntraConfig configures the Microsoft Entra ID provider
type EntraConfig struct {
	// Authority is the login host, DefaultAuthority when empty
	Authority string

	// HTTPClient is used for every request, a client with a 10s timeout when nil
	HTTPClient *http.Client

	Logger *zap.Logger
}

// errorResponse is an RFC 6749 section 5.2 error body
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes,omitempty"`
}

// tokenResponse is the Microsoft token endpoint success body
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}
