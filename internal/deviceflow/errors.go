package deviceflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by token endpoints per RFC 8628 section 3.5 and RFC 6749 section 5.2
const (
	ErrorCodeAuthorizationPending  = "authorization_pending"
	ErrorCodeSlowDown              = "slow_down"
	ErrorCodeAccessDenied          = "access_denied"
	ErrorCodeAuthorizationDeclined = "authorization_declined" // Microsoft identity platform
	ErrorCodeExpiredToken          = "expired_token"
	ErrorCodeCodeExpired           = "code_expired" // Microsoft identity platform
	ErrorCodeBadVerificationCode   = "bad_verification_code"
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeInvalidClient         = "invalid_client"
	ErrorCodeInvalidGrant          = "invalid_grant"
	ErrorCodeInvalidScope          = "invalid_scope"
	ErrorCodeUnauthorizedClient    = "unauthorized_client"
	ErrorCodeUnsupportedGrant      = "unsupported_grant_type"
	ErrorCodeServerError           = "server_error"
)

// Common errors that may occur during the device authorization flow
var (
	// ErrFatal wraps every error that ends a flow without a token
	ErrFatal = errors.New("device flow failed")

	// ErrAlreadyStarted indicates Start was called on a running flow
	ErrAlreadyStarted = errors.New("device flow already started")

	// ErrNotStarted indicates Poll was called before Start
	ErrNotStarted = errors.New("device flow not started")

	// errCancelled is returned from waits interrupted by Cancel
	errCancelled = errors.New("device flow cancelled")
)

// DeviceFlowError is a structured OAuth error reported by the provider
type DeviceFlowError struct {
	Code        string
	Description string
	StatusCode  int
}

func (e *DeviceFlowError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth error %s", e.Code)
	}
	return fmt.Sprintf("oauth error %s: %s", e.Code, e.Description)
}

// Temporary reports whether the provider may answer differently on retry
func (e *DeviceFlowError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
