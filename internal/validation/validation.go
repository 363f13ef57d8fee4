// Package validation checks identifiers accepted from users before they reach
// the identity provider or the session registry
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Validation settings
const (
	MaxClientIDLength  = 128
	MaxTenantLength    = 256
	MaxScopeLength     = 2048
	MaxSessionIDLength = 36
)

// Tenants are a GUID, a verified domain or one of the well known aliases
var tenantRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-]*$`)

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// ValidateClientID checks an OAuth client identifier. Any non-empty printable
// value is accepted since custom applications need not use GUIDs.
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return &ValidationError{Field: "client_id", Message: "client ID is required"}
	}
	if len(clientID) > MaxClientIDLength {
		return &ValidationError{
			Field:   "client_id",
			Message: fmt.Sprintf("length must not exceed %d characters", MaxClientIDLength),
		}
	}
	for _, r := range clientID {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return &ValidationError{Field: "client_id", Value: clientID, Message: "must not contain whitespace or control characters"}
		}
	}
	return nil
}

// ValidateTenant checks a tenant path segment
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return &ValidationError{Field: "tenant", Message: "tenant is required"}
	}
	if len(tenant) > MaxTenantLength {
		return &ValidationError{
			Field:   "tenant",
			Message: fmt.Sprintf("length must not exceed %d characters", MaxTenantLength),
		}
	}
	if !tenantRegex.MatchString(tenant) || strings.Contains(tenant, "..") {
		return &ValidationError{Field: "tenant", Value: tenant, Message: "must be a tenant ID, domain name or alias"}
	}
	return nil
}

// NormalizeScope collapses whitespace in a space separated scope list and
// drops duplicate entries, keeping first occurrence order
func NormalizeScope(scope string) string {
	fields := strings.Fields(scope)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// ValidateScope checks a normalized scope list
func ValidateScope(scope string) error {
	if len(scope) > MaxScopeLength {
		return &ValidationError{
			Field:   "scope",
			Message: fmt.Sprintf("length must not exceed %d characters", MaxScopeLength),
		}
	}
	return nil
}

// ValidateSessionID checks that a session identifier is a UUID in canonical form
func ValidateSessionID(id string) error {
	if id == "" {
		return &ValidationError{Field: "session_id", Message: "session ID is required"}
	}
	if len(id) != MaxSessionIDLength {
		return &ValidationError{Field: "session_id", Message: "malformed session ID"}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: "session_id", Message: "malformed session ID"}
	}
	return nil
}
