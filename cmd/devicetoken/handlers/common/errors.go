// Package common holds the JSON response helpers shared by the API handlers
package common

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error codes of the web API beyond those defined by RFC 6749
const (
	ErrorCodeSessionNotFound = "session_not_found"
	ErrorCodeRateLimited     = "rate_limited"
	ErrorCodeInvalidCSRF     = "invalid_csrf_token"
	ErrorCodeUnavailable     = "temporarily_unavailable"
)

// ErrorResponse is an RFC 6749 section 5.2 style error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets the headers of every API response. Responses can carry
// tokens so they must never be cached.
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON encodes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(w, err)
		return
	}

	SetJSONHeaders(w)
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError sends a standardized error response
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	WriteJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	})
}

// WriteJSONError handles JSON encoding failures with a standardized response
func WriteJSONError(w http.ResponseWriter, err error) {
	// Headers must be set here since they weren't set by caller due to error
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)

	// Create error response manually since JSON encoding failed
	errResponse := []byte(`{"error":"server_error","error_description":"Failed to encode response"}`)
	if _, writeErr := w.Write(errResponse); writeErr != nil {
		return
	}
}
