// Package health reports whether the server's dependencies are reachable
package health

import (
	"context"
	"net/http"
	"sort"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
)

// Checker probes one dependency
type Checker func(ctx context.Context) error

// Handler processes health check requests
type Handler struct {
	checks  map[string]Checker
	version string
}

// Response represents the health check response
type Response struct {
	Status  string                    `json:"status"`
	Version string                    `json:"version,omitempty"`
	Details map[string]ComponentState `json:"details,omitempty"`
}

// ComponentState is the health of one dependency
type ComponentState struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// New creates a health handler running checks, keyed by component name
func New(checks map[string]Checker) *Handler {
	return &Handler{
		checks:  checks,
		version: "unknown",
	}
}

// WithVersion sets the version for health check responses
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]ComponentState, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](r.Context()); err != nil {
			response.Status = "unhealthy"
			response.Details[name] = ComponentState{Status: "unhealthy", Message: err.Error()}
			continue
		}
		response.Details[name] = ComponentState{Status: "healthy"}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	common.WriteJSON(w, status, response)
}
