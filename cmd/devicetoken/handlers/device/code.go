// Package device exposes the session registry over JSON: starting a device
// flow, reading its status and cancelling it
package device

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/session"
	"github.com/wrale/devicetoken/internal/validation"
)

// Request bodies larger than this are rejected
const maxBodySize = 64 << 10

// Registry is the part of the session registry the handlers use
type Registry interface {
	Create(ctx context.Context, req deviceflow.DeviceCodeRequest) (string, *deviceflow.DeviceCodeGrant, error)
	Status(id string) (deviceflow.Outcome, error)
	Cancel(id string) error
}

// Config contains handler configuration options
type Config struct {
	Registry Registry

	// Applied when the request leaves them empty
	DefaultTenant string
	DefaultScope  string

	Logger *zap.Logger
}

// Handler serves the device flow endpoints
type Handler struct {
	registry      Registry
	defaultTenant string
	defaultScope  string
	logger        *zap.Logger
}

// New creates a device flow handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:      cfg.Registry,
		defaultTenant: cfg.DefaultTenant,
		defaultScope:  cfg.DefaultScope,
		logger:        logger,
	}
}

// CodeResponse is returned when a flow starts. The device code itself stays
// on the server.
type CodeResponse struct {
	SessionID               string `json:"session_id"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
	Message                 string `json:"message,omitempty"`
}

// Create starts a device flow for the client_id, scope and tenant in the
// request body, JSON or form encoded
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, deviceflow.ErrorCodeInvalidRequest, err.Error())
		return
	}
	if req.Tenant == "" {
		req.Tenant = h.defaultTenant
	}
	if req.Scope == "" {
		req.Scope = h.defaultScope
	}
	if err := req.Normalize().Validate(); err != nil {
		common.WriteError(w, http.StatusBadRequest, deviceflow.ErrorCodeInvalidRequest, err.Error())
		return
	}

	id, grant, err := h.registry.Create(r.Context(), req)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	common.WriteJSON(w, http.StatusOK, CodeResponse{
		SessionID:               id,
		UserCode:                grant.UserCode,
		VerificationURI:         grant.VerificationURI,
		VerificationURIComplete: grant.VerificationURIComplete,
		ExpiresIn:               grant.ExpiresIn,
		Interval:                grant.Interval,
		Message:                 grant.Message,
	})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	var dferr *deviceflow.DeviceFlowError
	var verr *validation.ValidationError
	switch {
	case errors.Is(err, session.ErrTooManySessions), errors.Is(err, session.ErrClosed):
		common.WriteError(w, http.StatusServiceUnavailable, common.ErrorCodeUnavailable,
			"The server cannot start more sign ins right now")
	case errors.As(err, &verr):
		common.WriteError(w, http.StatusBadRequest, deviceflow.ErrorCodeInvalidRequest, verr.Error())
	case errors.As(err, &dferr) && !dferr.Temporary():
		common.WriteError(w, http.StatusBadRequest, dferr.Code, dferr.Description)
	default:
		h.logger.Warn("device code request failed", zap.Error(err))
		common.WriteError(w, http.StatusBadGateway, deviceflow.ErrorCodeServerError,
			"The identity provider could not be reached")
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (deviceflow.DeviceCodeRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return deviceflow.DeviceCodeRequest{}, errors.New("invalid request format")
		}
		for key, values := range r.PostForm {
			if len(values) > 1 {
				return deviceflow.DeviceCodeRequest{}, errors.New("parameters must not be included more than once: " + key)
			}
		}
		return deviceflow.DeviceCodeRequest{
			ClientID: r.PostForm.Get("client_id"),
			Scope:    r.PostForm.Get("scope"),
			Tenant:   r.PostForm.Get("tenant"),
		}, nil
	}

	var req deviceflow.DeviceCodeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return deviceflow.DeviceCodeRequest{}, errors.New("invalid request format")
	}
	return req, nil
}
