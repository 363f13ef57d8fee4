package device

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/session"
	"github.com/wrale/devicetoken/internal/validation"
)

// StatusResponse reports a session's outcome. Token fields are only set on success.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Status reports the outcome of the session named by the id path parameter.
// It never contacts the identity provider.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if validation.ValidateSessionID(id) != nil {
		writeNotFound(w)
		return
	}

	o, err := h.registry.Status(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeOutcome(w, o)
}

// Cancel cancels the session named by the id path parameter and reports the
// resulting outcome, which is the earlier one if the flow had already ended
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if validation.ValidateSessionID(id) != nil {
		writeNotFound(w)
		return
	}

	if err := h.registry.Cancel(id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	o, err := h.registry.Status(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeOutcome(w, o)
}

func writeOutcome(w http.ResponseWriter, o deviceflow.Outcome) {
	resp := StatusResponse{Status: o.Kind.String(), Message: o.Message}
	if o.Kind == deviceflow.OutcomeSuccess && o.Token != nil {
		resp.AccessToken = o.Token.AccessToken
		resp.TokenType = o.Token.TokenType
		resp.ExpiresIn = o.Token.ExpiresIn
		resp.Scope = o.Token.Scope
		resp.RefreshToken = o.Token.RefreshToken
		resp.IDToken = o.Token.IDToken
	}
	common.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeNotFound(w)
		return
	}
	common.WriteError(w, http.StatusInternalServerError, deviceflow.ErrorCodeServerError, err.Error())
}

func writeNotFound(w http.ResponseWriter) {
	common.WriteError(w, http.StatusNotFound, common.ErrorCodeSessionNotFound, "")
}
