// Package catalog serves the application list to the web front end
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
	"github.com/wrale/devicetoken/internal/catalog"
)

// MaxSearchResults caps the apps returned by one search
const MaxSearchResults = 50

// Handler answers catalog lookups
type Handler struct {
	catalog *catalog.Catalog
	scopes  *catalog.ScopeMap
}

// New creates a catalog handler. scopes may be nil.
func New(c *catalog.Catalog, scopes *catalog.ScopeMap) *Handler {
	return &Handler{catalog: c, scopes: scopes}
}

// TopApps lists the well known applications
func (h *Handler) TopApps(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, catalog.TopApps())
}

// Search lists the apps whose name contains the q parameter
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	apps := h.catalog.Search(r.URL.Query().Get("q"), MaxSearchResults)
	if apps == nil {
		apps = []catalog.App{}
	}
	common.WriteJSON(w, http.StatusOK, apps)
}

// Scopes lists the scopes known to work with the clientID path parameter
func (h *Handler) Scopes(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.scopes.Scopes(chi.URLParam(r, "clientID")))
}
