package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/catalog"
	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/device"
	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/health"
	appcatalog "github.com/wrale/devicetoken/internal/catalog"
	"github.com/wrale/devicetoken/internal/csrf"
	"github.com/wrale/devicetoken/internal/metrics"
	"github.com/wrale/devicetoken/internal/ratelimit"
	"github.com/wrale/devicetoken/internal/templates"
)

// requestTimeout bounds every request, including the device code call to the provider
const requestTimeout = 30 * time.Second

// providerHealth checks that the identity platform answers for a tenant
type providerHealth interface {
	CheckHealth(ctx context.Context, tenant string) error
}

type server struct {
	cfg       Config
	router    *chi.Mux
	registry  device.Registry
	provider  providerHealth
	csrf      *csrf.Manager
	limiter   *ratelimit.Limiter
	catalog   *appcatalog.Catalog
	scopes    *appcatalog.ScopeMap
	templates *templates.Templates
	logger    *zap.Logger
}

func newServer(s *server) (*server, error) {
	if s.templates == nil {
		tmpls, err := templates.LoadTemplates()
		if err != nil {
			return nil, fmt.Errorf("loading templates: %w", err)
		}
		s.templates = tmpls
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.catalog == nil {
		s.catalog = appcatalog.New(nil)
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(common.RequestLogger(s.logger.Named("http")))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.routes()
	return s, nil
}

func (s *server) routes() {
	deviceHandler := device.New(device.Config{
		Registry:      s.registry,
		DefaultTenant: s.cfg.Tenant,
		DefaultScope:  s.cfg.DefaultScope,
		Logger:        s.logger,
	})
	catalogHandler := catalog.New(s.catalog, s.scopes)
	healthHandler := health.New(map[string]health.Checker{
		"identity_provider": func(ctx context.Context) error {
			return s.provider.CheckHealth(ctx, s.cfg.Tenant)
		},
		"csrf_store": s.csrf.CheckHealth,
	}).WithVersion(Version)

	s.router.Get("/", s.handleIndex)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, http.StatusNotFound, "Page Not Found", "The page you requested does not exist.")
	})
	s.router.Method(http.MethodGet, "/health", healthHandler)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/top-apps", catalogHandler.TopApps)
		r.Get("/search", catalogHandler.Search)
		r.Get("/scopes/{clientID}", catalogHandler.Scopes)

		r.With(s.limiter.Middleware(s.handleRateLimited), s.csrf.Middleware(s.handleCSRFError)).
			Post("/device-code", deviceHandler.Create)

		r.Get("/sessions/{id}", deviceHandler.Status)
		r.Get("/poll-token/{id}", deviceHandler.Status)
		r.With(s.csrf.Middleware(s.handleCSRFError)).
			Delete("/sessions/{id}", deviceHandler.Cancel)
	})
}

// handleIndex renders the start page with a fresh CSRF token
func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	token, err := s.csrf.GenerateToken(r.Context())
	if err != nil {
		s.logger.Error("generating csrf token", zap.Error(err))
		s.renderError(w, http.StatusServiceUnavailable, "Service Unavailable", "Please try again in a moment.")
		return
	}

	top := appcatalog.TopApps()
	apps := make([]templates.AppOption, 0, len(top))
	for _, a := range top {
		apps = append(apps, templates.AppOption{Name: a.Name, ClientID: a.ClientID, Scope: a.Scope})
	}

	if err := s.templates.RenderIndex(w, templates.IndexData{
		CSRFToken:    token,
		TopApps:      apps,
		DefaultScope: s.cfg.DefaultScope,
		Tenant:       s.cfg.Tenant,
	}); err != nil {
		s.logger.Error("rendering index page", zap.Error(err))
	}
}

func (s *server) renderError(w http.ResponseWriter, status int, title, message string) {
	if err := s.templates.RenderError(w, templates.ErrorData{Status: status, Title: title, Message: message}); err != nil {
		s.logger.Error("rendering error page", zap.Error(err))
	}
}

func (s *server) handleCSRFError(w http.ResponseWriter, r *http.Request, err error) {
	if csrf.IsRejection(err) {
		common.WriteError(w, http.StatusForbidden, common.ErrorCodeInvalidCSRF, "Reload the page and try again")
		return
	}
	s.logger.Error("validating csrf token", zap.Error(err))
	common.WriteError(w, http.StatusServiceUnavailable, common.ErrorCodeUnavailable, "")
}

func (s *server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.RateLimited.Inc()
	w.Header().Set("Retry-After", "60")
	common.WriteError(w, http.StatusTooManyRequests, common.ErrorCodeRateLimited, "Too many sign in attempts, wait a minute")
}
