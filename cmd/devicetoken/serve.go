package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/wrale/devicetoken/internal/csrf"
	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/metrics"
	"github.com/wrale/devicetoken/internal/oauth"
	"github.com/wrale/devicetoken/internal/ratelimit"
	"github.com/wrale/devicetoken/internal/session"
)

// providerTimeout bounds each call to the identity platform
const providerTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		port    int
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		Long: `Serves a web page to start device code sign ins and read the resulting
tokens. Configuration is read from the environment; CSRF_SECRET is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("apps-csv") {
				cfg.AppsCSV = root.appsCSV
			}
			if root.verbose {
				cfg.LogLevel = "debug"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5001, "Listen port, overrides PORT")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file read before the environment, if present")
	return cmd
}

// runServer serves until ctx is cancelled, then shuts down gracefully
func runServer(ctx context.Context, cfg Config) error {
	logger, err := newLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	apps, err := loadCatalog(cfg.AppsCSV, logger)
	if err != nil {
		return err
	}
	scopes, err := loadScopeMap(cfg.ScopeMap, logger)
	if err != nil {
		return err
	}

	provider, err := oauth.NewEntraProvider(oauth.EntraConfig{
		Authority:  cfg.Authority,
		HTTPClient: &http.Client{Timeout: providerTimeout},
		Logger:     logger.Named("entra"),
	})
	if err != nil {
		return err
	}

	store, closeStore, err := newCSRFStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	csrfManager := csrf.NewManager(store, []byte(cfg.CSRFSecret), cfg.CSRFTokenExpiry)

	flowLogger := logger.Named("deviceflow")
	registry := session.NewRegistry(func() *deviceflow.Engine {
		return deviceflow.NewEngine(provider,
			deviceflow.WithTimeout(cfg.FlowTimeout),
			deviceflow.WithLogger(flowLogger),
			deviceflow.WithObserver(metrics.Recorder{}),
		)
	},
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithSweepInterval(cfg.SweepInterval),
		session.WithMaxSessions(cfg.MaxSessions),
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(metrics.Recorder{}),
	)

	limiter := ratelimit.New(ratelimit.Config{PerMinute: cfg.MaxSessionsPerMinute}, clock.RealClock{})

	srv, err := newServer(&server{
		cfg:      cfg,
		registry: registry,
		provider: provider,
		csrf:     csrfManager,
		limiter:  limiter,
		catalog:  apps,
		scopes:   scopes,
		logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.Int("port", cfg.Port), zap.Int("apps", apps.Len()), zap.String("version", Version))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("starting shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
			if err := httpServer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing http server: %w", err))
			}
		}
		if err := registry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newCSRFStore connects to Redis when configured and falls back to memory
func newCSRFStore(ctx context.Context, cfg Config) (csrf.Store, func(), error) {
	if cfg.RedisURL == "" {
		return csrf.NewMemoryStore(clock.RealClock{}), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return csrf.NewRedisStore(client), func() { _ = client.Close() }, nil
}
