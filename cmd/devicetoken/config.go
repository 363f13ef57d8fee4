package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/oauth"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port int `envconfig:"PORT" default:"5001"`

	// Identity platform
	Authority    string        `envconfig:"AUTHORITY" default:"https://login.microsoftonline.com"`
	Tenant       string        `envconfig:"TENANT" default:"common"`
	DefaultScope string        `envconfig:"DEFAULT_SCOPE"`
	FlowTimeout  time.Duration `envconfig:"FLOW_TIMEOUT" default:"15m"`

	// Application list
	AppsCSV  string `envconfig:"APPS_CSV" default:"data/MicrosoftApps.csv"`
	ScopeMap string `envconfig:"SCOPE_MAP" default:"data/scope-map.txt"`

	// CSRF tokens live in Redis when REDIS_URL is set, in memory otherwise
	RedisURL        string        `envconfig:"REDIS_URL"`
	CSRFSecret      string        `envconfig:"CSRF_SECRET" required:"true"`
	CSRFTokenExpiry time.Duration `envconfig:"CSRF_TOKEN_EXPIRY" default:"1h"`

	// Sessions
	SessionIdleTimeout   time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"15m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	MaxSessions          int           `envconfig:"MAX_SESSIONS" default:"1000"`
	MaxSessionsPerMinute int           `envconfig:"MAX_SESSIONS_PER_MINUTE" default:"10"`

	// HTTP server
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// minSecretLength is the shortest accepted CSRF signing secret
const minSecretLength = 32

// loadEnvFile adds the variables of a dotenv file to the environment. Variables
// already set win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration from the environment
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Authority == "" {
		cfg.Authority = oauth.DefaultAuthority
	}
	if cfg.Tenant == "" {
		cfg.Tenant = deviceflow.DefaultTenant
	}
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = deviceflow.DefaultScope
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.CSRFSecret) < minSecretLength {
		return errors.New("CSRF_SECRET must be at least 32 characters")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("PORT must be between 1 and 65535")
	}
	return nil
}
