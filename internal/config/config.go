// Package config loads service configuration from the environment and an
// optional YAML workspace catalog.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// Auth modes for the HTTP API.
const (
	AuthNone   = "none"
	AuthAPIKey = "api-key"
	AuthJWT    = "jwt"
)

// Sync backends.
const (
	SyncNone  = "none"
	SyncHTTP  = "http"
	SyncStore = "store"
	SyncBoth  = "both"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	CatalogPath string `envconfig:"WORKSPACE_CATALOG_PATH"`

	// HTTP API
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":8090"`
	AuthMode       string `envconfig:"AUTH_MODE" default:"api-key"`
	APIKey         string `envconfig:"API_KEY"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	JWTIssuer      string `envconfig:"JWT_ISSUER"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`

	// Persistence
	DBPath            string        `envconfig:"DB_PATH" default:"workspace.db"`
	Retention         time.Duration `envconfig:"RETENTION" default:"720h"`
	RetentionInterval time.Duration `envconfig:"RETENTION_INTERVAL" default:"6h"`

	// Sync
	SyncMode    string        `envconfig:"SYNC_MODE" default:"store"`
	SyncURL     string        `envconfig:"SYNC_URL"`
	SyncToken   string        `envconfig:"SYNC_TOKEN"`
	SyncTimeout time.Duration `envconfig:"SYNC_TIMEOUT" default:"10s"`
	SyncRetries int           `envconfig:"SYNC_RETRIES" default:"3"`

	// Tracker
	SyncInterval            time.Duration `envconfig:"SYNC_INTERVAL" default:"30s"`
	SuggestionDebounce      time.Duration `envconfig:"SUGGESTION_DEBOUNCE" default:"2s"`
	SuggestionTTL           time.Duration `envconfig:"SUGGESTION_TTL" default:"24h"`
	TranslationThreshold    int           `envconfig:"TRANSLATION_THRESHOLD" default:"3"`
	ActivityLimit           int           `envconfig:"ACTIVITY_LIMIT" default:"100"`
	CompletedOperationLimit int           `envconfig:"COMPLETED_OPERATION_LIMIT" default:"50"`
	InsightLimit            int           `envconfig:"INSIGHT_LIMIT" default:"50"`
	MaxWorkspaces           int           `envconfig:"MAX_WORKSPACES" default:"1000"`

	// Modes accepted by the API. Filled from the catalog or the built-ins.
	Modes []workspace.Mode `ignored:"true"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// CORSOriginList returns the parsed list of allowed CORS origins.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// SyncEnabled reports whether trackers push to any backend.
func (c *Config) SyncEnabled() bool {
	return c.SyncMode != SyncNone
}

// Validate checks option combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthNone:
	case AuthAPIKey:
		if c.APIKey == "" {
			return fmt.Errorf("config: AUTH_MODE=api-key requires API_KEY")
		}
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("config: AUTH_MODE=jwt requires JWT_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_MODE %q", c.AuthMode)
	}

	switch c.SyncMode {
	case SyncNone, SyncStore:
	case SyncHTTP, SyncBoth:
		if c.SyncURL == "" {
			return fmt.Errorf("config: SYNC_MODE=%s requires SYNC_URL", c.SyncMode)
		}
	default:
		return fmt.Errorf("config: unknown SYNC_MODE %q", c.SyncMode)
	}

	if c.MaxWorkspaces < 1 {
		return fmt.Errorf("config: MAX_WORKSPACES must be at least 1")
	}
	if c.SyncInterval <= 0 || c.SuggestionDebounce <= 0 {
		return fmt.Errorf("config: SYNC_INTERVAL and SUGGESTION_DEBOUNCE must be positive")
	}
	if c.RetentionInterval <= 0 || c.Retention <= 0 {
		return fmt.Errorf("config: RETENTION and RETENTION_INTERVAL must be positive")
	}
	return nil
}

// Workspace returns the tracker configuration.
func (c *Config) Workspace() workspace.Config {
	return workspace.Config{
		SyncInterval:         c.SyncInterval,
		SuggestionDebounce:   c.SuggestionDebounce,
		SuggestionTTL:        c.SuggestionTTL,
		TranslationThreshold: c.TranslationThreshold,
		Limits: workspace.Limits{
			Activities:          c.ActivityLimit,
			CompletedOperations: c.CompletedOperationLimit,
			Insights:            c.InsightLimit,
		},
	}
}

// Load reads configuration from environment variables and, when
// WORKSPACE_CATALOG_PATH is set, overlays the catalog file.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %q: %w", prefix, err)
	}
	cfg.Modes = append([]workspace.Mode(nil), workspace.KnownModes...)

	if cfg.CatalogPath != "" {
		cat, err := LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		cat.Apply(&cfg)
	}
	return &cfg, nil
}
