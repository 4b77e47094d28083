// Package config loads the relay configuration: defaults, optional config
// file, ATSRELAY_* environment, then runtime overrides, in that order.
//
// Configuration is read once at process start. In particular the write-safety
// settings are frozen at load time so no later code path can widen them.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the relay process.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Ashby   AshbyConfig   `mapstructure:"ashby"`
	Safety  SafetyConfig  `mapstructure:"safety"`
	Index   IndexConfig   `mapstructure:"index"`
}

// ServerConfig configures the local relay HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the zap loggers.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// AshbyConfig configures the upstream API client.
type AshbyConfig struct {
	// APIKey authenticates as Basic auth username. Set via
	// ATSRELAY_ASHBY_API_KEY by convention; never checked into files.
	APIKey string `mapstructure:"api_key"`

	// BaseURL is the API root, without trailing slash.
	BaseURL string `mapstructure:"base_url"`

	// RequestTimeout bounds a single RPC call. Zero disables the bound.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RateLimit is the maximum requests per second to the upstream.
	// Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`

	// CreditedToUserID, when set, short-circuits credited-to resolution.
	CreditedToUserID string `mapstructure:"credited_to_user_id"`

	// CreditedToEmail matches a specific enabled user by exact email.
	CreditedToEmail string `mapstructure:"credited_to_email"`
}

// SafetyConfig is the write-safety gate policy.
type SafetyConfig struct {
	// WritesEnabled is the global mutation switch. Default false.
	WritesEnabled bool `mapstructure:"writes_enabled"`

	// AllowedMethods is the exact-name allowlist for mutating methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// RequireConfirmation demands a per-call confirmation token.
	RequireConfirmation bool `mapstructure:"require_confirmation"`

	// ConfirmationToken is the expected token. Empty falls back to the
	// documented sentinel in pkg/writegate.
	ConfirmationToken string `mapstructure:"confirmation_token"`
}

// IndexConfig is the candidate index policy.
type IndexConfig struct {
	// ScanCap bounds the number of rows scanned in one build.
	ScanCap int `mapstructure:"scan_cap"`

	// PageSize is the per-page limit for candidate.list.
	PageSize int `mapstructure:"page_size"`

	// TTL is the freshness window for a built index.
	TTL time.Duration `mapstructure:"ttl"`
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Ashby.BaseURL) == "" {
		return fmt.Errorf("ashby.base_url is required")
	}
	if c.Index.ScanCap <= 0 {
		return fmt.Errorf("index.scan_cap must be positive: %d", c.Index.ScanCap)
	}
	if c.Index.PageSize <= 0 || c.Index.PageSize > 500 {
		return fmt.Errorf("index.page_size must be in 1..500: %d", c.Index.PageSize)
	}
	if c.Index.TTL <= 0 {
		return fmt.Errorf("index.ttl must be positive: %s", c.Index.TTL)
	}
	if c.Safety.WritesEnabled && len(c.Safety.AllowedMethods) == 0 {
		return fmt.Errorf("safety.writes_enabled requires a non-empty safety.allowed_methods")
	}
	return nil
}
