package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - webfront.go: protocol, cookie and key ring configuration
//   - auth.go: login providers, user store and impersonation
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - observability.go: logging and metrics
type AppConfig struct {
	// IsDev controls development mode behavior (dev login provider, insecure defaults).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Version is reported by refresh?full.
	Version string `env:"APP_VERSION" envDefault:"dev"`

	WebFront WebFrontConfig `envPrefix:"WEBFRONT_"`
	Keys     KeyRingConfig  `envPrefix:"WEBFRONT_KEYS_"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()
	c.HTTP.Sanitize()
	c.WebFront.Sanitize()
	c.Keys.Sanitize()
	c.Auth.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot start a server.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.WebFront.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Keys.Validate(c.IsDev); err != nil {
		errs = append(errs, err)
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, scheme := range c.WebFront.UnsafeDirectLoginSchemes {
		if (c.Auth.OIDC.Enabled && strings.EqualFold(scheme, c.Auth.OIDC.Scheme)) ||
			(c.Auth.DevAuth.Enabled && strings.EqualFold(scheme, c.Auth.DevAuth.Scheme)) {
			errs = append(errs, fmt.Errorf("UNSAFE_DIRECT_LOGIN_SCHEMES cannot name the interactive scheme %q", scheme))
		}
	}
	if c.Keys.Source == KeySourceRedis && !c.Redis.Enabled() {
		errs = append(errs, errors.New("WEBFRONT_KEYS_SOURCE=redis requires REDIS_URI"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// NeedsPostgres reports whether any component reads Postgres.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Auth.Users.Source == UserSourcePostgres
}

// NeedsRedis reports whether any component reads Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Keys.Source == KeySourceRedis
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// LogLevel parses the configured level, defaulting to info.
func (c *ObservabilityConfig) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
