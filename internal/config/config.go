package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"authgrid.org/internal/rbac"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	HTTPAddr    string `env:"AUTHGRID_HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"AUTHGRID_PG_DSN"`

	JWTIssuer          string `env:"AUTHGRID_JWT_ISSUER" envDefault:"authgrid"`
	JWTAudience        string `env:"AUTHGRID_JWT_AUDIENCE" envDefault:"authgrid-api"`
	JWTSecretKey       string `env:"AUTHGRID_JWT_SECRET"`
	JWTExpirationHours int    `env:"AUTHGRID_JWT_EXPIRATION_HOURS" envDefault:"1"`

	RateLimitPerSecond int   `env:"AUTHGRID_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int   `env:"AUTHGRID_RATE_LIMIT_BURST" envDefault:"40"`
	MaxBodyBytes       int64 `env:"AUTHGRID_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// JWTSettings projects the token-issuance subset of the configuration.
func (c Config) JWTSettings() rbac.JWTSettings {
	return rbac.JWTSettings{
		Issuer:          c.JWTIssuer,
		Audience:        c.JWTAudience,
		SecretKey:       c.JWTSecretKey,
		ExpirationHours: c.JWTExpirationHours,
	}
}
