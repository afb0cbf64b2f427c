// Package config provides server configuration loaded from environment
// variables, optionally seeded from a .env file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// Config holds httprpc-server configuration.
type Config struct {
	// HTTP
	Addr            string        `envconfig:"HTTPRPC_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTPRPC_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxFormMemory   int64         `envconfig:"HTTPRPC_MAX_FORM_MEMORY" default:"33554432"`
	StrictBinding   bool          `envconfig:"HTTPRPC_STRICT_BINDING" default:"false"`
	TemplateDir     string        `envconfig:"HTTPRPC_TEMPLATE_DIR"`
	AllowedOrigins  []string      `envconfig:"HTTPRPC_ALLOWED_ORIGINS"`

	// Database (empty = testData unavailable)
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DriverName  string `envconfig:"DATABASE_DRIVER" default:"pgx"`

	// NATS bridge (empty URL = disabled)
	NATSURL    string `envconfig:"NATS_URL"`
	NATSPrefix string `envconfig:"NATS_PREFIX" default:"rpc"`
	NATSQueue  string `envconfig:"NATS_QUEUE" default:"httprpc"`

	// Principal cookies. CookieKey is base64 (standard or URL alphabet).
	CookieName   string        `envconfig:"HTTPRPC_COOKIE_NAME" default:"RPCP"`
	CookieKeyID  string        `envconfig:"HTTPRPC_COOKIE_KEY_ID" default:"k1"`
	CookieKey    string        `envconfig:"HTTPRPC_COOKIE_KEY"`
	PrincipalTTL time.Duration `envconfig:"HTTPRPC_PRINCIPAL_TTL" default:"24h"`

	Locales  []string `envconfig:"HTTPRPC_LOCALES" default:"en"`
	LogLevel string   `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads envFiles into the environment, without overriding variables
// that are already set, then processes the environment. Missing env files
// are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration for serving.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: HTTPRPC_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("config: HTTPRPC_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MaxFormMemory <= 0 {
		return errors.New("config: HTTPRPC_MAX_FORM_MEMORY must be positive")
	}
	if c.DatabaseURL != "" && c.DriverName == "" {
		return errors.New("config: DATABASE_DRIVER is required with DATABASE_URL")
	}
	if c.NATSURL != "" && c.NATSPrefix == "" {
		return errors.New("config: NATS_PREFIX is required with NATS_URL")
	}
	if c.CookieKey != "" {
		if _, err := c.Key(); err != nil {
			return err
		}
		if c.PrincipalTTL <= 0 {
			return errors.New("config: HTTPRPC_PRINCIPAL_TTL must be positive")
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// Key decodes CookieKey. It returns nil when no key is configured.
func (c *Config) Key() ([]byte, error) {
	if c.CookieKey == "" {
		return nil, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(c.CookieKey); err == nil {
			if len(key) != 32 {
				return nil, fmt.Errorf("config: HTTPRPC_COOKIE_KEY must decode to 32 bytes, got %d", len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("config: HTTPRPC_COOKIE_KEY is not valid base64")
}
