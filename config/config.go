// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backend selectors.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config holds all runtime settings for the authorization server.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	Issuer     string `env:"ISSUER" envDefault:"http://localhost:8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// SigningKeyFile points at a PEM-encoded RSA private key. When empty an
	// ephemeral key is generated, which is only acceptable for development.
	SigningKeyFile string `env:"SIGNING_KEY_FILE"`

	// ClientsFile points at a JSON file of registered clients.
	ClientsFile string `env:"CLIENTS_FILE" envDefault:"clients.json"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"oidc"`
	MongoURI     string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDBName  string `env:"MONGO_DB" envDefault:"oidc"`

	AuthCodeLifetime        time.Duration `env:"AUTH_CODE_LIFETIME" envDefault:"5m"`
	AccessTokenLifetime     time.Duration `env:"ACCESS_TOKEN_LIFETIME" envDefault:"1h"`
	RefreshTokenLifetime    time.Duration `env:"REFRESH_TOKEN_LIFETIME" envDefault:"720h"`
	OnboardingTokenLifetime time.Duration `env:"ONBOARDING_TOKEN_LIFETIME" envDefault:"10m"`

	AllowPlainPKCE bool `env:"ALLOW_PLAIN_PKCE" envDefault:"true"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}
