package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Base URL of the workshop backend that renders documents and stores the
	// final signed artifact.
	BackendBaseURL string `env:"BACKEND_BASE_URL,required"`
	BackendAPIKey  string `env:"BACKEND_API_KEY" envDefault:""`

	// Externally visible URL tablets use to open their event stream; handed
	// out as part of the pairing credentials.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	PairingCodeTTLSeconds  int   `env:"PAIRING_CODE_TTL_SECONDS" envDefault:"300"`
	SessionTimeoutMinutes  int   `env:"SESSION_TIMEOUT_MINUTES" envDefault:"10"`
	ArtifactCacheTTLHours  int   `env:"ARTIFACT_CACHE_TTL_HOURS" envDefault:"2"`
	HeartbeatGraceSeconds  int   `env:"HEARTBEAT_GRACE_SECONDS" envDefault:"90"`
	MaxSignatureImageBytes int64 `env:"MAX_SIGNATURE_IMAGE_BYTES" envDefault:"5242880"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.PairingCodeTTLSeconds) * time.Second
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) ArtifactCacheTTL() time.Duration {
	return time.Duration(c.ArtifactCacheTTLHours) * time.Hour
}

func (c *Config) HeartbeatGrace() time.Duration {
	return time.Duration(c.HeartbeatGraceSeconds) * time.Second
}

// TabletStreamEndpoint is the connection endpoint included in redeemed
// pairing credentials.
func (c *Config) TabletStreamEndpoint() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/v1/tablet/stream"
}

func (c *Config) Validate() error {
	if c.PairingCodeTTLSeconds < 30 {
		return fmt.Errorf("PAIRING_CODE_TTL_SECONDS must be at least 30, got %d", c.PairingCodeTTLSeconds)
	}
	if c.SessionTimeoutMinutes < 1 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be at least 1, got %d", c.SessionTimeoutMinutes)
	}
	if c.MaxSignatureImageBytes <= 0 {
		return fmt.Errorf("MAX_SIGNATURE_IMAGE_BYTES must be positive, got %d", c.MaxSignatureImageBytes)
	}
	if !strings.HasPrefix(c.BackendBaseURL, "http://") && !strings.HasPrefix(c.BackendBaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must be an http(s) URL")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
