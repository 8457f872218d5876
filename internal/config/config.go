// Package config builds the immutable process configuration once at startup.
// Sources are layered: built-in defaults, then an optional YAML file, then
// environment variables (highest priority). Components receive the struct by
// reference; nothing reads the environment after startup.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "HARMONIA_"
	configPathEnvVar  = "HARMONIA_CONFIG"
	defaultConfigPath = "harmonia.yaml"
)

// Config is the process-wide configuration.
type Config struct {
	Listen      string `koanf:"listen"`
	DatabaseDSN string `koanf:"database_dsn"`

	Auth      AuthConfig      `koanf:"auth"`
	Policy    PolicyConfig    `koanf:"policy"`
	Search    SearchConfig    `koanf:"search"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// AuthConfig holds the token lifecycle knobs. Durations are expressed in
// seconds so the environment representation stays a plain integer.
type AuthConfig struct {
	PrivateKeyPEM string `koanf:"private_key_pem"`
	PublicKeyPEM  string `koanf:"public_key_pem"`
	// OTPKey is the base64-encoded 32-byte master key encrypting the
	// per-member TOTP secrets at rest.
	OTPKey               string `koanf:"otp_key"`
	AccessTTLSeconds     int    `koanf:"access_ttl_seconds"`
	RefreshTTLSeconds    int    `koanf:"refresh_ttl_seconds"`
	HighWaterMarkSeconds int    `koanf:"high_water_mark_seconds"`
	CookieSecure         bool   `koanf:"cookie_secure"`
}

// AccessTTL is the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLSeconds) * time.Second
}

// RefreshTTL is the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTTLSeconds) * time.Second
}

// HighWaterMark is the time-before-expiry threshold that triggers proactive
// token renewal.
func (a AuthConfig) HighWaterMark() time.Duration {
	return time.Duration(a.HighWaterMarkSeconds) * time.Second
}

// DecodedOTPKey returns the decoded master key.
func (a AuthConfig) DecodedOTPKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(a.OTPKey))
	if err != nil {
		return nil, fmt.Errorf("otp key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("otp key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// PolicyConfig bounds the allowance lookup cache.
type PolicyConfig struct {
	CacheCapacity int `koanf:"cache_capacity"`
}

// SearchConfig controls paged searches.
type SearchConfig struct {
	PageSize int `koanf:"page_size"`
}

// RateLimitConfig is the per-IP token bucket applied to the login route.
type RateLimitConfig struct {
	Burst     int `koanf:"burst"`
	PerSecond int `koanf:"per_second"`
}

func defaults() Config {
	return Config{
		Listen: ":8080",
		Auth: AuthConfig{
			AccessTTLSeconds:     3 * 60,
			RefreshTTLSeconds:    10 * 60,
			HighWaterMarkSeconds: 120,
			CookieSecure:         true,
		},
		Policy: PolicyConfig{CacheCapacity: 10_000},
		Search: SearchConfig{PageSize: 10},
		RateLimit: RateLimitConfig{
			Burst:     5,
			PerSecond: 2,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// HARMONIA_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// HARMONIA_AUTH_ACCESS_TTL_SECONDS -> auth.access_ttl_seconds.
	// Single-underscore keys stay top level (HARMONIA_LISTEN -> listen).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		for _, section := range []string{"auth_", "policy_", "search_", "rate_limit_"} {
			if strings.HasPrefix(s, section) {
				return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(s, section)
			}
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would start a broken process.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen address is required")
	}
	if c.Auth.AccessTTLSeconds <= 0 || c.Auth.RefreshTTLSeconds <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.Auth.RefreshTTLSeconds <= c.Auth.AccessTTLSeconds {
		return errors.New("config: refresh ttl must exceed access ttl")
	}
	if c.Auth.HighWaterMarkSeconds <= 0 {
		return errors.New("config: high water mark must be positive")
	}
	if c.Policy.CacheCapacity <= 0 {
		return errors.New("config: policy cache capacity must be positive")
	}
	if c.Search.PageSize <= 0 {
		return errors.New("config: search page size must be positive")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(configPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
