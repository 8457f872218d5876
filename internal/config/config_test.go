package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL() != 3*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL())
	}
	if cfg.Auth.RefreshTTL() != 10*time.Minute {
		t.Fatalf("unexpected refresh ttl: %v", cfg.Auth.RefreshTTL())
	}
	if cfg.Auth.HighWaterMark() != 120*time.Second {
		t.Fatalf("unexpected high water mark: %v", cfg.Auth.HighWaterMark())
	}
	if cfg.Policy.CacheCapacity != 10_000 {
		t.Fatalf("unexpected cache capacity: %d", cfg.Policy.CacheCapacity)
	}
	if !cfg.Auth.CookieSecure {
		t.Fatal("cookies must default to secure")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HARMONIA_AUTH_ACCESS_TTL_SECONDS", "60")
	t.Setenv("HARMONIA_POLICY_CACHE_CAPACITY", "128")
	t.Setenv("HARMONIA_LISTEN", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL() != time.Minute {
		t.Fatalf("env override ignored: %v", cfg.Auth.AccessTTL())
	}
	if cfg.Policy.CacheCapacity != 128 {
		t.Fatalf("env override ignored: %d", cfg.Policy.CacheCapacity)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("env override ignored: %s", cfg.Listen)
	}
}

func TestValidateRejectsInvertedTTLs(t *testing.T) {
	cfg := defaults()
	cfg.Auth.AccessTTLSeconds = 600
	cfg.Auth.RefreshTTLSeconds = 180
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for refresh <= access")
	}
}

func TestDecodedOTPKey(t *testing.T) {
	a := AuthConfig{OTPKey: base64.StdEncoding.EncodeToString(make([]byte, 32))}
	key, err := a.DecodedOTPKey()
	if err != nil {
		t.Fatalf("DecodedOTPKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("unexpected key length: %d", len(key))
	}

	a.OTPKey = base64.StdEncoding.EncodeToString(make([]byte, 16))
	if _, err := a.DecodedOTPKey(); err == nil {
		t.Fatal("expected rejection of short key")
	}
	a.OTPKey = "not-base64!"
	if _, err := a.DecodedOTPKey(); err == nil {
		t.Fatal("expected rejection of invalid encoding")
	}
}
