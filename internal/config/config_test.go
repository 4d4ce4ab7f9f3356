package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Side != SideRequest {
		t.Errorf("side: expected %q, got %q", SideRequest, cfg.Network.Side)
	}
	if cfg.Transfer.BatchSize != 500 {
		t.Errorf("batch_size: expected 500, got %d", cfg.Transfer.BatchSize)
	}
	if cfg.Transfer.Retry.MaxAttempts != 3 || cfg.Transfer.Retry.Backoff != 60*time.Second {
		t.Errorf("retry: unexpected %+v", cfg.Transfer.Retry)
	}
	if cfg.Cache.DefaultTTL != 24*time.Hour {
		t.Errorf("cache ttl: expected 24h, got %s", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.KeyPrefix != "response:" {
		t.Errorf("cache key prefix: expected response:, got %q", cfg.Cache.KeyPrefix)
	}
	free, ok := cfg.RateLimit.Profiles["free"]
	if !ok {
		t.Fatal("free profile missing")
	}
	if free.Minute != 10 || free.Hour != 100 || free.Day != 1000 {
		t.Errorf("free tier: unexpected %+v", free)
	}
	if cfg.RateLimit.GracePeriod != 5*time.Minute {
		t.Errorf("grace period: expected 5m, got %s", cfg.RateLimit.GracePeriod)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("network:\n  side: response\ntransfer:\n  batch_size: 50\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYNCGW_TRANSFER_BATCH_SIZE", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Side != SideResponse {
		t.Errorf("side: expected %q, got %q", SideResponse, cfg.Network.Side)
	}
	if cfg.Transfer.BatchSize != 25 {
		t.Errorf("env override: expected 25, got %d", cfg.Transfer.BatchSize)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transfer.BatchSize != 500 {
		t.Errorf("expected defaults, got batch_size=%d", cfg.Transfer.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown side", func(c *Config) { c.Network.Side = "dmz" }},
		{"zero batch", func(c *Config) { c.Transfer.BatchSize = 0 }},
		{"empty export dir", func(c *Config) { c.Transfer.ExportDir = " " }},
		{"zero tier", func(c *Config) { c.RateLimit.Profiles = map[string]TierConfig{"free": {Minute: 0, Hour: 1, Day: 1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.RateLimit.Profiles = map[string]TierConfig{}
			for k, v := range base.RateLimit.Profiles {
				cfg.RateLimit.Profiles[k] = v
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
