package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Storage.Type != "memory" {
		t.Errorf("expected memory storage, got %s", cfg.Storage.Type)
	}
	if cfg.Server.APIPort != 8080 {
		t.Errorf("expected API port 8080, got %d", cfg.Server.APIPort)
	}
	if got := ParseDuration(cfg.Usage.AbandonAfter, 0); got != 24*time.Hour {
		t.Errorf("expected abandon_after 24h, got %s", got)
	}
	if got := ParseDuration(cfg.Usage.SweepInterval, 0); got != time.Minute {
		t.Errorf("expected sweep_interval 1m, got %s", got)
	}
	if cfg.Storage.Redis.KeyPrefix != "apextrack" {
		t.Errorf("expected key prefix apextrack, got %s", cfg.Storage.Redis.KeyPrefix)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  type: redis
  redis:
    host: redis.internal
usage_tracking:
  abandon_after: 12h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APEX_SERVER_API_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Storage.Type != "redis" {
		t.Errorf("expected redis storage, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.Redis.Host != "redis.internal" {
		t.Errorf("expected redis.internal, got %s", cfg.Storage.Redis.Host)
	}
	if cfg.Usage.AbandonAfter != "12h" {
		t.Errorf("expected 12h, got %s", cfg.Usage.AbandonAfter)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
	if cfg.Server.APIPort != 9999 {
		t.Errorf("expected env override 9999, got %d", cfg.Server.APIPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  ServerConfig{APIPort: 8080, MetricsPort: 9090},
			Storage: StorageConfig{Type: "memory"},
			Usage:   UsageConfig{AbandonAfter: "24h", SweepInterval: "1m"},
			API:     APIConfig{RateLimit: 10, RateLimitWindow: "1m"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad api port", func(c *Config) { c.Server.APIPort = 0 }, true},
		{"unknown storage", func(c *Config) { c.Storage.Type = "bolt" }, true},
		{"redis without host", func(c *Config) { c.Storage.Type = "redis" }, true},
		{"empty storage defaults to memory", func(c *Config) { c.Storage.Type = "" }, false},
		{"bad abandon_after", func(c *Config) { c.Usage.AbandonAfter = "soon" }, true},
		{"negative abandon_after", func(c *Config) { c.Usage.AbandonAfter = "-1h" }, true},
		{"zero sweep_interval", func(c *Config) { c.Usage.SweepInterval = "0s" }, true},
		{"bad rate window", func(c *Config) { c.API.RateLimitWindow = "x" }, true},
		{"rate limit disabled ignores window", func(c *Config) { c.API.RateLimit = 0; c.API.RateLimitWindow = "x" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  api_port: 8081
  dns_port: 53
storage:
  redis:
    hots: localhost
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := UnknownKeys(path)
	if err != nil {
		t.Fatalf("UnknownKeys() error: %v", err)
	}

	want := []string{"server.dns_port", "storage.redis.hots"}
	if len(unknown) != len(want) {
		t.Fatalf("UnknownKeys() = %v, want %v", unknown, want)
	}
	for i := range want {
		if unknown[i] != want[i] {
			t.Errorf("UnknownKeys()[%d] = %s, want %s", i, unknown[i], want[i])
		}
	}
}

func TestDefaultsMatchLoad(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if *Defaults() != *loaded {
		t.Errorf("Defaults() = %+v, want %+v", *Defaults(), *loaded)
	}
}
