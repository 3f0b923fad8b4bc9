package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
http:
  timeout_seconds: 45
tracker:
  provider: serpapi
  credentials: abc
  delay_ms: 1500
  retry_on_failure: false
  proxies: ["http://proxy-a:8080", "http://proxy-b:8080"]
  timezone: Europe/Moscow
providers:
  serpapi:
    rps: 2.5
    burst: 3
    concurrency: 4
storage:
  backend: postgres
  dsn: postgres://localhost/serp
retry_queue:
  backend: file
  path: /tmp/failed_queue.json
scheduler:
  enabled: true
  refresh_cron: "0 2 * * *"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Tracker.Provider != "serpapi" || cfg.Tracker.DelayMs != 1500 || cfg.Tracker.RetryOnFailure {
		t.Fatalf("expected tracker overrides, got %+v", cfg.Tracker)
	}
	if len(cfg.Tracker.Proxies) != 2 {
		t.Fatalf("expected two proxies, got %v", cfg.Tracker.Proxies)
	}
	if p := cfg.Provider("serpapi"); p.RPS != 2.5 || p.Burst != 3 || p.Concurrency != 4 {
		t.Fatalf("expected provider tuning, got %+v", p)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.RetryQueueDSN() != "postgres://localhost/serp" {
		t.Fatalf("expected storage dsn to back the retry queue, got %q", cfg.RetryQueueDSN())
	}
	if cfg.RetryQueue.Backend != BackendFile || cfg.RetryQueue.Path != "/tmp/failed_queue.json" {
		t.Fatalf("expected file retry queue, got %+v", cfg.RetryQueue)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.RefreshCron != "0 2 * * *" || cfg.Scheduler.RetryCron != "0 * * * *" {
		t.Fatalf("expected scheduler overrides with default retry cron, got %+v", cfg.Scheduler)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tracker.Provider != "xmlriver" || !cfg.Tracker.RetryOnFailure {
		t.Fatalf("unexpected tracker defaults: %+v", cfg.Tracker)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.RetryQueue.Backend != BackendMemory {
		t.Fatalf("expected memory backends by default")
	}
	if cfg.ShutdownTimeout() != 15*time.Second {
		t.Fatalf("expected default shutdown timeout, got %v", cfg.ShutdownTimeout())
	}
	if p := cfg.Provider("unknown"); p != (ProviderConfig{}) {
		t.Fatalf("expected zero provider config, got %+v", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		HTTP:       HTTPConfig{TimeoutSeconds: 10},
		Tracker:    TrackerConfig{Provider: "xmlriver", Timezone: "UTC"},
		Storage:    StorageConfig{Backend: BackendMemory},
		RetryQueue: RetryQueueConfig{Backend: BackendMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"missing provider", func(c *Config) { c.Tracker.Provider = " " }, "tracker.provider"},
		{"negative delay", func(c *Config) { c.Tracker.DelayMs = -1 }, "tracker.delay_ms"},
		{"bad timezone", func(c *Config) { c.Tracker.Timezone = "Mars/Olympus" }, "tracker.timezone"},
		{"negative provider rps", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"serpapi": {RPS: -1}}
		}, "providers.serpapi"},
		{"postgres storage without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.dsn"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"file queue without path", func(c *Config) { c.RetryQueue.Backend = BackendFile }, "retry_queue.path"},
		{"postgres queue without dsn", func(c *Config) { c.RetryQueue.Backend = BackendPostgres }, "retry_queue.dsn"},
		{"redis queue without address", func(c *Config) { c.RetryQueue.Backend = BackendRedis }, "retry_queue.redis_address"},
		{"unknown queue", func(c *Config) { c.RetryQueue.Backend = "kafka" }, "retry_queue.backend"},
		{"scheduler without crons", func(c *Config) { c.Scheduler.Enabled = true }, "scheduler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
