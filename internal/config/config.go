// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by storage.backend and retry_queue.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	HTTP       HTTPConfig                `mapstructure:"http"`
	Tracker    TrackerConfig             `mapstructure:"tracker"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Storage    StorageConfig             `mapstructure:"storage"`
	RetryQueue RetryQueueConfig          `mapstructure:"retry_queue"`
	Scheduler  SchedulerConfig           `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the outbound provider client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// TrackerConfig holds the global refresh settings.
type TrackerConfig struct {
	Provider       string   `mapstructure:"provider"`
	Credentials    string   `mapstructure:"credentials"`
	DelayMs        int      `mapstructure:"delay_ms"`
	RetryOnFailure bool     `mapstructure:"retry_on_failure"`
	Proxies        []string `mapstructure:"proxies"`
	Timezone       string   `mapstructure:"timezone"`
	// RegionsFile replaces the embedded country table when set.
	RegionsFile string `mapstructure:"regions_file"`
}

// ProviderConfig tunes one provider id.
type ProviderConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
	Concurrency int     `mapstructure:"concurrency"`
}

// StorageConfig selects the keyword store.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// RetryQueueConfig selects the retry queue backend.
type RetryQueueConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	DSN           string `mapstructure:"dsn"`
	Table         string `mapstructure:"table"`
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

// SchedulerConfig controls the periodic refresh jobs.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RefreshCron string `mapstructure:"refresh_cron"`
	RetryCron   string `mapstructure:"retry_cron"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SERPTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "serp-rank-tracker/0.1")
	v.SetDefault("tracker.provider", "xmlriver")
	v.SetDefault("tracker.credentials", "")
	v.SetDefault("tracker.delay_ms", 0)
	v.SetDefault("tracker.retry_on_failure", true)
	v.SetDefault("tracker.timezone", "UTC")
	v.SetDefault("tracker.regions_file", "")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.table", "keywords")
	v.SetDefault("retry_queue.backend", BackendMemory)
	v.SetDefault("retry_queue.path", "data/failed_queue.json")
	v.SetDefault("retry_queue.table", "retry_queue")
	v.SetDefault("retry_queue.redis_key", "serptracker:retry_queue")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.refresh_cron", "0 3 * * *")
	v.SetDefault("scheduler.retry_cron", "0 * * * *")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.Tracker.Provider) == "" {
		return fmt.Errorf("tracker.provider is required")
	}
	if c.Tracker.DelayMs < 0 {
		return fmt.Errorf("tracker.delay_ms must be >= 0")
	}
	if _, err := time.LoadLocation(c.Tracker.Timezone); err != nil {
		return fmt.Errorf("tracker.timezone %q: %w", c.Tracker.Timezone, err)
	}
	for id, p := range c.Providers {
		if p.RPS < 0 || p.Burst < 0 || p.Concurrency < 0 {
			return fmt.Errorf("providers.%s limits must be >= 0", id)
		}
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.RetryQueue.Backend {
	case BackendMemory:
	case BackendFile:
		if c.RetryQueue.Path == "" {
			return fmt.Errorf("retry_queue.path is required for the file backend")
		}
	case BackendPostgres:
		if c.RetryQueue.DSN == "" && c.Storage.DSN == "" {
			return fmt.Errorf("retry_queue.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.RetryQueue.RedisAddress == "" {
			return fmt.Errorf("retry_queue.redis_address is required for the redis backend")
		}
	default:
		return fmt.Errorf("retry_queue.backend %q is not supported", c.RetryQueue.Backend)
	}
	if c.Scheduler.Enabled && c.Scheduler.RefreshCron == "" && c.Scheduler.RetryCron == "" {
		return fmt.Errorf("scheduler needs refresh_cron or retry_cron when enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}

// Provider returns the tuning for a provider id, zero when unset.
func (c Config) Provider(id string) ProviderConfig {
	if p, ok := c.Providers[id]; ok {
		return p
	}
	// Viper lowercases map keys.
	return c.Providers[strings.ToLower(id)]
}

// RetryQueueDSN falls back to the storage DSN so one database can hold both tables.
func (c Config) RetryQueueDSN() string {
	if c.RetryQueue.DSN != "" {
		return c.RetryQueue.DSN
	}
	return c.Storage.DSN
}
