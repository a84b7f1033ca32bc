package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"` // json | text
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	DatabaseDriver string `mapstructure:"database_driver"` // sqlite | postgres
	DatabaseDSN    string `mapstructure:"database_dsn"`
	MigrationsPath string `mapstructure:"migrations_path"` // override; empty = embedded schema

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`  // HTTP read/write; 0 = server default
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"` // graceful shutdown wait

	MaxSources        int `mapstructure:"max_sources"`         // registered clusters + hosts cap
	SyncIntervalSec   int `mapstructure:"sync_interval_sec"`   // periodic cycle per source
	SyncCycleTimeout  int `mapstructure:"sync_cycle_timeout_sec"`
	SyncWaitTimeout   int `mapstructure:"sync_wait_timeout_sec"` // bound on attaching to an in-flight cycle
	SyncStaleAfter    int `mapstructure:"sync_stale_after"`      // consecutive misses before a namespace is marked stale

	StreamPeriodSec       int      `mapstructure:"stream_period_sec"`
	StreamWindow          int      `mapstructure:"stream_window"` // frames kept per subscriber
	StreamTopN            int      `mapstructure:"stream_top_n"`
	StreamExcludePrefixes []string `mapstructure:"stream_exclude_prefixes"` // monitoring-infra name prefixes to hide

	UsageCacheTTLSec int `mapstructure:"usage_cache_ttl_sec"` // shared usage sweep cache

	LogsDefaultTail  int `mapstructure:"logs_default_tail"`
	LogsMaxTail      int `mapstructure:"logs_max_tail"`
	LogsCacheTTLSec  int `mapstructure:"logs_cache_ttl_sec"`
	LogsCacheSize    int `mapstructure:"logs_cache_size"`

	EventsRetentionHours    int `mapstructure:"events_retention_hours"`
	EventsCleanupIntervalMin int `mapstructure:"events_cleanup_interval_min"`

	K8sTimeoutSec      int     `mapstructure:"k8s_timeout_sec"`
	K8sRateLimitPerSec float64 `mapstructure:"k8s_rate_limit_per_sec"` // token bucket per cluster; 0 = no limit
	K8sRateLimitBurst  int     `mapstructure:"k8s_rate_limit_burst"`

	DockerTimeoutSec      int     `mapstructure:"docker_timeout_sec"`
	DockerRateLimitPerSec float64 `mapstructure:"docker_rate_limit_per_sec"` // token bucket per host; 0 = no limit
	DockerRateLimitBurst  int     `mapstructure:"docker_rate_limit_burst"`

	AuthSecret         string `mapstructure:"auth_secret"` // empty = stream auth disabled (dev)
	AuthTokenTTLMin    int    `mapstructure:"auth_token_ttl_min"`
	AuthAllowTokenMint bool   `mapstructure:"auth_allow_token_mint"` // expose POST /auth/token (dev only)

	TracingEndpoint     string  `mapstructure:"tracing_endpoint"` // OTLP endpoint; empty = tracing disabled
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/fleetglass/")
	viper.AddConfigPath("$HOME/.fleetglass")
	viper.AddConfigPath(".")

	// Defaults
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("database_dsn", "./fleetglass.db")
	viper.SetDefault("migrations_path", "")
	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)
	viper.SetDefault("max_sources", 100)
	viper.SetDefault("sync_interval_sec", 30)
	viper.SetDefault("sync_cycle_timeout_sec", 60)
	viper.SetDefault("sync_wait_timeout_sec", 10)
	viper.SetDefault("sync_stale_after", 3)
	viper.SetDefault("stream_period_sec", 5)
	viper.SetDefault("stream_window", 60)
	viper.SetDefault("stream_top_n", 5)
	viper.SetDefault("stream_exclude_prefixes", []string{})
	viper.SetDefault("usage_cache_ttl_sec", 4)
	viper.SetDefault("logs_default_tail", 100)
	viper.SetDefault("logs_max_tail", 2000)
	viper.SetDefault("logs_cache_ttl_sec", 15)
	viper.SetDefault("logs_cache_size", 128)
	viper.SetDefault("events_retention_hours", 24)
	viper.SetDefault("events_cleanup_interval_min", 30)
	viper.SetDefault("k8s_timeout_sec", 10)
	viper.SetDefault("k8s_rate_limit_per_sec", 0) // 0 = disabled
	viper.SetDefault("k8s_rate_limit_burst", 0)
	viper.SetDefault("docker_timeout_sec", 10)
	viper.SetDefault("docker_rate_limit_per_sec", 0)
	viper.SetDefault("docker_rate_limit_burst", 0)
	viper.SetDefault("auth_secret", "")
	viper.SetDefault("auth_token_ttl_min", 60)
	viper.SetDefault("auth_allow_token_mint", false)
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_sampling_rate", 1.0)

	// Environment variables
	viper.SetEnvPrefix("FLEETGLASS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.StreamExcludePrefixes = splitList(cfg.StreamExcludePrefixes)

	return &cfg, nil
}

// splitList normalizes list values that arrive as one comma-separated string
// (the env var form) into trimmed elements.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Duration helpers; config stores plain seconds/minutes.

func (c *Config) RequestTimeout() time.Duration  { return time.Duration(c.RequestTimeoutSec) * time.Second }
func (c *Config) ShutdownTimeout() time.Duration { return time.Duration(c.ShutdownTimeoutSec) * time.Second }
func (c *Config) SyncInterval() time.Duration    { return time.Duration(c.SyncIntervalSec) * time.Second }
func (c *Config) CycleTimeout() time.Duration    { return time.Duration(c.SyncCycleTimeout) * time.Second }
func (c *Config) SyncWait() time.Duration        { return time.Duration(c.SyncWaitTimeout) * time.Second }
func (c *Config) StreamPeriod() time.Duration    { return time.Duration(c.StreamPeriodSec) * time.Second }
func (c *Config) UsageCacheTTL() time.Duration   { return time.Duration(c.UsageCacheTTLSec) * time.Second }
func (c *Config) LogsCacheTTL() time.Duration    { return time.Duration(c.LogsCacheTTLSec) * time.Second }
func (c *Config) K8sTimeout() time.Duration      { return time.Duration(c.K8sTimeoutSec) * time.Second }
func (c *Config) DockerTimeout() time.Duration   { return time.Duration(c.DockerTimeoutSec) * time.Second }
func (c *Config) EventsRetention() time.Duration {
	return time.Duration(c.EventsRetentionHours) * time.Hour
}
func (c *Config) EventsCleanupInterval() time.Duration {
	return time.Duration(c.EventsCleanupIntervalMin) * time.Minute
}
func (c *Config) AuthTokenTTL() time.Duration {
	return time.Duration(c.AuthTokenTTLMin) * time.Minute
}
