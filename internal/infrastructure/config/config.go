package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Counter   CounterConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Budget    BudgetConfig
	Log       LogConfig
	HTTP      HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Enabled controls whether the distributed tier is wired at all.
	// With Redis disabled the gateway runs single-instance on local state.
	Enabled bool
}

// CacheConfig holds tiered cache settings
type CacheConfig struct {
	MaxEntries           int
	DefaultTTL           time.Duration
	EvictionPolicy       string // lru, fifo
	CleanupInterval      time.Duration
	CompressionThreshold int           // bytes; 0 disables compression
	RedisReadTimeout     time.Duration // distributed tier read budget
	RedisWriteTimeout    time.Duration
}

// CounterConfig holds counter store settings
type CounterConfig struct {
	OperationTimeout time.Duration // budget for distributed counter writes
}

// QuotaConfig holds quota manager settings
type QuotaConfig struct {
	ResetPeriod  string // daily, weekly, monthly
	PlanCacheTTL time.Duration
}

// RateLimitConfig holds sliding-window rate limiter settings
type RateLimitConfig struct {
	Window time.Duration
}

// BudgetConfig holds budget ledger settings
type BudgetConfig struct {
	DefaultAlertThresholdPercent float64
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	MetricsEnabled bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with AIGW_ prefix (e.g., AIGW_REDIS_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("AIGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Enabled:  v.GetBool("redis.enabled"),
		},
		Cache: CacheConfig{
			MaxEntries:           v.GetInt("cache.max_entries"),
			DefaultTTL:           v.GetDuration("cache.default_ttl"),
			EvictionPolicy:       v.GetString("cache.eviction_policy"),
			CleanupInterval:      v.GetDuration("cache.cleanup_interval"),
			CompressionThreshold: v.GetInt("cache.compression_threshold"),
			RedisReadTimeout:     v.GetDuration("cache.redis_read_timeout"),
			RedisWriteTimeout:    v.GetDuration("cache.redis_write_timeout"),
		},
		Counter: CounterConfig{
			OperationTimeout: v.GetDuration("counter.operation_timeout"),
		},
		Quota: QuotaConfig{
			ResetPeriod:  v.GetString("quota.reset_period"),
			PlanCacheTTL: v.GetDuration("quota.plan_cache_ttl"),
		},
		RateLimit: RateLimitConfig{
			Window: v.GetDuration("rate_limit.window"),
		},
		Budget: BudgetConfig{
			DefaultAlertThresholdPercent: v.GetFloat64("budget.default_alert_threshold_percent"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			MetricsEnabled: v.GetBool("http.metrics_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "aigw-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10_000
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}
	if cfg.Cache.EvictionPolicy == "" {
		cfg.Cache.EvictionPolicy = "lru"
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = 30 * time.Second
	}
	if cfg.Cache.CompressionThreshold == 0 {
		cfg.Cache.CompressionThreshold = 1024
	}
	if cfg.Cache.RedisReadTimeout == 0 {
		cfg.Cache.RedisReadTimeout = 200 * time.Millisecond
	}
	if cfg.Cache.RedisWriteTimeout == 0 {
		cfg.Cache.RedisWriteTimeout = time.Second
	}
	if cfg.Counter.OperationTimeout == 0 {
		cfg.Counter.OperationTimeout = time.Second
	}
	if cfg.Quota.ResetPeriod == "" {
		cfg.Quota.ResetPeriod = "monthly"
	}
	if cfg.Quota.PlanCacheTTL == 0 {
		cfg.Quota.PlanCacheTTL = 5 * time.Minute
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Budget.DefaultAlertThresholdPercent == 0 {
		cfg.Budget.DefaultAlertThresholdPercent = 80
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch strings.ToLower(c.Cache.EvictionPolicy) {
	case "lru", "fifo":
	default:
		return fmt.Errorf("cache.eviction_policy must be 'lru' or 'fifo', got %q", c.Cache.EvictionPolicy)
	}

	switch strings.ToLower(c.Quota.ResetPeriod) {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("quota.reset_period must be 'daily', 'weekly' or 'monthly', got %q", c.Quota.ResetPeriod)
	}

	if c.Cache.CompressionThreshold < 0 {
		return fmt.Errorf("cache.compression_threshold cannot be negative")
	}
	if c.Budget.DefaultAlertThresholdPercent < 0 || c.Budget.DefaultAlertThresholdPercent > 100 {
		return fmt.Errorf("budget.default_alert_threshold_percent must be between 0 and 100, got %f",
			c.Budget.DefaultAlertThresholdPercent)
	}

	if c.App.Env == "production" {
		if c.Redis.Enabled && c.Redis.Password == "" {
			return fmt.Errorf("redis.password is required in production")
		}
	}

	return nil
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
