package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"AIGW_APP_NAME":              os.Getenv("AIGW_APP_NAME"),
		"AIGW_APP_ENV":               os.Getenv("AIGW_APP_ENV"),
		"AIGW_APP_PORT":              os.Getenv("AIGW_APP_PORT"),
		"AIGW_REDIS_HOST":            os.Getenv("AIGW_REDIS_HOST"),
		"AIGW_REDIS_PORT":            os.Getenv("AIGW_REDIS_PORT"),
		"AIGW_REDIS_PASSWORD":        os.Getenv("AIGW_REDIS_PASSWORD"),
		"AIGW_REDIS_ENABLED":         os.Getenv("AIGW_REDIS_ENABLED"),
		"AIGW_CACHE_MAX_ENTRIES":     os.Getenv("AIGW_CACHE_MAX_ENTRIES"),
		"AIGW_CACHE_EVICTION_POLICY": os.Getenv("AIGW_CACHE_EVICTION_POLICY"),
		"AIGW_QUOTA_RESET_PERIOD":    os.Getenv("AIGW_QUOTA_RESET_PERIOD"),
		"AIGW_RATE_LIMIT_WINDOW":     os.Getenv("AIGW_RATE_LIMIT_WINDOW"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "aigw-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Redis.Host)
		assert.Equal(t, 6379, cfg.Redis.Port)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 10_000, cfg.Cache.MaxEntries)
		assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
		assert.Equal(t, "lru", cfg.Cache.EvictionPolicy)
		assert.Equal(t, 1024, cfg.Cache.CompressionThreshold)
		assert.Equal(t, 200*time.Millisecond, cfg.Cache.RedisReadTimeout)
		assert.Equal(t, time.Second, cfg.Counter.OperationTimeout)
		assert.Equal(t, "monthly", cfg.Quota.ResetPeriod)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
		assert.Equal(t, float64(80), cfg.Budget.DefaultAlertThresholdPercent)
	})

	t.Run("loads values from environment variables with AIGW prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("AIGW_APP_NAME", "test-gateway")
		os.Setenv("AIGW_APP_PORT", "9000")
		os.Setenv("AIGW_REDIS_HOST", "redis.internal")
		os.Setenv("AIGW_REDIS_PORT", "6380")
		os.Setenv("AIGW_REDIS_ENABLED", "true")
		os.Setenv("AIGW_CACHE_MAX_ENTRIES", "500")
		os.Setenv("AIGW_CACHE_EVICTION_POLICY", "fifo")
		os.Setenv("AIGW_QUOTA_RESET_PERIOD", "daily")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-gateway", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "redis.internal", cfg.Redis.Host)
		assert.Equal(t, 6380, cfg.Redis.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 500, cfg.Cache.MaxEntries)
		assert.Equal(t, "fifo", cfg.Cache.EvictionPolicy)
		assert.Equal(t, "daily", cfg.Quota.ResetPeriod)
		assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	})

	t.Run("rejects invalid eviction policy", func(t *testing.T) {
		clearEnv()
		os.Setenv("AIGW_CACHE_EVICTION_POLICY", "random")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects invalid reset period", func(t *testing.T) {
		clearEnv()
		os.Setenv("AIGW_QUOTA_RESET_PERIOD", "hourly")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("production requires redis password when redis enabled", func(t *testing.T) {
		clearEnv()
		os.Setenv("AIGW_APP_ENV", "production")
		os.Setenv("AIGW_REDIS_ENABLED", "true")

		_, err := Load()
		assert.Error(t, err)

		os.Setenv("AIGW_REDIS_PASSWORD", "secret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}
