package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigw/backend/internal/application/governance"
	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/infrastructure/cache"
	"github.com/aigw/backend/internal/infrastructure/config"
	"github.com/aigw/backend/internal/infrastructure/counter"
	"github.com/aigw/backend/internal/infrastructure/event"
	"github.com/aigw/backend/internal/infrastructure/logger"
	"github.com/aigw/backend/internal/infrastructure/metrics"
	"github.com/aigw/backend/internal/infrastructure/plans"
	"github.com/aigw/backend/internal/interfaces/http/middleware"
	"github.com/aigw/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting AI gateway governance core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New(nil)

	// Distributed tier client, shared by cache and counters
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
	}

	// Tiered cache: local memory first, Redis behind it when enabled
	memoryTier := cache.NewMemoryTier(
		cache.WithMemoryTierConfig(cache.MemoryTierConfig{
			MaxEntries:      cfg.Cache.MaxEntries,
			DefaultTTL:      cfg.Cache.DefaultTTL,
			Policy:          evictionPolicy(cfg.Cache.EvictionPolicy),
			CleanupInterval: cfg.Cache.CleanupInterval,
		}),
		cache.WithMemoryTierLogger(log),
	)
	tiers := []cache.Tier{memoryTier}
	if redisClient != nil {
		redisTier := cache.NewRedisTier(redisClient, cache.RedisTierConfig{
			KeyPrefix:    "gw:cache:",
			DefaultTTL:   cfg.Cache.DefaultTTL,
			ReadTimeout:  cfg.Cache.RedisReadTimeout,
			WriteTimeout: cfg.Cache.RedisWriteTimeout,
		}, log)
		tiers = append(tiers, redisTier)
	}
	tieredCache := cache.NewTieredCache(tiers,
		cache.WithTieredCacheLogger(log),
		cache.WithCompressionThreshold(cfg.Cache.CompressionThreshold),
		cache.WithLookupRecorder(m.RecordCacheLookup),
	)
	defer func() {
		if err := tieredCache.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	// Counter and budget stores: Redis is authoritative when enabled,
	// otherwise single-instance local state
	var counterStore quota.Store
	var budgetStore billing.BudgetStore
	if redisClient != nil {
		counterStore = counter.NewRedisStore(redisClient, counter.WithRedisStoreTimeout(cfg.Counter.OperationTimeout))
		budgetStore = counter.NewRedisBudgetStore(redisClient, cfg.Counter.OperationTimeout)
	} else {
		counterStore = counter.NewMemoryStore()
		budgetStore = counter.NewMemoryBudgetStore()
	}
	defer func() {
		_ = counterStore.Close()
		_ = budgetStore.Close()
	}()

	// Unknown organizations start uncapped but alert at the configured
	// threshold once a real limit is registered for them
	planProvider := plans.NewStaticProvider(nil, &billing.BudgetConfig{
		MonthlyLimit:          decimal.NewFromInt(-1),
		AlertThresholdPercent: cfg.Budget.DefaultAlertThresholdPercent,
	})

	quotaManager := governance.NewQuotaManager(counterStore, planProvider,
		governance.QuotaManagerConfig{
			Period:       resetPeriod(cfg.Quota.ResetPeriod),
			PlanCacheTTL: cfg.Quota.PlanCacheTTL,
		},
		governance.WithQuotaManagerLogger(log),
		governance.WithPlanCache(tieredCache),
	)
	rateLimiter := governance.NewRateLimiter(counterStore,
		governance.WithRateLimiterLogger(log),
		governance.WithRateWindow(cfg.RateLimit.Window),
	)
	budgetLedger := governance.NewBudgetLedger(budgetStore, planProvider,
		governance.WithBudgetLedgerLogger(log),
		governance.WithAlertDispatcher(event.NewInstrumentedDispatcher(event.NewLogAlertDispatcher(log), m)),
	)
	admission := governance.NewAdmissionService(rateLimiter, quotaManager, budgetLedger,
		governance.WithAdmissionLogger(log),
		governance.WithUsageEventSink(event.NewLogUsageSink(log)),
	)

	engine, err := router.New(router.Config{
		Service:        admission,
		Ledger:         budgetLedger,
		Metrics:        m,
		Logger:         log,
		Admission:      middleware.AdmissionConfig{QuotaType: quota.QuotaTypeRequests, DefaultEstimatedAmount: 1},
		MetricsEnabled: cfg.HTTP.MetricsEnabled,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func evictionPolicy(name string) cache.EvictionPolicy {
	if strings.EqualFold(name, "fifo") {
		return cache.EvictionFIFO
	}
	return cache.EvictionLRU
}

func resetPeriod(name string) quota.ResetPeriod {
	switch strings.ToLower(name) {
	case "daily":
		return quota.ResetPeriodDaily
	case "weekly":
		return quota.ResetPeriodWeekly
	default:
		return quota.ResetPeriodMonthly
	}
}
