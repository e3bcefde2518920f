package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aigw/backend/internal/application/governance"
	"github.com/aigw/backend/internal/infrastructure/logger"
	"github.com/aigw/backend/internal/infrastructure/metrics"
	"github.com/aigw/backend/internal/interfaces/http/handler"
	"github.com/aigw/backend/internal/interfaces/http/middleware"
)

// Config wires the router's collaborators
type Config struct {
	Service        *governance.AdmissionService
	Ledger         *governance.BudgetLedger
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	Admission      middleware.AdmissionConfig
	MetricsEnabled bool
	TrustedProxies []string
	// Proxy handles requests that pass admission; the default responds 501
	// until an upstream integration is mounted.
	Proxy gin.HandlerFunc
}

// New builds the gin engine with the full middleware chain and routes
func New(cfg Config) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(logger.RequestID())
	engine.Use(logger.GinMiddleware(cfg.Logger))
	engine.Use(logger.Recovery(cfg.Logger))

	h := handler.NewGovernanceHandler(cfg.Service, cfg.Ledger)

	engine.GET("/healthz", h.Health)
	if cfg.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/v1")
	{
		// read-only surface, not admission-gated
		v1.GET("/status", h.GetStatus)
		v1.GET("/alerts", h.GetAlerts)

		// everything under /v1/proxy is gated and settled
		proxy := cfg.Proxy
		if proxy == nil {
			proxy = handler.NoUpstream
		}
		gated := v1.Group("/proxy")
		gated.Use(middleware.Admission(cfg.Service, cfg.Admission, cfg.Metrics, cfg.Logger))
		gated.Any("/*path", proxy)
	}

	return engine, nil
}
