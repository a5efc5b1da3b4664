// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/interfaces/http/handler"
	"model-invoke-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health *handler.HealthHandler
	Invoke *handler.InvokeHandler
	Quota  *handler.QuotaHandler
	Naming *handler.NamingHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
	limitKey middleware.KeyFunc
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter, limitKey middleware.KeyFunc) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
		limitKey: limitKey,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.Audit(middleware.DefaultAuditSkipPaths))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	if h := r.handlers.Health; h != nil {
		r.engine.GET("/health", h.Health)
		r.engine.GET("/ready", h.Ready)
		r.engine.GET("/live", h.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	inner := r.engine.Group("/inner/api")
	inner.Use(middleware.InnerAPI(middleware.InnerAPIConfig{
		Enabled: r.cfg.InnerAPI.Enabled,
		APIKey:  r.cfg.InnerAPI.APIKey,
	}))
	RegisterInnerRoutes(inner, r.handlers, r.rateLimit)
}

// rateLimit 按租户限流，tenant 决定租户来源
func (r *Router) rateLimit(tenant middleware.TenantFunc) gin.HandlerFunc {
	return middleware.TenantRateLimit(middleware.RateLimitConfig{
		Enabled:            r.cfg.Security.RateLimit.Enabled,
		PerTenantPerMinute: r.cfg.Security.RateLimit.PerTenantPerMinute,
	}, r.limiter, r.limitKey, tenant)
}
