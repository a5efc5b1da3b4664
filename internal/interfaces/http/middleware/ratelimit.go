package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"model-invoke-api/internal/interfaces/http/dto"
	"model-invoke-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// PerTenantPerMinute 单租户每分钟请求数，0 表示不限制
	PerTenantPerMinute int
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TenantFunc 从请求中提取租户 ID
type TenantFunc func(c *gin.Context) string

// KeyFunc 由租户与路由构造限流键
type KeyFunc func(tenantID, endpoint string) string

// TenantRateLimit 按租户限流；无法识别租户的请求交给后续校验
func TenantRateLimit(cfg RateLimitConfig, limiter RateLimiter, key KeyFunc, tenant TenantFunc) gin.HandlerFunc {
	// 如果未启用限流，返回空中间件
	if !cfg.Enabled || cfg.PerTenantPerMinute <= 0 || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tenantID := tenant(c)
		if tenantID == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), key(tenantID, c.FullPath()), cfg.PerTenantPerMinute, time.Minute)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			dto.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// TenantFromParam 从路径参数读取租户
func TenantFromParam(name string) TenantFunc {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}

// TenantFromJSONBody 从 JSON 请求体的 tenant_id 字段读取租户，请求体会缓存供处理器再次绑定
func TenantFromJSONBody() TenantFunc {
	return func(c *gin.Context) string {
		var body struct {
			TenantID string `json:"tenant_id"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			return ""
		}
		return body.TenantID
	}
}
