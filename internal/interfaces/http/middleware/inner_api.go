package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"model-invoke-api/internal/interfaces/http/dto"
)

// InnerAPIKeyHeader 内部接口密钥头
const InnerAPIKeyHeader = "X-Inner-Api-Key"

// InnerAPIConfig 内部接口配置
type InnerAPIConfig struct {
	Enabled bool
	APIKey  string
}

// InnerAPI 内部接口门禁；未启用或密钥不匹配时一律 404，不暴露接口存在
func InnerAPI(cfg InnerAPIConfig) gin.HandlerFunc {
	expected := []byte(cfg.APIKey)
	return func(c *gin.Context) {
		if !cfg.Enabled || len(expected) == 0 {
			abortNotFound(c)
			return
		}

		got := []byte(c.GetHeader(InnerAPIKeyHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			abortNotFound(c)
			return
		}

		c.Next()
	}
}

func abortNotFound(c *gin.Context) {
	dto.NotFound(c, "not found")
	c.Abort()
}
