// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"model-invoke-api/internal/interfaces/http/dto"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
)

// respondError 应用错误按错误码输出，其余错误记录日志后返回 500
func respondError(c *gin.Context, err error, msg string) {
	if errors.IsAppError(err) {
		dto.AppError(c, err)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
