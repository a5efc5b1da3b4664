package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"model-invoke-api/internal/interfaces/http/dto"
	"model-invoke-api/pkg/logger"
)

// ConversationNamer 会话命名端口
type ConversationNamer interface {
	GenerateName(ctx context.Context, tenantID, query string) (string, error)
}

// NamingHandler 会话命名处理器
type NamingHandler struct {
	namer ConversationNamer
}

func NewNamingHandler(namer ConversationNamer) *NamingHandler {
	return &NamingHandler{namer: namer}
}

// RenameConversation 根据提问生成会话标题，响应体为标题字符串
// @Summary 生成会话标题
// @Tags Inner
// @Accept json
// @Produce json
// @Param body body dto.RenameConversationRequest true "租户与提问"
// @Success 200 {string} string
// @Failure 400 {object} dto.ErrorResponse
// @Router /inner/api/service/rename [post]
func (h *NamingHandler) RenameConversation(c *gin.Context) {
	var req dto.RenameConversationRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	c.Set("tenant_id", req.TenantID)
	ctx := logger.WithContext(c.Request.Context(), logger.TenantIDKey, req.TenantID)

	name, err := h.namer.GenerateName(ctx, req.TenantID, req.Query)
	if err != nil {
		respondError(c, err, "conversation naming failed")
		return
	}
	c.JSON(http.StatusOK, name)
}
