package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"model-invoke-api/internal/application/quota"
	"model-invoke-api/internal/interfaces/http/dto"
)

// QuotaReader 配额查询端口
type QuotaReader interface {
	Inspect(ctx context.Context, tenantID, providerName string) (*quota.QuotaReport, error)
}

// QuotaHandler 配额查询处理器
type QuotaHandler struct {
	reader QuotaReader
}

func NewQuotaHandler(reader QuotaReader) *QuotaHandler {
	return &QuotaHandler{reader: reader}
}

// GetQuota 查询租户在某供应商下的配额
// @Summary 查询配额
// @Tags Inner
// @Produce json
// @Param tenant_id path string true "租户 ID"
// @Param provider path string true "供应商"
// @Success 200 {object} dto.Response[quota.QuotaReport]
// @Failure 404 {object} dto.ErrorResponse
// @Router /inner/api/workspaces/{tenant_id}/providers/{provider}/quota [get]
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	c.Set("tenant_id", tenantID)

	report, err := h.reader.Inspect(c.Request.Context(), tenantID, c.Param("provider"))
	if err != nil {
		respondError(c, err, "failed to inspect quota")
		return
	}
	dto.Success(c, report)
}
