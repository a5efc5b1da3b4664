package router

import (
	"github.com/gin-gonic/gin"

	"model-invoke-api/internal/interfaces/http/middleware"
)

// RegisterInnerRoutes 注册内部接口路由
func RegisterInnerRoutes(
	inner *gin.RouterGroup,
	handlers Handlers,
	limit func(middleware.TenantFunc) gin.HandlerFunc,
) {
	// 模型调用
	if h := handlers.Invoke; h != nil {
		inner.POST("/model/invoke/llm", limit(middleware.TenantFromJSONBody()), h.InvokeLLM)
	}

	// 会话命名
	if h := handlers.Naming; h != nil {
		inner.POST("/service/rename", limit(middleware.TenantFromJSONBody()), h.RenameConversation)
	}

	// 配额查询
	if h := handlers.Quota; h != nil {
		workspaces := inner.Group("/workspaces/:tenant_id")
		{
			workspaces.GET("/providers/:provider/quota", limit(middleware.TenantFromParam("tenant_id")), h.GetQuota)
		}
	}
}
