package handler

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"model-invoke-api/internal/application/completion"
	"model-invoke-api/internal/application/runner"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/internal/interfaces/http/dto"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
)

// Invoker 模型调用编排端口
type Invoker interface {
	InvokeModel(ctx context.Context, req completion.InvokeRequest) (*runner.Response, error)
}

// InvokeHandler 内部模型调用处理器
type InvokeHandler struct {
	invoker Invoker
}

// NewInvokeHandler 创建模型调用处理器
func NewInvokeHandler(invoker Invoker) *InvokeHandler {
	return &InvokeHandler{invoker: invoker}
}

// InvokeLLM 调用大语言模型
// @Summary 调用大语言模型
// @Description stream=true 时以 SSE 返回分片，否则返回完整结果
// @Tags Inner
// @Accept json
// @Produce json,text/event-stream
// @Param body body dto.InvokeLLMRequest true "调用参数"
// @Success 200 {object} dto.LLMResultResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /inner/api/model/invoke/llm [post]
func (h *InvokeHandler) InvokeLLM(c *gin.Context) {
	var req dto.InvokeLLMRequest
	// 限流中间件可能已读取过请求体
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	c.Set("tenant_id", req.TenantID)
	ctx := logger.WithContext(c.Request.Context(), logger.TenantIDKey, req.TenantID)
	ctx = service.WithSourceProvider(ctx, "inner_api", req.Provider)

	resp, err := h.invoker.InvokeModel(ctx, req.ToInvokeRequest())
	if err != nil {
		respondError(c, err, "model invoke failed")
		return
	}

	// 结果直接作为响应体，与流式分片保持同一形态；错误仍走统一信封
	if !resp.IsStream() {
		c.JSON(http.StatusOK, dto.NewLLMResultResponse(resp.Result))
		return
	}
	h.stream(c, resp.Stream)
}

// stream 逐个分片写出 data 事件；中途失败写 error 事件，客户端断开时关闭上游流
func (h *InvokeHandler) stream(c *gin.Context, stream *runner.ResultStream) {
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		if ctx.Err() != nil {
			return false
		}

		chunk, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			if ctx.Err() != nil {
				// 客户端已断开
				return false
			}
			logger.Warn(ctx, "model stream failed", "error", err.Error())
			c.SSEvent("error", streamError(err))
			return false
		}

		c.Render(-1, sse.Event{Data: dto.NewLLMResultChunkResponse(chunk)})
		return true
	})
}

func streamError(err error) gin.H {
	appErr := errors.AsAppError(err)
	message := appErr.Message
	if appErr.Detail != "" {
		message = appErr.Detail
	}
	return gin.H{
		"code":    appErr.Code,
		"message": message,
	}
}
