// Package runner 调用供应商模型能力并把结果归约为一次用量事件
package runner

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
)

// RunRequest 调用参数
type RunRequest struct {
	Model          string
	PromptMessages []llm.PromptMessage
	Parameters     map[string]any
	Tools          []llm.PromptMessageTool
	Stop           []string
	Stream         bool
	User           string
}

// Response 阻塞结果或惰性流，二者只有一个非空
type Response struct {
	Result *llm.LLMResult
	Stream *ResultStream
}

// IsStream 是否为流式响应
func (r *Response) IsStream() bool {
	return r.Stream != nil
}

// ModelRunner 模型调用器，不做重试
type ModelRunner struct {
	publisher event.Publisher
	now       func() time.Time
}

// NewModelRunner 创建调用器
func NewModelRunner(publisher event.Publisher) *ModelRunner {
	return &ModelRunner{publisher: publisher, now: time.Now}
}

// Run 调用模型。流式时返回的 ResultStream 必须被消费到结束或被 Close。
func (r *ModelRunner) Run(ctx context.Context, bundle *provider.ModelBundle, req RunRequest) (*Response, error) {
	cfg := bundle.Configuration
	credentials := cfg.CurrentCredentials(llm.ModelTypeLLM, req.Model)
	if len(credentials) == 0 {
		return nil, errors.ErrCredentialsNotInitialized.WithDetail("No credentials found for model")
	}

	invokeReq := &llm.InvokeRequest{
		Model:          req.Model,
		Credentials:    credentials,
		PromptMessages: req.PromptMessages,
		Parameters:     req.Parameters,
		Tools:          req.Tools,
		Stop:           req.Stop,
		User:           req.User,
	}
	meta := invocationMeta{
		tenantID:  cfg.TenantID,
		provider:  cfg.Provider,
		provType:  string(cfg.UsingProviderType),
		model:     req.Model,
		user:      req.User,
		startedAt: r.now(),
	}

	if req.Stream {
		src, err := bundle.Model.InvokeStream(ctx, invokeReq)
		if err != nil {
			return nil, toInvokeError(err)
		}
		return &Response{Stream: newResultStream(ctx, src, meta, r.publish)}, nil
	}

	result, err := bundle.Model.Invoke(ctx, invokeReq)
	if err != nil {
		return nil, toInvokeError(err)
	}
	if result == nil {
		return nil, errors.ErrInvokeFailed.WithDetail("provider returned empty result")
	}
	if result.Usage == nil {
		result.Usage = llm.EmptyUsage()
	}

	r.publish(ctx, meta, result.Usage)
	return &Response{Result: result}, nil
}

// invocationMeta 生成事件所需的调用标识
type invocationMeta struct {
	tenantID  string
	provider  string
	provType  string
	model     string
	user      string
	startedAt time.Time
}

func (r *ModelRunner) publish(ctx context.Context, meta invocationMeta, usage *llm.LLMUsage) {
	evt := event.InvocationEvent{
		ID:               uuid.NewString(),
		TenantID:         meta.tenantID,
		Provider:         meta.provider,
		ProviderType:     meta.provType,
		ModelType:        llm.ModelTypeLLM,
		Model:            meta.model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		User:             meta.user,
		LatencyMs:        r.now().Sub(meta.startedAt).Milliseconds(),
		OccurredAt:       r.now(),
	}

	// 调用方断开后仍需记账
	ctx = context.WithoutCancel(ctx)
	logger.Debug(ctx, "model invoked",
		"event_id", evt.ID,
		"prompt_tokens", evt.PromptTokens,
		"completion_tokens", evt.CompletionTokens,
	)
	r.publisher.Publish(ctx, event.TopicModelInvoked, evt)
}

// toInvokeError 将驱动错误转换为 InvokeFailed
func toInvokeError(err error) error {
	if errors.IsAppError(err) {
		return err
	}
	var invokeErr *llm.InvokeError
	if stderrors.As(err, &invokeErr) {
		return errors.ErrInvokeFailed.WithDetail(invokeErr.Description).WithError(err)
	}
	return errors.ErrInvokeFailed.WithDetail(err.Error()).WithError(err)
}
