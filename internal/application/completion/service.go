package completion

import (
	"context"

	"model-invoke-api/internal/application/runner"
	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/metrics"
	"model-invoke-api/pkg/tracer"
)

// InvokeRequest 调用入参，消息与工具为未校验的通用记录
type InvokeRequest struct {
	TenantID         string
	Provider         string
	Model            string
	CompletionParams map[string]any
	PromptMessages   []map[string]any
	Tools            []map[string]any
	Stop             []string
	Stream           bool
	User             string
}

// Runner 模型调用端口
type Runner interface {
	Run(ctx context.Context, bundle *provider.ModelBundle, req runner.RunRequest) (*runner.Response, error)
}

// Service 模型调用编排，自身无状态，每次调用重新解析供应商配置
type Service struct {
	resolver provider.Resolver
	runner   Runner
}

// NewService 创建编排服务
func NewService(resolver provider.Resolver, runner Runner) *Service {
	return &Service{resolver: resolver, runner: runner}
}

// InvokeModel 依次执行：转换 -> 解析 -> 模型查找 -> 状态门禁 -> 调用。
// 任一步失败立即返回，门禁之前不会调用供应商，也不会发布事件。
func (s *Service) InvokeModel(ctx context.Context, req InvokeRequest) (*runner.Response, error) {
	ctx, span := tracer.Start(ctx, "completion.Service.InvokeModel")
	defer span.End()

	ctx = logger.WithFields(ctx, map[logger.ContextKey]string{
		logger.TenantIDKey: req.TenantID,
		logger.ProviderKey: req.Provider,
		logger.ModelKey:    req.Model,
	})

	messages, err := ConvertMessages(req.PromptMessages)
	if err != nil {
		s.reject(req.Provider, "validation")
		return nil, err
	}
	tools, err := ConvertTools(req.Tools)
	if err != nil {
		s.reject(req.Provider, "validation")
		return nil, err
	}

	bundle, err := s.resolver.ResolveBundle(ctx, req.TenantID, req.Provider, llm.ModelTypeLLM)
	if err != nil {
		span.RecordError(err)
		s.reject(req.Provider, "resolve")
		return nil, err
	}
	if bundle == nil || bundle.Configuration == nil {
		s.reject(req.Provider, "resolve")
		return nil, errors.ErrProviderNotFound
	}

	providerModel := bundle.Configuration.GetProviderModel(llm.ModelTypeLLM, req.Model)
	if providerModel == nil {
		s.reject(req.Provider, "model_not_found")
		return nil, errors.Newf(errors.CodeModelNotSupported, "Could not find model %s in provider %s.", req.Model, req.Provider)
	}

	if err := checkStatus(providerModel.Status, req.Provider, req.Model); err != nil {
		s.reject(req.Provider, string(providerModel.Status))
		logger.Info(ctx, "model invoke rejected", "status", string(providerModel.Status))
		return nil, err
	}

	resp, err := s.runner.Run(ctx, bundle, runner.RunRequest{
		Model:          req.Model,
		PromptMessages: messages,
		Parameters:     req.CompletionParams,
		Tools:          tools,
		Stop:           req.Stop,
		Stream:         req.Stream,
		User:           req.User,
	})
	if err != nil {
		span.RecordError(err)
		if errors.HasCode(err, errors.CodeCredentialsNotInitialized) {
			s.reject(req.Provider, "no_credentials")
		}
		logger.Error(ctx, "model invoke failed", err)
		return nil, err
	}
	return resp, nil
}

// checkStatus 状态门禁
func checkStatus(status provider.ModelStatus, providerName, model string) error {
	switch status {
	case provider.ModelStatusActive:
		return nil
	case provider.ModelStatusNoConfigure:
		return errors.Newf(errors.CodeCredentialsNotInitialized, "Model %s credentials is not initialized.", model)
	case provider.ModelStatusNoPermission:
		return errors.Newf(errors.CodeModelNotSupported, "Model %s currently not supported.", model)
	case provider.ModelStatusQuotaExceeded:
		return errors.Newf(errors.CodeQuotaExceeded, "Model provider %s quota exceeded.", providerName)
	default:
		return errors.Newf(errors.CodeInternalError, "unknown model status %s", status)
	}
}

func (s *Service) reject(providerName, reason string) {
	metrics.InvokeRejectedTotal.WithLabelValues(providerName, reason).Inc()
}
