package quota

import (
	"context"
	"fmt"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
)

// SubscriberName 扣减监听器在事件总线上的名称
const SubscriberName = "quota.deduct"

// Listener 监听调用完成与消息创建事件并扣减系统配额。
// 事件只携带标识，监听器每次重新解析供应商配置。
type Listener struct {
	resolver provider.Resolver
	deductor *Deductor
}

// NewListener 创建扣减监听器
func NewListener(resolver provider.Resolver, deductor *Deductor) *Listener {
	return &Listener{resolver: resolver, deductor: deductor}
}

// Register 订阅 model.invoked 与 message.created
func (l *Listener) Register(sub event.Subscriber) {
	sub.Subscribe(event.TopicModelInvoked, SubscriberName, l.Handle)
	sub.Subscribe(event.TopicMessageCreated, SubscriberName, l.Handle)
}

// Handle 处理单个事件
func (l *Listener) Handle(ctx context.Context, evt event.InvocationEvent) error {
	if evt.TenantID == "" || evt.Provider == "" {
		return nil
	}
	ctx = logger.WithFields(ctx, map[logger.ContextKey]string{
		logger.TenantIDKey: evt.TenantID,
		logger.ProviderKey: evt.Provider,
		logger.ModelKey:    evt.Model,
	})

	modelType := evt.ModelType
	if modelType == "" {
		modelType = llm.ModelTypeLLM
	}

	bundle, err := l.resolver.ResolveBundle(ctx, evt.TenantID, evt.Provider, modelType)
	if err != nil {
		if errors.HasCode(err, errors.CodeProviderNotFound) || errors.HasCode(err, errors.CodeTenantNotFound) {
			logger.Warn(ctx, "skip quota deduction, provider bundle not found", "event_id", evt.ID)
			return nil
		}
		return fmt.Errorf("resolve bundle for quota deduction: %w", err)
	}
	if bundle == nil || bundle.Configuration == nil {
		return nil
	}

	result, err := l.deductor.Deduct(ctx, bundle.Configuration, evt.Model, evt.PromptTokens, evt.CompletionTokens)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "quota deduction handled",
		"event_id", evt.ID,
		"message_id", evt.MessageID,
		"result", string(result),
	)
	return nil
}
