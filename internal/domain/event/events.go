// Package event 定义进程内事件主题与载荷。
package event

import (
	"context"
	"time"

	"model-invoke-api/internal/domain/llm"
)

// Topic 事件主题
type Topic string

const (
	// TopicModelInvoked 模型调用完成（含流式提前结束）
	TopicModelInvoked Topic = "model.invoked"
	// TopicMessageCreated 外部会话产生了一条消息
	TopicMessageCreated Topic = "message.created"
)

// InvocationEvent 用量从调用侧传递到计费侧的唯一载荷，发布后不可修改
type InvocationEvent struct {
	ID               string        `json:"id"`
	TenantID         string        `json:"tenant_id"`
	Provider         string        `json:"provider"`
	ProviderType     string        `json:"provider_type,omitempty"`
	ModelType        llm.ModelType `json:"model_type"`
	Model            string        `json:"model"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	// MessageID 仅 message.created 事件携带
	MessageID  string    `json:"message_id,omitempty"`
	User       string    `json:"user,omitempty"`
	LatencyMs  int64     `json:"latency_ms,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler 事件订阅者
type Handler func(ctx context.Context, evt InvocationEvent) error

// Publisher 事件发布端口
type Publisher interface {
	Publish(ctx context.Context, topic Topic, evt InvocationEvent)
}

// Subscriber 事件订阅端口
type Subscriber interface {
	Subscribe(topic Topic, name string, h Handler)
}
