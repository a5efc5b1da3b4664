package service

import (
	"context"
	"time"
)

// LLMUsageInput 一次模型调用的可计费与可观测数据。
// 说明：位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type LLMUsageInput struct {
	EventID  string
	TenantID string

	Provider     string
	ProviderType string
	ModelType    string
	Model        string

	PromptTokens     int64
	CompletionTokens int64
	DurationMs       int64
	User             string
	OccurredAt       time.Time
}

// LLMUsageRecorder 负责记录模型用量流水。
// 约定：实现应当幂等（同一 EventID 只记一次），且不阻塞调用主流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
