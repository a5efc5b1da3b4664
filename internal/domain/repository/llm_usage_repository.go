// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"model-invoke-api/internal/domain/entity"
)

// UsageSummary 按模型聚合的用量
type UsageSummary struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Calls            int64  `json:"calls"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// LLMUsageEventRepository 用量流水仓储
type LLMUsageEventRepository interface {
	// Create 写入流水；EventID 已存在时返回 false 且不报错
	Create(ctx context.Context, event *entity.LLMUsageEvent) (bool, error)
	GetTokenUsage(ctx context.Context, tenantID string, startInclusive, endExclusive time.Time) (int64, error)
	Summarize(ctx context.Context, tenantID string, startInclusive, endExclusive time.Time) ([]UsageSummary, error)
}
