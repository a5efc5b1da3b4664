// Package entity 定义领域实体
package entity

import "time"

// LLMUsageEvent 模型调用用量流水，EventID 保证重复投递时只写一次
type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventID          string    `json:"event_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	TenantID         string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(64);not null"`
	ModelType        string    `json:"model_type" gorm:"type:varchar(32);not null;default:llm"`
	Model            string    `json:"model" gorm:"type:varchar(128);not null"`
	ProviderType     string    `json:"provider_type" gorm:"type:varchar(16)"`
	TokensPrompt     int64     `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int64     `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int64     `json:"duration_ms" gorm:"not null;default:0"`
	User             string    `json:"user,omitempty" gorm:"type:varchar(255)"`
	OccurredAt       time.Time `json:"occurred_at" gorm:"index"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}

// TotalTokens 总 token 数
func (e *LLMUsageEvent) TotalTokens() int64 {
	return e.TokensPrompt + e.TokensCompletion
}
