// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// Provider 租户在某供应商下的记录
//
// provider_type=system 的行即配额记录，每个 quota_type 一行；
// provider_type=custom 的行保存租户自有的供应商级凭证。
// quota_used 只允许通过条件更新递增。
type Provider struct {
	ID           string `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     string `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_provider_quota,priority:1"`
	ProviderName string `json:"provider_name" gorm:"type:varchar(64);not null;uniqueIndex:idx_provider_quota,priority:2"`
	ProviderType string `json:"provider_type" gorm:"type:varchar(16);not null;default:custom;uniqueIndex:idx_provider_quota,priority:3"`
	QuotaType    string `json:"quota_type" gorm:"type:varchar(32);not null;default:'';uniqueIndex:idx_provider_quota,priority:4"`
	// QuotaLimit -1 表示不限量
	QuotaLimit int64 `json:"quota_limit" gorm:"not null;default:0"`
	QuotaUsed  int64 `json:"quota_used" gorm:"not null;default:0"`
	// RestrictModels 覆盖目录中的允许模型，为空时沿用目录配置
	RestrictModels pq.StringArray    `json:"restrict_models,omitempty" gorm:"type:text[]"`
	Credentials    map[string]string `json:"-" gorm:"type:text;serializer:json"`
	IsValid        bool              `json:"is_valid" gorm:"not null;default:false"`
	LastUsed       *time.Time        `json:"last_used,omitempty"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Provider) TableName() string {
	return "providers"
}

// Remaining 剩余额度，不限量时返回 -1
func (p *Provider) Remaining() int64 {
	if p.QuotaLimit < 0 {
		return -1
	}
	if p.QuotaUsed >= p.QuotaLimit {
		return 0
	}
	return p.QuotaLimit - p.QuotaUsed
}

// ProviderModel 租户为单个模型配置的自有凭证
type ProviderModel struct {
	ID           string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     string            `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_provider_model,priority:1"`
	ProviderName string            `json:"provider_name" gorm:"type:varchar(64);not null;uniqueIndex:idx_provider_model,priority:2"`
	ModelName    string            `json:"model_name" gorm:"type:varchar(128);not null;uniqueIndex:idx_provider_model,priority:3"`
	ModelType    string            `json:"model_type" gorm:"type:varchar(32);not null;default:llm;uniqueIndex:idx_provider_model,priority:4"`
	Credentials  map[string]string `json:"-" gorm:"type:text;serializer:json"`
	IsValid      bool              `json:"is_valid" gorm:"not null;default:false"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ProviderModel) TableName() string {
	return "provider_models"
}

// TenantPreferredModelProvider 租户偏好的凭证来源
type TenantPreferredModelProvider struct {
	ID                    string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID              string    `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_preferred_provider,priority:1"`
	ProviderName          string    `json:"provider_name" gorm:"type:varchar(64);not null;uniqueIndex:idx_preferred_provider,priority:2"`
	PreferredProviderType string    `json:"preferred_provider_type" gorm:"type:varchar(16);not null"`
	CreatedAt             time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (TenantPreferredModelProvider) TableName() string {
	return "tenant_preferred_model_providers"
}
