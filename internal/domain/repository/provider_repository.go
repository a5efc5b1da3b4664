// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"model-invoke-api/internal/domain/entity"
)

// QuotaDeduction 一次配额扣减
type QuotaDeduction struct {
	TenantID     string
	ProviderName string
	QuotaType    string
	Amount       int64
}

// ProviderRepository 供应商记录（配额行与自有凭证行）仓储
type ProviderRepository interface {
	// ListByTenantProvider 获取租户在某供应商下的全部记录
	ListByTenantProvider(ctx context.Context, tenantID, providerName string) ([]*entity.Provider, error)

	// ListByTenant 获取租户的全部供应商记录
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Provider, error)

	// Upsert 按 (tenant, provider, provider_type, quota_type) 写入
	Upsert(ctx context.Context, p *entity.Provider) error

	// DeductQuota 单条条件更新：仅当 quota_limit > quota_used 时递增，返回是否生效
	DeductQuota(ctx context.Context, d QuotaDeduction) (bool, error)

	// ResetQuota 将系统配额行的已用量清零
	ResetQuota(ctx context.Context, tenantID, providerName, quotaType string) error
}

// ProviderModelRepository 模型级凭证仓储
type ProviderModelRepository interface {
	ListByTenantProvider(ctx context.Context, tenantID, providerName string) ([]*entity.ProviderModel, error)
	Upsert(ctx context.Context, m *entity.ProviderModel) error
}

// PreferredProviderRepository 租户偏好凭证来源仓储
type PreferredProviderRepository interface {
	// Get 不存在时返回 nil, nil
	Get(ctx context.Context, tenantID, providerName string) (*entity.TenantPreferredModelProvider, error)
	Set(ctx context.Context, pref *entity.TenantPreferredModelProvider) error
}
