// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
)

// ProviderRepository 供应商记录仓储实现
type ProviderRepository struct {
	client *Client
}

var _ repository.ProviderRepository = (*ProviderRepository)(nil)

// NewProviderRepository 创建供应商记录仓储
func NewProviderRepository(client *Client) *ProviderRepository {
	return &ProviderRepository{client: client}
}

func (r *ProviderRepository) ListByTenantProvider(ctx context.Context, tenantID, providerName string) ([]*entity.Provider, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderRepository.ListByTenantProvider")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []*entity.Provider
	if err := db.Where("tenant_id = ? AND provider_name = ?", tenantID, providerName).
		Order("provider_type, created_at").
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return rows, nil
}

func (r *ProviderRepository) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Provider, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderRepository.ListByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []*entity.Provider
	if err := db.Where("tenant_id = ?", tenantID).
		Order("provider_name, provider_type, quota_type").
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return rows, nil
}

// Upsert 已存在时只更新额度定义与凭证，不触碰 quota_used
func (r *ProviderRepository) Upsert(ctx context.Context, p *entity.Provider) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "provider_name"}, {Name: "provider_type"}, {Name: "quota_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"quota_limit", "restrict_models", "credentials", "is_valid", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}

// DeductQuota 条件更新保证并发扣减不会越过上限
func (r *ProviderRepository) DeductQuota(ctx context.Context, d repository.QuotaDeduction) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderRepository.DeductQuota")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Provider{}).
		Where("tenant_id = ? AND provider_name = ? AND provider_type = ? AND quota_type = ?",
			d.TenantID, d.ProviderName, "system", d.QuotaType).
		Where("quota_limit > quota_used AND quota_limit >= quota_used + ?", d.Amount).
		UpdateColumns(map[string]any{
			"quota_used": gorm.Expr("quota_used + ?", d.Amount),
			"last_used":  time.Now(),
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to deduct quota: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ProviderRepository) ResetQuota(ctx context.Context, tenantID, providerName, quotaType string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderRepository.ResetQuota")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Provider{}).
		Where("tenant_id = ? AND provider_name = ? AND provider_type = ? AND quota_type = ?",
			tenantID, providerName, "system", quotaType).
		UpdateColumn("quota_used", 0)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to reset quota: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quota %s/%s not found for tenant %s", providerName, quotaType, tenantID)
	}
	return nil
}

// ProviderModelRepository 模型级凭证仓储实现
type ProviderModelRepository struct {
	client *Client
}

var _ repository.ProviderModelRepository = (*ProviderModelRepository)(nil)

func NewProviderModelRepository(client *Client) *ProviderModelRepository {
	return &ProviderModelRepository{client: client}
}

func (r *ProviderModelRepository) ListByTenantProvider(ctx context.Context, tenantID, providerName string) ([]*entity.ProviderModel, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderModelRepository.ListByTenantProvider")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []*entity.ProviderModel
	if err := db.Where("tenant_id = ? AND provider_name = ?", tenantID, providerName).Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list provider models: %w", err)
	}
	return rows, nil
}

func (r *ProviderModelRepository) Upsert(ctx context.Context, m *entity.ProviderModel) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderModelRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "provider_name"}, {Name: "model_name"}, {Name: "model_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"credentials", "is_valid", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert provider model: %w", err)
	}
	return nil
}

// PreferredProviderRepository 偏好凭证来源仓储实现
type PreferredProviderRepository struct {
	client *Client
}

var _ repository.PreferredProviderRepository = (*PreferredProviderRepository)(nil)

func NewPreferredProviderRepository(client *Client) *PreferredProviderRepository {
	return &PreferredProviderRepository{client: client}
}

func (r *PreferredProviderRepository) Get(ctx context.Context, tenantID, providerName string) (*entity.TenantPreferredModelProvider, error) {
	ctx, span := tracer.Start(ctx, "postgres.PreferredProviderRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var pref entity.TenantPreferredModelProvider
	if err := db.First(&pref, "tenant_id = ? AND provider_name = ?", tenantID, providerName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get preferred provider: %w", err)
	}
	return &pref, nil
}

func (r *PreferredProviderRepository) Set(ctx context.Context, pref *entity.TenantPreferredModelProvider) error {
	ctx, span := tracer.Start(ctx, "postgres.PreferredProviderRepository.Set")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferred_provider_type", "updated_at"}),
	}).Create(pref).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set preferred provider: %w", err)
	}
	return nil
}
