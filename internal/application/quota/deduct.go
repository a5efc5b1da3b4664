package quota

import (
	"context"
	"fmt"

	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/metrics"
)

// DeductResult 扣减结果
type DeductResult string

const (
	DeductApplied          DeductResult = "applied"
	DeductOverLimit        DeductResult = "over_limit"
	DeductSkippedCustom    DeductResult = "skipped_custom"
	DeductSkippedUnlimited DeductResult = "skipped_unlimited"
	DeductSkippedNoQuota   DeductResult = "skipped_no_quota"
)

// QuotaStore 配额存储，DeductQuota 必须是单条原子条件更新
type QuotaStore interface {
	DeductQuota(ctx context.Context, d repository.QuotaDeduction) (bool, error)
}

// Deductor 按当前配额类型计算并扣减额度
type Deductor struct {
	store QuotaStore
}

// NewDeductor 创建扣减器
func NewDeductor(store QuotaStore) *Deductor {
	return &Deductor{store: store}
}

// Deduct 扣减一次调用的额度。自有凭证与不限量配额直接跳过；
// 已超额时条件更新不生效，返回 DeductOverLimit 而不是错误。
func (d *Deductor) Deduct(ctx context.Context, cfg *provider.ProviderConfiguration, model string, promptTokens, completionTokens int64) (DeductResult, error) {
	if cfg.UsingProviderType != provider.ProviderTypeSystem {
		return d.observe(cfg, "", DeductSkippedCustom, 0), nil
	}

	quota := cfg.CurrentQuotaConfiguration()
	if quota == nil {
		return d.observe(cfg, cfg.System.CurrentQuotaType, DeductSkippedNoQuota, 0), nil
	}
	if quota.Unlimited() {
		return d.observe(cfg, quota.QuotaType, DeductSkippedUnlimited, 0), nil
	}

	amount := UsedQuota(quota.QuotaUnit, model, promptTokens, completionTokens)
	applied, err := d.store.DeductQuota(ctx, repository.QuotaDeduction{
		TenantID:     cfg.TenantID,
		ProviderName: cfg.Provider,
		QuotaType:    quota.QuotaType,
		Amount:       amount,
	})
	if err != nil {
		metrics.QuotaDeductionTotal.WithLabelValues(cfg.Provider, quota.QuotaType, "error").Inc()
		return "", fmt.Errorf("failed to deduct quota: %w", err)
	}
	if !applied {
		logger.Warn(ctx, "quota deduction not applied, quota already exhausted",
			"quota_type", quota.QuotaType,
			"amount", amount,
		)
		return d.observe(cfg, quota.QuotaType, DeductOverLimit, 0), nil
	}
	return d.observe(cfg, quota.QuotaType, DeductApplied, amount), nil
}

func (d *Deductor) observe(cfg *provider.ProviderConfiguration, quotaType string, result DeductResult, amount int64) DeductResult {
	metrics.QuotaDeductionTotal.WithLabelValues(cfg.Provider, quotaType, string(result)).Inc()
	if amount > 0 {
		metrics.QuotaDeductedAmount.WithLabelValues(cfg.Provider, quotaType).Add(float64(amount))
	}
	return result
}
