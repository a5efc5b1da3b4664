package quota

import (
	"context"
	"time"

	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
)

// QuotaStatus 单个配额类型的展示信息
type QuotaStatus struct {
	QuotaType      string             `json:"quota_type"`
	QuotaUnit      provider.QuotaUnit `json:"quota_unit"`
	QuotaLimit     int64              `json:"quota_limit"`
	QuotaUsed      int64              `json:"quota_used"`
	Remaining      int64              `json:"remaining"`
	RestrictModels []string           `json:"restrict_models,omitempty"`
	IsValid        bool               `json:"is_valid"`
	Current        bool               `json:"current"`
}

// QuotaReport 租户在某供应商下的配额概览
type QuotaReport struct {
	TenantID          string                `json:"tenant_id"`
	Provider          string                `json:"provider"`
	UsingProviderType provider.ProviderType `json:"using_provider_type"`
	CurrentQuotaType  string                `json:"current_quota_type"`
	Quotas            []QuotaStatus         `json:"quotas"`
	// TodayTokens 当日（UTC）流水中的 token 总数
	TodayTokens int64 `json:"today_tokens"`
}

// QuotaInspector 查询租户配额，只读
type QuotaInspector struct {
	resolver provider.Resolver
	llmRepo  repository.LLMUsageEventRepository
	now      func() time.Time
}

func NewQuotaInspector(resolver provider.Resolver, llmRepo repository.LLMUsageEventRepository) *QuotaInspector {
	return &QuotaInspector{
		resolver: resolver,
		llmRepo:  llmRepo,
		now:      time.Now,
	}
}

// Inspect 返回配额概览；流水仓储为空时不统计当日用量
func (c *QuotaInspector) Inspect(ctx context.Context, tenantID, providerName string) (*QuotaReport, error) {
	bundle, err := c.resolver.ResolveBundle(ctx, tenantID, providerName, llm.ModelTypeLLM)
	if err != nil {
		return nil, err
	}
	cfg := bundle.Configuration

	report := &QuotaReport{
		TenantID:          tenantID,
		Provider:          providerName,
		UsingProviderType: cfg.UsingProviderType,
		CurrentQuotaType:  cfg.System.CurrentQuotaType,
		Quotas:            make([]QuotaStatus, 0, len(cfg.System.QuotaConfigurations)),
	}
	for _, q := range cfg.System.QuotaConfigurations {
		remaining := q.QuotaLimit - q.QuotaUsed
		switch {
		case q.Unlimited():
			remaining = provider.UnlimitedQuota
		case remaining < 0:
			remaining = 0
		}
		report.Quotas = append(report.Quotas, QuotaStatus{
			QuotaType:      q.QuotaType,
			QuotaUnit:      q.QuotaUnit,
			QuotaLimit:     q.QuotaLimit,
			QuotaUsed:      q.QuotaUsed,
			Remaining:      remaining,
			RestrictModels: q.RestrictModels,
			IsValid:        q.IsValid,
			Current:        q.QuotaType == cfg.System.CurrentQuotaType,
		})
	}

	if c.llmRepo != nil {
		now := c.now().UTC()
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end := start.Add(24 * time.Hour)
		used, err := c.llmRepo.GetTokenUsage(ctx, tenantID, start, end)
		if err != nil {
			return nil, err
		}
		report.TodayTokens = used
	}
	return report, nil
}
