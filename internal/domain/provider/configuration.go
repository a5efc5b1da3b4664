package provider

import (
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"model-invoke-api/internal/domain/llm"
)

// QuotaConfiguration 一种配额类型的定义与当前使用量
type QuotaConfiguration struct {
	QuotaType  string    `json:"quota_type"`
	QuotaUnit  QuotaUnit `json:"quota_unit"`
	QuotaLimit int64     `json:"quota_limit"`
	QuotaUsed  int64     `json:"quota_used"`
	// RestrictModels 允许的模型 glob，为空表示不限制
	RestrictModels []string `json:"restrict_models,omitempty"`
	// IsValid 租户存在对应的配额记录
	IsValid bool `json:"is_valid"`
}

// Unlimited 是否为不限量配额
func (q *QuotaConfiguration) Unlimited() bool {
	return q.QuotaLimit == UnlimitedQuota
}

// Exhausted 配额是否已用尽
func (q *QuotaConfiguration) Exhausted() bool {
	if q.Unlimited() {
		return false
	}
	return q.QuotaUsed >= q.QuotaLimit
}

// Permits 模型是否在允许范围内
func (q *QuotaConfiguration) Permits(model string) bool {
	if len(q.RestrictModels) == 0 {
		return true
	}
	for _, pattern := range q.RestrictModels {
		if ok, err := doublestar.Match(pattern, model); err == nil && ok {
			return true
		}
	}
	return false
}

// SystemConfiguration 平台托管凭证配置
type SystemConfiguration struct {
	Enabled             bool                 `json:"enabled"`
	CurrentQuotaType    string               `json:"current_quota_type"`
	QuotaConfigurations []QuotaConfiguration `json:"quota_configurations"`
	Credentials         llm.Credentials      `json:"-"`
}

// CustomConfiguration 租户自有凭证配置
type CustomConfiguration struct {
	// Provider 供应商级凭证，nil 表示未配置
	Provider llm.Credentials `json:"-"`
	// Models 模型级凭证，优先于供应商级
	Models map[string]llm.Credentials `json:"-"`
}

// HasCredentials 是否存在任意自有凭证
func (c *CustomConfiguration) HasCredentials() bool {
	if len(c.Provider) > 0 {
		return true
	}
	for _, creds := range c.Models {
		if len(creds) > 0 {
			return true
		}
	}
	return false
}

// ProviderConfiguration 某租户在某供应商下的完整配置
type ProviderConfiguration struct {
	TenantID          string              `json:"tenant_id"`
	Provider          string              `json:"provider"`
	Models            []string            `json:"models"`
	UsingProviderType ProviderType        `json:"using_provider_type"`
	System            SystemConfiguration `json:"system_configuration"`
	Custom            CustomConfiguration `json:"-"`
}

// CurrentQuotaConfiguration 当前生效的配额配置，不存在时返回 nil
func (c *ProviderConfiguration) CurrentQuotaConfiguration() *QuotaConfiguration {
	for i := range c.System.QuotaConfigurations {
		if c.System.QuotaConfigurations[i].QuotaType == c.System.CurrentQuotaType {
			return &c.System.QuotaConfigurations[i]
		}
	}
	return nil
}

// CurrentCredentials 当前使用的凭证；没有可用凭证时返回 nil
func (c *ProviderConfiguration) CurrentCredentials(modelType llm.ModelType, model string) llm.Credentials {
	if modelType != llm.ModelTypeLLM {
		return nil
	}
	if c.UsingProviderType == ProviderTypeSystem {
		if !c.System.Enabled || len(c.System.Credentials) == 0 {
			return nil
		}
		return c.System.Credentials
	}
	if creds, ok := c.Custom.Models[model]; ok && len(creds) > 0 {
		return creds
	}
	if len(c.Custom.Provider) > 0 {
		return c.Custom.Provider
	}
	return nil
}

// ModelStatus 计算模型当前状态
func (c *ProviderConfiguration) ModelStatus(modelType llm.ModelType, model string) ModelStatus {
	if c.UsingProviderType == ProviderTypeCustom {
		if len(c.CurrentCredentials(modelType, model)) == 0 {
			return ModelStatusNoConfigure
		}
		return ModelStatusActive
	}

	if len(c.CurrentCredentials(modelType, model)) == 0 {
		return ModelStatusNoConfigure
	}
	quota := c.CurrentQuotaConfiguration()
	if quota == nil || !quota.IsValid {
		return ModelStatusNoConfigure
	}
	if !quota.Permits(model) {
		return ModelStatusNoPermission
	}
	if quota.Exhausted() {
		return ModelStatusQuotaExceeded
	}
	return ModelStatusActive
}

// GetProviderModel 查找目录中的模型，不存在时返回 nil
func (c *ProviderConfiguration) GetProviderModel(modelType llm.ModelType, model string) *ProviderModel {
	if modelType != llm.ModelTypeLLM || !slices.Contains(c.Models, model) {
		return nil
	}
	return &ProviderModel{
		Model:     model,
		ModelType: modelType,
		Status:    c.ModelStatus(modelType, model),
	}
}

// SelectCurrentQuotaType 选出第一个有效且未用尽的配额类型，全部不满足时取第一个
func SelectCurrentQuotaType(quotas []QuotaConfiguration) string {
	for _, q := range quotas {
		if q.IsValid && !q.Exhausted() {
			return q.QuotaType
		}
	}
	if len(quotas) > 0 {
		return quotas[0].QuotaType
	}
	return ""
}
