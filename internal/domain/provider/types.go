// Package provider 定义租户供应商配置、模型状态与解析端口。
package provider

import (
	"context"

	"model-invoke-api/internal/domain/llm"
)

// ProviderType 凭证来源
type ProviderType string

const (
	// ProviderTypeSystem 平台托管凭证，按配额计量
	ProviderTypeSystem ProviderType = "system"
	// ProviderTypeCustom 租户自有凭证，不计量
	ProviderTypeCustom ProviderType = "custom"
)

// QuotaUnit 配额计量单位
type QuotaUnit string

const (
	QuotaUnitTokens  QuotaUnit = "tokens"
	QuotaUnitCredits QuotaUnit = "credits"
	QuotaUnitTimes   QuotaUnit = "times"
)

// UnlimitedQuota 配额不限制的哨兵值
const UnlimitedQuota int64 = -1

// ModelStatus 模型可用状态
type ModelStatus string

const (
	ModelStatusActive        ModelStatus = "active"
	ModelStatusNoConfigure   ModelStatus = "no-configure"
	ModelStatusNoPermission  ModelStatus = "no-permission"
	ModelStatusQuotaExceeded ModelStatus = "quota-exceeded"
)

// ProviderModel 供应商下的单个模型及其状态
type ProviderModel struct {
	Model     string        `json:"model"`
	ModelType llm.ModelType `json:"model_type"`
	Status    ModelStatus   `json:"status"`
}

// ModelBundle 一次调用所需的配置与模型能力，每次调用重新解析
type ModelBundle struct {
	Configuration *ProviderConfiguration
	Model         llm.LargeLanguageModel
}

// Resolver 解析租户 + 供应商 + 模型类型对应的 ModelBundle
type Resolver interface {
	ResolveBundle(ctx context.Context, tenantID, provider string, modelType llm.ModelType) (*ModelBundle, error)
}
