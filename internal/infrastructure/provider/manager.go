// Package provider 实现租户供应商配置解析
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/llm"
	domainprovider "model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/pkg/errors"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/tracer"
)

// ModelBuilder 按供应商目录项构建模型能力
type ModelBuilder interface {
	Build(provider string, cfg config.ProviderConfig) (llm.LargeLanguageModel, error)
}

// TenantCache 租户信息读穿缓存
type TenantCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// TenantKeyFunc 租户缓存键
type TenantKeyFunc func(tenantID string) string

// Repositories 解析所需的仓储集合
type Repositories struct {
	Tenants   repository.TenantRepository
	Providers repository.ProviderRepository
	Models    repository.ProviderModelRepository
	Preferred repository.PreferredProviderRepository
}

// Manager 每次调用从目录与租户记录重新构建 ProviderConfiguration
type Manager struct {
	catalog  map[string]config.ProviderConfig
	repos    Repositories
	builder  ModelBuilder
	cache    TenantCache
	cacheKey TenantKeyFunc
	cacheTTL time.Duration
}

// Option Manager 可选项
type Option func(*Manager)

// WithTenantCache 启用租户缓存，ttl 为 0 时不生效
func WithTenantCache(cache TenantCache, key TenantKeyFunc, ttl time.Duration) Option {
	return func(m *Manager) {
		m.cache = cache
		m.cacheKey = key
		m.cacheTTL = ttl
	}
}

// NewManager 创建解析器
func NewManager(catalog map[string]config.ProviderConfig, repos Repositories, builder ModelBuilder, opts ...Option) *Manager {
	m := &Manager{
		catalog: catalog,
		repos:   repos,
		builder: builder,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ domainprovider.Resolver = (*Manager)(nil)

// ResolveBundle 实现 provider.Resolver
func (m *Manager) ResolveBundle(ctx context.Context, tenantID, providerName string, modelType llm.ModelType) (*domainprovider.ModelBundle, error) {
	ctx, span := tracer.Start(ctx, "provider.Manager.ResolveBundle")
	defer span.End()

	cfg, err := m.Configuration(ctx, tenantID, providerName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	model, err := m.builder.Build(providerName, m.catalog[providerName])
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeLLMProviderError, fmt.Sprintf("provider %s is unavailable", providerName))
	}

	return &domainprovider.ModelBundle{Configuration: cfg, Model: model}, nil
}

// Configuration 只构建配置，不绑定模型能力（配额查询等场景使用）
func (m *Manager) Configuration(ctx context.Context, tenantID, providerName string) (*domainprovider.ProviderConfiguration, error) {
	entry, ok := m.catalog[providerName]
	if !ok {
		return nil, errors.ErrProviderNotFound.WithDetail(providerName)
	}

	if _, err := m.tenant(ctx, tenantID); err != nil {
		return nil, err
	}

	rows, err := m.repos.Providers.ListByTenantProvider(ctx, tenantID, providerName)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load provider records")
	}
	modelRows, err := m.repos.Models.ListByTenantProvider(ctx, tenantID, providerName)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load provider model records")
	}
	pref, err := m.repos.Preferred.Get(ctx, tenantID, providerName)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load preferred provider")
	}

	cfg := &domainprovider.ProviderConfiguration{
		TenantID: tenantID,
		Provider: providerName,
		Models:   entry.Models,
		System:   buildSystemConfiguration(entry, rows),
		Custom:   buildCustomConfiguration(rows, modelRows),
	}
	cfg.UsingProviderType = choosePreferredType(cfg, pref)

	logger.Debug(ctx, "provider configuration resolved",
		"using_provider_type", string(cfg.UsingProviderType),
		"current_quota_type", cfg.System.CurrentQuotaType,
	)
	return cfg, nil
}

// tenant 读取租户，不存在或非活跃时返回 ErrTenantNotFound
func (m *Manager) tenant(ctx context.Context, tenantID string) (*entity.Tenant, error) {
	if tenantID == "" {
		return nil, errors.ErrTenantNotFound
	}

	load := func() (interface{}, error) {
		t, err := m.repos.Tenants.GetByID(ctx, tenantID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load tenant")
		}
		if t == nil {
			return nil, errors.ErrTenantNotFound.WithDetail(tenantID)
		}
		return t, nil
	}

	var tenant *entity.Tenant
	if m.cache != nil && m.cacheTTL > 0 {
		data, err := m.cache.GetOrLoadSafe(ctx, m.cacheKey(tenantID), m.cacheTTL, load)
		if err != nil {
			if errors.IsAppError(err) {
				return nil, err
			}
			// 缓存不可用时直接回源
			logger.Warn(ctx, "tenant cache unavailable", "error", err.Error())
			v, err := load()
			if err != nil {
				return nil, err
			}
			tenant = v.(*entity.Tenant)
		} else {
			tenant = &entity.Tenant{}
			if err := json.Unmarshal(data, tenant); err != nil {
				return nil, errors.Wrap(err, errors.CodeCacheError, "failed to decode cached tenant")
			}
		}
	} else {
		v, err := load()
		if err != nil {
			return nil, err
		}
		tenant = v.(*entity.Tenant)
	}

	if !tenant.IsActive() {
		return nil, errors.ErrTenantNotFound.WithDetail(tenantID)
	}
	return tenant, nil
}

// buildSystemConfiguration 目录中的配额模板与租户系统配额行按 quota_type 合并
func buildSystemConfiguration(entry config.ProviderConfig, rows []*entity.Provider) domainprovider.SystemConfiguration {
	byType := make(map[string]*entity.Provider)
	for _, r := range rows {
		if r.ProviderType == string(domainprovider.ProviderTypeSystem) {
			byType[r.QuotaType] = r
		}
	}

	quotas := make([]domainprovider.QuotaConfiguration, 0, len(entry.System.QuotaConfigurations))
	for _, tpl := range entry.System.QuotaConfigurations {
		q := domainprovider.QuotaConfiguration{
			QuotaType:      tpl.QuotaType,
			QuotaUnit:      domainprovider.QuotaUnit(tpl.QuotaUnit),
			QuotaLimit:     tpl.QuotaLimit,
			RestrictModels: tpl.RestrictModels,
		}
		if row, ok := byType[tpl.QuotaType]; ok {
			q.QuotaLimit = row.QuotaLimit
			q.QuotaUsed = row.QuotaUsed
			q.IsValid = row.IsValid
			if len(row.RestrictModels) > 0 {
				q.RestrictModels = []string(row.RestrictModels)
			}
		}
		quotas = append(quotas, q)
	}

	return domainprovider.SystemConfiguration{
		Enabled:             entry.System.Enabled,
		CurrentQuotaType:    domainprovider.SelectCurrentQuotaType(quotas),
		QuotaConfigurations: quotas,
		Credentials:         nonEmpty(entry.System.Credentials),
	}
}

func buildCustomConfiguration(rows []*entity.Provider, modelRows []*entity.ProviderModel) domainprovider.CustomConfiguration {
	custom := domainprovider.CustomConfiguration{Models: make(map[string]llm.Credentials)}
	for _, r := range rows {
		if r.ProviderType == string(domainprovider.ProviderTypeCustom) && r.IsValid {
			custom.Provider = nonEmpty(r.Credentials)
		}
	}
	for _, r := range modelRows {
		if r.ModelType != string(llm.ModelTypeLLM) || !r.IsValid {
			continue
		}
		if creds := nonEmpty(r.Credentials); creds != nil {
			custom.Models[r.ModelName] = creds
		}
	}
	return custom
}

// choosePreferredType 偏好类型可用时采用，否则有自有凭证用 custom，再否则用 system
func choosePreferredType(cfg *domainprovider.ProviderConfiguration, pref *entity.TenantPreferredModelProvider) domainprovider.ProviderType {
	systemUsable := cfg.System.Enabled && len(cfg.System.Credentials) > 0
	customUsable := cfg.Custom.HasCredentials()

	if pref != nil {
		switch domainprovider.ProviderType(pref.PreferredProviderType) {
		case domainprovider.ProviderTypeSystem:
			if systemUsable {
				return domainprovider.ProviderTypeSystem
			}
		case domainprovider.ProviderTypeCustom:
			if customUsable {
				return domainprovider.ProviderTypeCustom
			}
		}
	}
	if customUsable {
		return domainprovider.ProviderTypeCustom
	}
	return domainprovider.ProviderTypeSystem
}

// nonEmpty 去掉空值，全部为空时返回 nil
func nonEmpty(creds map[string]string) llm.Credentials {
	var out llm.Credentials
	for k, v := range creds {
		if v == "" {
			continue
		}
		if out == nil {
			out = make(llm.Credentials, len(creds))
		}
		out[k] = v
	}
	return out
}
