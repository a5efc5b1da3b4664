package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"model-invoke-api/internal/domain/llm"
)

func systemConfig(quota QuotaConfiguration) *ProviderConfiguration {
	return &ProviderConfiguration{
		TenantID:          "t1",
		Provider:          "openai",
		Models:            []string{"gpt-4o-mini", "gpt-4", "gpt-3.5-turbo"},
		UsingProviderType: ProviderTypeSystem,
		System: SystemConfiguration{
			Enabled:             true,
			CurrentQuotaType:    quota.QuotaType,
			QuotaConfigurations: []QuotaConfiguration{quota},
			Credentials:         llm.Credentials{"api_key": "sk-system"},
		},
	}
}

func TestModelStatus_System(t *testing.T) {
	tests := []struct {
		name  string
		quota QuotaConfiguration
		model string
		want  ModelStatus
	}{
		{
			name:  "active",
			quota: QuotaConfiguration{QuotaType: "trial", QuotaUnit: QuotaUnitTokens, QuotaLimit: 1000, IsValid: true},
			model: "gpt-4o-mini",
			want:  ModelStatusActive,
		},
		{
			name:  "no quota row",
			quota: QuotaConfiguration{QuotaType: "trial", QuotaUnit: QuotaUnitTokens, QuotaLimit: 1000},
			model: "gpt-4o-mini",
			want:  ModelStatusNoConfigure,
		},
		{
			name:  "restricted",
			quota: QuotaConfiguration{QuotaType: "trial", QuotaLimit: 1000, IsValid: true, RestrictModels: []string{"gpt-3.5-*", "gpt-4o-mini"}},
			model: "gpt-4",
			want:  ModelStatusNoPermission,
		},
		{
			name:  "restricted glob match",
			quota: QuotaConfiguration{QuotaType: "trial", QuotaLimit: 1000, IsValid: true, RestrictModels: []string{"gpt-3.5-*"}},
			model: "gpt-3.5-turbo",
			want:  ModelStatusActive,
		},
		{
			name:  "exhausted",
			quota: QuotaConfiguration{QuotaType: "trial", QuotaLimit: 100, QuotaUsed: 100, IsValid: true},
			model: "gpt-4o-mini",
			want:  ModelStatusQuotaExceeded,
		},
		{
			name:  "unlimited never exhausted",
			quota: QuotaConfiguration{QuotaType: "paid", QuotaLimit: UnlimitedQuota, QuotaUsed: 1 << 40, IsValid: true},
			model: "gpt-4",
			want:  ModelStatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := systemConfig(tt.quota)
			assert.Equal(t, tt.want, cfg.ModelStatus(llm.ModelTypeLLM, tt.model))
		})
	}
}

func TestModelStatus_SystemWithoutCredentials(t *testing.T) {
	cfg := systemConfig(QuotaConfiguration{QuotaType: "trial", QuotaLimit: 1000, IsValid: true})
	cfg.System.Credentials = nil

	assert.Equal(t, ModelStatusNoConfigure, cfg.ModelStatus(llm.ModelTypeLLM, "gpt-4o-mini"))
	assert.Nil(t, cfg.CurrentCredentials(llm.ModelTypeLLM, "gpt-4o-mini"))
}

func TestCurrentCredentials_Custom(t *testing.T) {
	cfg := &ProviderConfiguration{
		UsingProviderType: ProviderTypeCustom,
		Models:            []string{"gpt-4", "gpt-4o-mini"},
		Custom: CustomConfiguration{
			Provider: llm.Credentials{"api_key": "sk-provider"},
			Models:   map[string]llm.Credentials{"gpt-4": {"api_key": "sk-model"}},
		},
	}

	assert.Equal(t, "sk-model", cfg.CurrentCredentials(llm.ModelTypeLLM, "gpt-4")["api_key"])
	assert.Equal(t, "sk-provider", cfg.CurrentCredentials(llm.ModelTypeLLM, "gpt-4o-mini")["api_key"])
	assert.Equal(t, ModelStatusActive, cfg.ModelStatus(llm.ModelTypeLLM, "gpt-4o-mini"))

	cfg.Custom.Provider = nil
	assert.Equal(t, ModelStatusNoConfigure, cfg.ModelStatus(llm.ModelTypeLLM, "gpt-4o-mini"))
	assert.True(t, cfg.Custom.HasCredentials())
}

func TestGetProviderModel(t *testing.T) {
	cfg := systemConfig(QuotaConfiguration{QuotaType: "trial", QuotaLimit: 1000, IsValid: true})

	pm := cfg.GetProviderModel(llm.ModelTypeLLM, "gpt-4")
	if assert.NotNil(t, pm) {
		assert.Equal(t, ModelStatusActive, pm.Status)
	}
	assert.Nil(t, cfg.GetProviderModel(llm.ModelTypeLLM, "claude-3-opus"))
	assert.Nil(t, cfg.GetProviderModel("text-embedding", "gpt-4"))
}

func TestSelectCurrentQuotaType(t *testing.T) {
	quotas := []QuotaConfiguration{
		{QuotaType: "trial", QuotaLimit: 100, QuotaUsed: 100, IsValid: true},
		{QuotaType: "free", QuotaLimit: 100, IsValid: false},
		{QuotaType: "paid", QuotaLimit: 1000, QuotaUsed: 10, IsValid: true},
	}
	assert.Equal(t, "paid", SelectCurrentQuotaType(quotas))

	quotas[2].QuotaUsed = 1000
	assert.Equal(t, "trial", SelectCurrentQuotaType(quotas))

	assert.Equal(t, "", SelectCurrentQuotaType(nil))
}
