package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
)

var testCatalog = map[string]config.ProviderConfig{
	"openai": {System: config.SystemProviderConfig{
		Enabled: true,
		QuotaConfigurations: []config.QuotaConfigTemplate{
			{QuotaType: "trial", QuotaUnit: "times", QuotaLimit: 200},
			{QuotaType: "paid", QuotaUnit: "tokens", QuotaLimit: -1},
		},
	}},
}

func testProviders() []*entity.Provider {
	return []*entity.Provider{
		{ProviderName: "openai", ProviderType: "system", QuotaType: "trial", QuotaLimit: 200, QuotaUsed: 150,
			RestrictModels: pq.StringArray{"gpt-3.5-*"}, IsValid: true},
		{ProviderName: "openai", ProviderType: "system", QuotaType: "paid", QuotaLimit: -1, QuotaUsed: 5000, IsValid: true},
		{ProviderName: "openai", ProviderType: "custom", IsValid: true, Credentials: map[string]string{"api_key": "sk-secret"}},
	}
}

func TestQuotaRows(t *testing.T) {
	rows := quotaRows(testProviders(), testCatalog)
	require.Len(t, rows, 3)

	assert.Equal(t, "times", rows[0].QuotaUnit)
	assert.Equal(t, int64(50), rows[0].Remaining)
	assert.Equal(t, "tokens", rows[1].QuotaUnit)
	assert.Equal(t, int64(-1), rows[1].Remaining)
	assert.Empty(t, rows[2].QuotaUnit)
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", quotaRows(testProviders(), testCatalog)))

	assert.NotContains(t, buf.String(), "sk-secret")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "trial", decoded[0]["quota_type"])
	assert.EqualValues(t, 150, decoded[0]["quota_used"])
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	summary := []repository.UsageSummary{{Provider: "anthropic", Model: "claude", Calls: 2, PromptTokens: 10, CompletionTokens: 5}}
	require.NoError(t, render(&buf, "yaml", usageRows(summary)))

	var decoded []usageRow
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(15), decoded[0].TotalTokens)
	assert.Contains(t, buf.String(), "total_tokens: 15")
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "table", quotaRows(testProviders(), testCatalog)))

	out := buf.String()
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, "unlimited")
	assert.Contains(t, out, "gpt-3.5-*")

	buf.Reset()
	tenants := []*entity.Tenant{entity.NewTenant("Default Tenant", "default-tenant")}
	require.NoError(t, render(&buf, "", tenantRows(tenants)))
	assert.Contains(t, buf.String(), "default-tenant")
	assert.Contains(t, buf.String(), "active")
}

func TestRender_UnknownFormat(t *testing.T) {
	assert.Error(t, render(&bytes.Buffer{}, "xml", []tenantRow{}))
	assert.Error(t, render(&bytes.Buffer{}, "table", map[string]string{}))
}
