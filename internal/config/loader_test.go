package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("MI_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${MI_TEST_HOST}"))
	assert.Equal(t, "port: 5432", expandEnv("port: ${MI_TEST_UNSET_PORT:5432}"))
	assert.Equal(t, "key: ", expandEnv("key: ${MI_TEST_UNSET_KEY:}"))
	assert.Equal(t, "raw: ${MI_TEST_UNSET_RAW}", expandEnv("raw: ${MI_TEST_UNSET_RAW}"))
}

func TestLoad_ProvidersCatalog(t *testing.T) {
	dir := t.TempDir()
	content := `
app:
  name: model-invoke-test
inner_api:
  enabled: true
  api_key: ${MI_TEST_INNER_KEY:fallback}
providers:
  openai:
    driver: openai
    models: [gpt-4o-mini, gpt-4]
    system:
      enabled: true
      credentials:
        openai_api_key: sk-system
      quota_configurations:
        - quota_type: trial
          quota_unit: credits
          quota_limit: 200
          restrict_models: ["gpt-4*"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	t.Setenv("APP_CONFIG_DIR", dir)
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "model-invoke-test", cfg.App.Name)
	assert.True(t, cfg.InnerAPI.Enabled)
	assert.Equal(t, "fallback", cfg.InnerAPI.APIKey)

	p, ok := cfg.Providers["openai"]
	require.True(t, ok)
	assert.Equal(t, "openai", p.Driver)
	assert.True(t, p.HasModel("gpt-4"))
	assert.False(t, p.HasModel("gpt-3.5-turbo"))
	require.Len(t, p.System.QuotaConfigurations, 1)
	assert.Equal(t, int64(200), p.System.QuotaConfigurations[0].QuotaLimit)
	assert.Equal(t, []string{"gpt-4*"}, p.System.QuotaConfigurations[0].RestrictModels)

	tpl, ok := p.QuotaTemplate("trial")
	require.True(t, ok)
	assert.Equal(t, "credits", tpl.QuotaUnit)
	_, ok = p.QuotaTemplate("paid")
	assert.False(t, ok)

	// 默认值兜底
	assert.Equal(t, 60*time.Second, cfg.Resolver.TenantCacheTTL)
	assert.Equal(t, "stream:model:usage", cfg.Messaging.RedisStream.UsageStream)
	assert.True(t, cfg.EventBus.Async)
	assert.Equal(t, ConversationNamingConfig{Provider: "openai", Model: "gpt-4o-mini"}, cfg.InnerAPI.Naming)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("APP_CONFIG_DIR", t.TempDir())

	_, err := Load()
	assert.Error(t, err)
}
