package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
)

// dryRunClient 只生成 SQL 不连接数据库，捕获最后一条语句
func dryRunClient(t *testing.T) (*Client, *[]string) {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var statements []string
	capture := func(db *gorm.DB) {
		statements = append(statements, db.Statement.SQL.String())
	}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture_create", capture))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:capture_update", capture))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture_query", capture))
	return NewClientFromDB(db), &statements
}

func TestProviderRepository_DeductQuotaIsConditional(t *testing.T) {
	client, stmts := dryRunClient(t)
	repo := NewProviderRepository(client)

	_, err := repo.DeductQuota(context.Background(), repository.QuotaDeduction{
		TenantID: "t1", ProviderName: "openai", QuotaType: "trial", Amount: 20,
	})
	require.NoError(t, err)
	require.NotEmpty(t, *stmts)

	sql := (*stmts)[len(*stmts)-1]
	assert.Contains(t, sql, "UPDATE \"providers\" SET")
	assert.Contains(t, sql, "quota_used + $")
	assert.Contains(t, sql, "quota_limit > quota_used AND quota_limit >= quota_used + $")
	assert.Contains(t, sql, "provider_type = $")
}

func TestProviderRepository_UpsertKeepsUsage(t *testing.T) {
	client, stmts := dryRunClient(t)
	repo := NewProviderRepository(client)

	err := repo.Upsert(context.Background(), &entity.Provider{
		TenantID: "t1", ProviderName: "openai", ProviderType: "system", QuotaType: "paid", QuotaLimit: 100, IsValid: true,
	})
	require.NoError(t, err)

	sql := (*stmts)[len(*stmts)-1]
	assert.Contains(t, sql, "ON CONFLICT (\"tenant_id\",\"provider_name\",\"provider_type\",\"quota_type\") DO UPDATE SET")
	assert.Contains(t, sql, "\"quota_limit\"=\"excluded\".\"quota_limit\"")
	assert.NotContains(t, sql, "\"quota_used\"=\"excluded\"")
}

func TestLLMUsageEventRepository_CreateIsIdempotent(t *testing.T) {
	client, stmts := dryRunClient(t)
	repo := NewLLMUsageEventRepository(client)

	_, err := repo.Create(context.Background(), &entity.LLMUsageEvent{
		EventID: "evt-1", TenantID: "t1", Provider: "openai", Model: "gpt-4o", OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	sql := (*stmts)[len(*stmts)-1]
	assert.Contains(t, sql, "INSERT INTO \"llm_usage_events\"")
	assert.Contains(t, sql, "ON CONFLICT (\"event_id\") DO NOTHING")
}

func TestTxManager_NestedReusesTransaction(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, getTxFromContext(ctx))

	client, _ := dryRunClient(t)
	tx := client.DB().Session(&gorm.Session{})
	inTx := context.WithValue(ctx, repository.TxKey{}, tx)

	m := NewTxManager(client)
	var called bool
	err := m.WithTransaction(inTx, func(c context.Context) error {
		called = true
		assert.Same(t, tx, getTxFromContext(c))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestClient_Stats(t *testing.T) {
	client, _ := dryRunClient(t)

	stats, err := client.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.InUse)
}
