package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/internal/domain/service"
)

type memUsageRepo struct {
	mu     sync.Mutex
	events map[string]*entity.LLMUsageEvent
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{events: make(map[string]*entity.LLMUsageEvent)}
}

func (r *memUsageRepo) Create(ctx context.Context, e *entity.LLMUsageEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.EventID]; ok {
		return false, nil
	}
	r.events[e.EventID] = e
	return true, nil
}

func (r *memUsageRepo) GetTokenUsage(ctx context.Context, tenantID string, start, end time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.events {
		if e.TenantID == tenantID && !e.OccurredAt.Before(start) && e.OccurredAt.Before(end) {
			total += e.TotalTokens()
		}
	}
	return total, nil
}

func (r *memUsageRepo) Summarize(ctx context.Context, tenantID string, start, end time.Time) ([]repository.UsageSummary, error) {
	return nil, nil
}

func TestLLMUsageRecorder_Idempotent(t *testing.T) {
	repo := newMemUsageRepo()
	rec := NewLLMUsageRecorder(repo)
	in := service.LLMUsageInput{
		EventID:          "evt-1",
		TenantID:         "tenant-1",
		Provider:         " openai ",
		Model:            "gpt-4o-mini",
		PromptTokens:     10,
		CompletionTokens: 5,
		OccurredAt:       time.Now(),
	}

	require.NoError(t, rec.Record(context.Background(), in))
	require.NoError(t, rec.Record(context.Background(), in))

	require.Len(t, repo.events, 1)
	stored := repo.events["evt-1"]
	assert.Equal(t, "openai", stored.Provider)
	assert.Equal(t, "llm", stored.ModelType)
	assert.Equal(t, int64(15), stored.TotalTokens())
}

func TestLLMUsageRecorder_Validation(t *testing.T) {
	rec := NewLLMUsageRecorder(newMemUsageRepo())

	assert.NoError(t, rec.Record(context.Background(), service.LLMUsageInput{EventID: "e"}))
	assert.Error(t, rec.Record(context.Background(), service.LLMUsageInput{TenantID: "t"}))
	assert.Error(t, rec.Record(context.Background(), service.LLMUsageInput{TenantID: "t", EventID: "e", PromptTokens: -1}))
}

func TestQuotaInspector_Inspect(t *testing.T) {
	cfg := systemConfiguration(provider.QuotaUnitTokens, 100, 40)
	cfg.System.QuotaConfigurations = append(cfg.System.QuotaConfigurations,
		provider.QuotaConfiguration{QuotaType: "paid", QuotaUnit: provider.QuotaUnitTokens, QuotaLimit: provider.UnlimitedQuota, QuotaUsed: 999, IsValid: true},
		provider.QuotaConfiguration{QuotaType: "bonus", QuotaUnit: provider.QuotaUnitCredits, QuotaLimit: 10, QuotaUsed: 12, IsValid: true},
	)
	repo := newMemUsageRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, _ = repo.Create(context.Background(), &entity.LLMUsageEvent{EventID: "a", TenantID: "tenant-1", TokensPrompt: 3, TokensCompletion: 4, OccurredAt: now.Add(-time.Hour)})
	_, _ = repo.Create(context.Background(), &entity.LLMUsageEvent{EventID: "b", TenantID: "tenant-1", TokensPrompt: 100, OccurredAt: now.Add(-24 * time.Hour)})

	inspector := NewQuotaInspector(&stubResolver{cfg: cfg}, repo)
	inspector.now = func() time.Time { return now }

	report, err := inspector.Inspect(context.Background(), "tenant-1", "openai")
	require.NoError(t, err)

	assert.Equal(t, "trial", report.CurrentQuotaType)
	require.Len(t, report.Quotas, 3)
	assert.Equal(t, int64(60), report.Quotas[0].Remaining)
	assert.True(t, report.Quotas[0].Current)
	assert.Equal(t, int64(-1), report.Quotas[1].Remaining)
	assert.Equal(t, int64(0), report.Quotas[2].Remaining)
	assert.Equal(t, int64(7), report.TodayTokens)
}
