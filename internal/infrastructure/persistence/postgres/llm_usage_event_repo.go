// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
)

type LLMUsageEventRepository struct {
	client *Client
}

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

// Create event_id 冲突时忽略，返回是否实际写入
func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to create llm usage event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, tenantID string, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.GetTokenUsage")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.LLMUsageEvent{}).
		Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", tenantID, startInclusive, endExclusive).
		Select("COALESCE(SUM(tokens_prompt + tokens_completion),0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get llm usage: %w", err)
	}
	return total, nil
}

func (r *LLMUsageEventRepository) Summarize(ctx context.Context, tenantID string, startInclusive, endExclusive time.Time) ([]repository.UsageSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Summarize")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var rows []repository.UsageSummary
	if err := db.Model(&entity.LLMUsageEvent{}).
		Select("provider, model, COUNT(*) AS calls, COALESCE(SUM(tokens_prompt),0) AS prompt_tokens, COALESCE(SUM(tokens_completion),0) AS completion_tokens").
		Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", tenantID, startInclusive, endExclusive).
		Group("provider, model").
		Order("provider, model").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to summarize llm usage: %w", err)
	}
	return rows, nil
}
