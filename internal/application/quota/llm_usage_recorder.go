package quota

import (
	"context"
	"fmt"
	"strings"

	"model-invoke-api/internal/domain/entity"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/pkg/logger"
)

// LLMUsageRecorder 将用量事件写入流水表，按 EventID 去重
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}

	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		return nil
	}
	if strings.TrimSpace(in.EventID) == "" {
		return fmt.Errorf("usage event id is required")
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	modelType := strings.TrimSpace(in.ModelType)
	if modelType == "" {
		modelType = "llm"
	}

	evt := &entity.LLMUsageEvent{
		EventID:          strings.TrimSpace(in.EventID),
		TenantID:         tenantID,
		Provider:         strings.TrimSpace(in.Provider),
		ProviderType:     strings.TrimSpace(in.ProviderType),
		ModelType:        modelType,
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
		User:             in.User,
		OccurredAt:       in.OccurredAt,
	}
	created, err := r.usageRepo.Create(ctx, evt)
	if err != nil {
		return err
	}
	if !created {
		logger.Debug(ctx, "usage event already recorded", "event_id", evt.EventID)
	}
	return nil
}

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)
