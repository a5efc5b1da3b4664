package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"model-invoke-api/internal/domain/provider"
)

func TestUsedQuota(t *testing.T) {
	tests := []struct {
		name       string
		unit       provider.QuotaUnit
		model      string
		prompt     int64
		completion int64
		want       int64
	}{
		{name: "tokens", unit: provider.QuotaUnitTokens, model: "gpt-4", prompt: 50, completion: 30, want: 80},
		{name: "tokens zero", unit: provider.QuotaUnitTokens, model: "claude-x", want: 0},
		{name: "credits gpt-4 family", unit: provider.QuotaUnitCredits, model: "gpt-4-foo", prompt: 1000, want: 20},
		{name: "credits substring match", unit: provider.QuotaUnitCredits, model: "my-gpt-4o-mini", want: 20},
		{name: "credits other model", unit: provider.QuotaUnitCredits, model: "claude-x", prompt: 1000, want: 1},
		{name: "credits gpt-3.5", unit: provider.QuotaUnitCredits, model: "gpt-3.5-turbo", want: 1},
		{name: "times", unit: provider.QuotaUnitTimes, model: "gpt-4", prompt: 10, completion: 10, want: 1},
		{name: "unknown unit", unit: "requests", model: "gpt-4", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsedQuota(tt.unit, tt.model, tt.prompt, tt.completion))
		})
	}
}
