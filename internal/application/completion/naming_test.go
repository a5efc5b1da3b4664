package completion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/pkg/errors"
)

func namingResult(content string) *llm.LLMResult {
	return &llm.LLMResult{
		Model:   "gpt-4o-mini",
		Message: &llm.AssistantPromptMessage{Content: content},
		Usage:   &llm.LLMUsage{PromptTokens: 40, CompletionTokens: 6},
	}
}

func TestGenerateName_MeteredThroughInvoke(t *testing.T) {
	h := newHarness(t, provider.ModelStatusActive)
	h.model.Result = namingResult("Sure!\n```json\n{\"Your Output\": \"  Weather in Paris  \"}\n```")

	namer := NewConversationNamer(h.svc, "openai", "gpt-4o-mini")
	name, err := namer.GenerateName(context.Background(), "tenant-1", "what's the weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, "Weather in Paris", name)

	require.Len(t, h.model.Requests, 1)
	req := h.model.Requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	n, ok := llm.IntParam(req.Parameters, llm.ParamMaxTokens)
	require.True(t, ok)
	assert.Equal(t, 100, n)
	require.Len(t, req.PromptMessages, 1)
	assert.Contains(t, req.PromptMessages[0].Text(), "what's the weather in Paris?")

	// 命名调用与普通调用一样扣减配额
	assert.Equal(t, int64(46), h.store.used)
	require.Len(t, h.events, 1)
}

func TestGenerateName_FallsBackToQuery(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "plain text", output: "Weather in Paris"},
		{name: "broken json", output: `{"Your Output": "Weather`},
		{name: "missing field", output: `{"title": "Weather"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, provider.ModelStatusActive)
			h.model.Result = namingResult(tt.output)

			name, err := NewConversationNamer(h.svc, "openai", "gpt-4o-mini").
				GenerateName(context.Background(), "tenant-1", "  hello there  ")
			require.NoError(t, err)
			assert.Equal(t, "hello there", name)
		})
	}
}

func TestGenerateName_TruncatesLongNames(t *testing.T) {
	h := newHarness(t, provider.ModelStatusActive)
	h.model.Result = namingResult(`{"Your Output": "` + strings.Repeat("标", 80) + `"}`)

	name, err := NewConversationNamer(h.svc, "openai", "gpt-4o-mini").
		GenerateName(context.Background(), "tenant-1", "q")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("标", 75)+"...", name)
}

func TestGenerateName_Errors(t *testing.T) {
	h := newHarness(t, provider.ModelStatusQuotaExceeded)
	namer := NewConversationNamer(h.svc, "openai", "gpt-4o-mini")

	_, err := namer.GenerateName(context.Background(), "tenant-1", "   ")
	assert.Equal(t, errors.CodeInvalidParam, errors.AsAppError(err).Code)

	_, err = namer.GenerateName(context.Background(), "tenant-1", "hello")
	assert.Equal(t, errors.CodeQuotaExceeded, errors.AsAppError(err).Code)
	assert.Zero(t, h.model.Calls())

	_, err = NewConversationNamer(h.svc, "", "").GenerateName(context.Background(), "tenant-1", "hello")
	assert.Equal(t, errors.CodeModelNotSupported, errors.AsAppError(err).Code)
}

func TestShortenQuery(t *testing.T) {
	assert.Equal(t, "short", shortenQuery("short"))

	long := strings.Repeat("a", 300) + strings.Repeat("b", 2000) + strings.Repeat("c", 300)
	got := shortenQuery(long)
	assert.Equal(t, strings.Repeat("a", 300)+"..."+strings.Repeat("c", 300), got)
}
