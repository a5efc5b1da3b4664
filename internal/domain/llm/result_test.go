package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMUsage_Merge(t *testing.T) {
	u := EmptyUsage()

	u.Merge(&LLMUsage{PromptTokens: 10, PromptPrice: 0.1, Currency: "USD"})
	u.Merge(nil)
	u.Merge(&LLMUsage{CompletionTokens: 5, PromptPrice: 0.2, CompletionPrice: 0.05, Currency: "CNY"})

	assert.Equal(t, int64(10), u.PromptTokens)
	assert.Equal(t, int64(5), u.CompletionTokens)
	assert.Equal(t, int64(15), u.TotalTokens)
	// 价格字段取最后一个增量
	assert.InDelta(t, 0.2, u.PromptPrice, 1e-9)
	assert.InDelta(t, 0.25, u.TotalPrice, 1e-9)
	assert.Equal(t, "CNY", u.Currency)
}

func TestPromptMessage_MarshalJSON(t *testing.T) {
	msgs := []PromptMessage{
		&SystemPromptMessage{Content: "be brief"},
		&UserPromptMessage{Content: "hi"},
		&AssistantPromptMessage{Content: "", ToolCalls: []ToolCall{{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "lookup", Arguments: "{}"}}}},
		&ToolPromptMessage{Content: "42", ToolCallID: "c1"},
	}

	data, err := json.Marshal(msgs)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 4)
	assert.Equal(t, "system", decoded[0]["role"])
	assert.Equal(t, "user", decoded[1]["role"])
	assert.Equal(t, "assistant", decoded[2]["role"])
	assert.Len(t, decoded[2]["tool_calls"], 1)
	assert.Equal(t, "tool", decoded[3]["role"])
	assert.Equal(t, "c1", decoded[3]["tool_call_id"])
}

func TestParseRole(t *testing.T) {
	for _, v := range []string{"user", "assistant", "system", "tool"} {
		r, ok := ParseRole(v)
		assert.True(t, ok, v)
		assert.Equal(t, PromptMessageRole(v), r)
	}
	_, ok := ParseRole("observer")
	assert.False(t, ok)
}

func TestParams(t *testing.T) {
	params := map[string]any{"temperature": 0.7, "max_tokens": float64(256), "top_p": json.Number("0.9"), "bad": "x"}

	f, ok := FloatParam(params, ParamTemperature)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, f, 1e-9)

	n, ok := IntParam(params, ParamMaxTokens)
	assert.True(t, ok)
	assert.Equal(t, 256, n)

	f, ok = FloatParam(params, ParamTopP)
	assert.True(t, ok)
	assert.InDelta(t, 0.9, f, 1e-9)

	_, ok = FloatParam(params, "bad")
	assert.False(t, ok)
	_, ok = FloatParam(params, "missing")
	assert.False(t, ok)
}
