package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

func conversation() []domainllm.PromptMessage {
	return []domainllm.PromptMessage{
		&domainllm.SystemPromptMessage{Content: "be brief"},
		&domainllm.UserPromptMessage{Content: "weather?"},
		&domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: domainllm.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"Paris"}`},
		}}},
		&domainllm.ToolPromptMessage{Content: "sunny", ToolCallID: "call_1"},
		&domainllm.UserPromptMessage{Content: "thanks"},
	}
}

func TestToAnthropicMessages(t *testing.T) {
	system, msgs := toAnthropicMessages(conversation())

	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].Text)

	// tool 结果与随后的 user 消息合并为同一条 user 消息
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
}

func TestAnthropicParams(t *testing.T) {
	params, err := anthropicParams(&domainllm.InvokeRequest{
		Model:          "claude-3-5-haiku-latest",
		PromptMessages: conversation(),
		Parameters:     map[string]any{"temperature": 0.2, "max_tokens": float64(256)},
		Stop:           []string{"END"},
		Tools: []domainllm.PromptMessageTool{{
			Name:        "get_weather",
			Description: "lookup",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(256), params.MaxTokens)
	assert.Equal(t, []string{"END"}, params.StopSequences)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, []string{"city"}, params.Tools[0].OfTool.InputSchema.Required)

	params, err = anthropicParams(&domainllm.InvokeRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, int64(anthropicDefaultMaxTokens), params.MaxTokens)
}

// anthropicServer 同时服务阻塞与流式请求，两条路径给出相同的最终用量
func anthropicServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if stream, _ := body["stream"].(bool); !stream {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
				"content":[{"type":"text","text":"Hello"}],"stop_reason":"end_turn","stop_sequence":null,
				"usage":{"input_tokens":10,"output_tokens":15}}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":15}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropic_StreamUsageMatchesBlocking(t *testing.T) {
	srv := anthropicServer(t)
	m, err := NewAnthropicModel("anthropic", config.ProviderConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	req := &domainllm.InvokeRequest{
		Model:          "claude-3-5-haiku-latest",
		Credentials:    domainllm.Credentials{CredentialAPIKey: "sk-ant"},
		PromptMessages: []domainllm.PromptMessage{&domainllm.UserPromptMessage{Content: "hi"}},
	}

	res, err := m.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Message.Content)

	s, err := m.InvokeStream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	var text, finish string
	usage := domainllm.EmptyUsage()
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text += c.Delta.Message.Content
		usage.Merge(c.Delta.Usage)
		if c.Delta.FinishReason != "" {
			finish = c.Delta.FinishReason
		}
	}

	assert.Equal(t, "Hello", text)
	assert.Equal(t, "end_turn", finish)
	assert.Equal(t, res.Usage.PromptTokens, usage.PromptTokens)
	assert.Equal(t, res.Usage.CompletionTokens, usage.CompletionTokens)
	assert.Equal(t, int64(25), usage.TotalTokens)
}

func TestGeminiRequest(t *testing.T) {
	contents, cfg, err := geminiRequest(&domainllm.InvokeRequest{
		Model:          "gemini-2.0-flash",
		PromptMessages: conversation(),
		Parameters:     map[string]any{"temperature": 0.5, "max_tokens": 100},
	})
	require.NoError(t, err)

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.5), *cfg.Temperature)
	assert.Equal(t, int32(100), cfg.MaxOutputTokens)

	require.Len(t, contents, 4)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "Paris", contents[1].Parts[0].FunctionCall.Args["city"])

	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "get_weather", resp.Name)
	assert.Equal(t, "sunny", resp.Response["content"])
}

func TestGeminiStream_UsageDeltas(t *testing.T) {
	responses := []*genai.GenerateContentResponse{
		{UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 2}},
		{UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5}},
		{},
	}
	i := 0
	s := &geminiStream{
		next: func() (*genai.GenerateContentResponse, error, bool) {
			if i >= len(responses) {
				return nil, nil, false
			}
			i++
			return responses[i-1], nil, true
		},
		stop:     func() {},
		provider: "google",
		model:    "gemini",
	}

	total := domainllm.EmptyUsage()
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		total.Merge(c.Delta.Usage)
	}
	assert.Equal(t, int64(10), total.PromptTokens)
	assert.Equal(t, int64(5), total.CompletionTokens)
}

func TestToEinoMessages(t *testing.T) {
	msgs := toEinoMessages(conversation())
	require.Len(t, msgs, 5)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
}

func TestToEinoTools_InvalidSchema(t *testing.T) {
	_, err := toEinoTools([]domainllm.PromptMessageTool{{Name: "x", Parameters: json.RawMessage(`[`)}})
	assert.Error(t, err)
}

func TestOpenAICompat_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "local-llama", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"local-llama",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}],
			"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`)
	}))
	defer srv.Close()

	m, err := NewOpenAICompatModel("local", config.ProviderConfig{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	res, err := m.Invoke(context.Background(), &domainllm.InvokeRequest{
		Model:          "local-llama",
		Credentials:    domainllm.Credentials{CredentialAPIKey: "sk-test"},
		PromptMessages: []domainllm.PromptMessage{&domainllm.UserPromptMessage{Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Message.Content)
	assert.Equal(t, int64(7), res.Usage.PromptTokens)
	assert.Equal(t, int64(3), res.Usage.CompletionTokens)
}

func TestOpenAICompat_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", text)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	m, err := NewOpenAICompatModel("local", config.ProviderConfig{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	s, err := m.InvokeStream(context.Background(), &domainllm.InvokeRequest{
		Model:          "m",
		Credentials:    domainllm.Credentials{CredentialAPIKey: "k"},
		PromptMessages: []domainllm.PromptMessage{&domainllm.UserPromptMessage{Content: "hi"}},
	})
	require.NoError(t, err)
	defer s.Close()

	var text string
	usage := domainllm.EmptyUsage()
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text += c.Delta.Message.Content
		usage.Merge(c.Delta.Usage)
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, int64(4), usage.PromptTokens)
	assert.Equal(t, int64(2), usage.CompletionTokens)
}

func TestClassifyError(t *testing.T) {
	err := classifyError("p", "m", context.DeadlineExceeded)
	var ie *domainllm.InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "request timed out", ie.Description)

	again := classifyError("p", "m", err)
	assert.Same(t, err, again)

	assert.Equal(t, "rate limited (status 429): slow down", describeStatus(429, "slow down"))
	assert.Equal(t, "provider unavailable (status 503)", describeStatus(503, ""))
}
