package runner

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/internal/domain/llm/llmtest"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/pkg/errors"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.InvocationEvent
	topics []event.Topic
}

func (p *recordingPublisher) Publish(ctx context.Context, topic event.Topic, evt event.InvocationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
}

func newBundle(model llm.LargeLanguageModel) *provider.ModelBundle {
	return &provider.ModelBundle{
		Configuration: &provider.ProviderConfiguration{
			TenantID:          "tenant-1",
			Provider:          "openai",
			Models:            []string{"gpt-4o-mini"},
			UsingProviderType: provider.ProviderTypeSystem,
			System: provider.SystemConfiguration{
				Enabled:          true,
				CurrentQuotaType: "trial",
				QuotaConfigurations: []provider.QuotaConfiguration{
					{QuotaType: "trial", QuotaUnit: provider.QuotaUnitTokens, QuotaLimit: 1000, IsValid: true},
				},
				Credentials: llm.Credentials{"api_key": "sk-test"},
			},
		},
		Model: model,
	}
}

func userRequest(stream bool) RunRequest {
	return RunRequest{
		Model:          "gpt-4o-mini",
		PromptMessages: []llm.PromptMessage{&llm.UserPromptMessage{Content: "hi"}},
		Stream:         stream,
		User:           "u-1",
	}
}

func TestRun_Blocking(t *testing.T) {
	model := &llmtest.Model{Result: &llm.LLMResult{
		Model:   "gpt-4o-mini",
		Message: &llm.AssistantPromptMessage{Content: "hello"},
		Usage:   &llm.LLMUsage{PromptTokens: 7, CompletionTokens: 3},
	}}
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(model), userRequest(false))
	require.NoError(t, err)
	require.False(t, resp.IsStream())
	assert.Equal(t, "hello", resp.Result.Message.Content)

	require.Len(t, pub.events, 1)
	assert.Equal(t, event.TopicModelInvoked, pub.topics[0])
	evt := pub.events[0]
	assert.Equal(t, "tenant-1", evt.TenantID)
	assert.Equal(t, "openai", evt.Provider)
	assert.Equal(t, llm.ModelTypeLLM, evt.ModelType)
	assert.Equal(t, "gpt-4o-mini", evt.Model)
	assert.Equal(t, int64(7), evt.PromptTokens)
	assert.Equal(t, int64(3), evt.CompletionTokens)
	assert.Equal(t, "u-1", evt.User)
	assert.NotEmpty(t, evt.ID)

	require.Len(t, model.Requests, 1)
	assert.Equal(t, "sk-test", model.Requests[0].Credentials["api_key"])
}

func TestRun_BlockingWithoutUsage(t *testing.T) {
	model := &llmtest.Model{Result: &llm.LLMResult{Message: &llm.AssistantPromptMessage{}}}
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(model), userRequest(false))
	require.NoError(t, err)
	require.NotNil(t, resp.Result.Usage)

	require.Len(t, pub.events, 1)
	assert.Zero(t, pub.events[0].PromptTokens)
	assert.Zero(t, pub.events[0].CompletionTokens)
}

func TestRun_NoCredentials(t *testing.T) {
	model := &llmtest.Model{}
	bundle := newBundle(model)
	bundle.Configuration.System.Credentials = nil
	pub := &recordingPublisher{}

	_, err := NewModelRunner(pub).Run(context.Background(), bundle, userRequest(false))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCredentialsNotInitialized))
	assert.Equal(t, "No credentials found for model", errors.AsAppError(err).Detail)
	assert.Zero(t, model.Calls())
	assert.Empty(t, pub.events)
}

func TestRun_InvokeError(t *testing.T) {
	model := &llmtest.Model{InvokeErr: llm.NewInvokeError("openai", "gpt-4o-mini", "rate limited", io.ErrUnexpectedEOF)}
	pub := &recordingPublisher{}

	_, err := NewModelRunner(pub).Run(context.Background(), newBundle(model), userRequest(false))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvokeFailed))
	assert.Equal(t, "rate limited", errors.AsAppError(err).Detail)
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.Empty(t, pub.events)
}

func TestRun_StreamAccumulatesUsage(t *testing.T) {
	stream := llmtest.NewSliceStream(
		llmtest.Chunk(0, "a", 10, 0),
		llmtest.Chunk(1, "b", 0, 5),
		llmtest.Chunk(2, "c", 0, 5),
	)
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)
	require.True(t, resp.IsStream())

	var texts []string
	for chunk, err := range resp.Stream.All() {
		require.NoError(t, err)
		texts = append(texts, chunk.Delta.Message.Content)
		// 流结束之前不发布
		assert.Empty(t, pub.events)
	}

	assert.Equal(t, []string{"a", "b", "c"}, texts)
	assert.True(t, stream.Closed)
	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(10), pub.events[0].PromptTokens)
	assert.Equal(t, int64(10), pub.events[0].CompletionTokens)

	// 重复关闭不重复发布
	require.NoError(t, resp.Stream.Close())
	assert.Len(t, pub.events, 1)
}

func TestRun_StreamEqualsBlockingTotals(t *testing.T) {
	pub := &recordingPublisher{}
	runner := NewModelRunner(pub)

	stream := llmtest.NewSliceStream(
		llmtest.Chunk(0, "x", 4, 1),
		llmtest.Chunk(1, "y", 0, 2),
		llmtest.Chunk(2, "z", 0, 0),
		llmtest.Chunk(3, "", 0, 3),
	)
	resp, err := runner.Run(context.Background(), newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)
	for _, err := range resp.Stream.All() {
		require.NoError(t, err)
	}

	blocking := &llmtest.Model{Result: &llm.LLMResult{Usage: &llm.LLMUsage{PromptTokens: 4, CompletionTokens: 6}}}
	_, err = runner.Run(context.Background(), newBundle(blocking), userRequest(false))
	require.NoError(t, err)

	require.Len(t, pub.events, 2)
	assert.Equal(t, pub.events[1].PromptTokens, pub.events[0].PromptTokens)
	assert.Equal(t, pub.events[1].CompletionTokens, pub.events[0].CompletionTokens)
}

func TestRun_StreamAbandonedEarly(t *testing.T) {
	stream := llmtest.NewSliceStream(
		llmtest.Chunk(0, "a", 10, 0),
		llmtest.Chunk(1, "b", 0, 5),
		llmtest.Chunk(2, "c", 0, 5),
	)
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)

	for chunk := range resp.Stream.All() {
		assert.Equal(t, "a", chunk.Delta.Message.Content)
		break
	}

	assert.True(t, stream.Closed)
	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(10), pub.events[0].PromptTokens)
	assert.Equal(t, int64(0), pub.events[0].CompletionTokens)
	assert.Equal(t, 1, resp.Stream.Delivered())
}

func TestRun_StreamErrorMidway(t *testing.T) {
	stream := llmtest.NewSliceStream(
		llmtest.Chunk(0, "a", 10, 0),
		llmtest.Chunk(1, "b", 0, 5),
	)
	stream.FailAt = 1
	stream.Err = stderrors.New("connection reset")
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)

	chunk, err := resp.Stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", chunk.Delta.Message.Content)

	_, err = resp.Stream.Recv()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvokeFailed))

	// 出错后继续读取返回同一个错误
	_, again := resp.Stream.Recv()
	assert.Equal(t, err, again)

	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(10), pub.events[0].PromptTokens)
}

func TestRun_StreamFailsBeforeFirstChunk(t *testing.T) {
	stream := llmtest.NewSliceStream(llmtest.Chunk(0, "a", 1, 1))
	stream.FailAt = 0
	stream.Err = stderrors.New("upstream 500")
	pub := &recordingPublisher{}

	resp, err := NewModelRunner(pub).Run(context.Background(), newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)

	var gotErr error
	for _, err := range resp.Stream.All() {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Empty(t, pub.events)
}

func TestRun_StreamOpenError(t *testing.T) {
	pub := &recordingPublisher{}
	model := &llmtest.Model{StreamErr: stderrors.New("dial tcp: refused")}

	_, err := NewModelRunner(pub).Run(context.Background(), newBundle(model), userRequest(true))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvokeFailed))
	assert.Equal(t, "dial tcp: refused", errors.AsAppError(err).Detail)
	assert.Empty(t, pub.events)
}

func TestRun_StreamPublishesAfterCallerCancel(t *testing.T) {
	stream := llmtest.NewSliceStream(llmtest.Chunk(0, "a", 3, 2), llmtest.Chunk(1, "b", 0, 1))
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	resp, err := NewModelRunner(pub).Run(ctx, newBundle(&llmtest.Model{Stream: stream}), userRequest(true))
	require.NoError(t, err)

	_, err = resp.Stream.Recv()
	require.NoError(t, err)
	cancel()
	require.NoError(t, resp.Stream.Close())

	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(3), pub.events[0].PromptTokens)
	assert.Equal(t, int64(2), pub.events[0].CompletionTokens)
	assert.Equal(t, int64(3), resp.Stream.Usage().PromptTokens)
}
