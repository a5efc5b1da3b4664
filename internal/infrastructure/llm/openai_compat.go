package llm

import (
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// OpenAICompatModel 兼容 OpenAI Chat Completions 协议的驱动（自建网关、vLLM 等）
type OpenAICompatModel struct {
	provider string
	config   config.ProviderConfig
	clients  *clientCache[openai.Client]
}

// NewOpenAICompatModel 创建 OpenAI 兼容驱动
func NewOpenAICompatModel(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error) {
	return &OpenAICompatModel{
		provider: provider,
		config:   cfg,
		clients:  newClientCache[openai.Client](),
	}, nil
}

func (m *OpenAICompatModel) client(creds domainllm.Credentials) (openai.Client, error) {
	return m.clients.get(credentialsFingerprint(creds), func() (openai.Client, error) {
		ep := resolveEndpoint(m.config, creds)
		opts := []option.RequestOption{option.WithAPIKey(ep.apiKey)}
		if ep.baseURL != "" {
			opts = append(opts, option.WithBaseURL(ep.baseURL))
		}
		if m.config.Timeout > 0 {
			opts = append(opts, option.WithRequestTimeout(m.config.Timeout))
		}
		return openai.NewClient(opts...), nil
	})
}

func (m *OpenAICompatModel) Invoke(ctx context.Context, req *domainllm.InvokeRequest) (*domainllm.LLMResult, error) {
	client, err := m.client(req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	params, err := openAIParams(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(m.provider, req.Model, err)
	}

	msg := &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0].Message
		msg.Content = choice.Content
		for _, tc := range choice.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, domainllm.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: domainllm.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}

	usage := domainllm.EmptyUsage()
	usage.PromptTokens = resp.Usage.PromptTokens
	usage.CompletionTokens = resp.Usage.CompletionTokens
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &domainllm.LLMResult{
		Model:             req.Model,
		PromptMessages:    req.PromptMessages,
		Message:           msg,
		Usage:             usage,
		SystemFingerprint: resp.SystemFingerprint,
	}, nil
}

func (m *OpenAICompatModel) InvokeStream(ctx context.Context, req *domainllm.InvokeRequest) (domainllm.ChunkStream, error) {
	client, err := m.client(req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	params, err := openAIParams(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, classifyError(m.provider, req.Model, err)
	}
	return &openAIStream{
		stream:   stream,
		provider: m.provider,
		model:    req.Model,
		prompts:  req.PromptMessages,
	}, nil
}

type openAIStream struct {
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	provider string
	model    string
	prompts  []domainllm.PromptMessage
	index    int
}

func (s *openAIStream) Recv() (*domainllm.LLMResultChunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return nil, classifyError(s.provider, s.model, err)
		}
		return nil, io.EOF
	}

	cur := s.stream.Current()
	delta := domainllm.LLMResultChunkDelta{
		Index:   s.index,
		Message: &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}},
	}
	if len(cur.Choices) > 0 {
		choice := cur.Choices[0]
		delta.Message.Content = choice.Delta.Content
		delta.FinishReason = choice.FinishReason
		for _, tc := range choice.Delta.ToolCalls {
			delta.Message.ToolCalls = append(delta.Message.ToolCalls, domainllm.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: domainllm.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	// include_usage 打开时用量只出现在最后一个 chunk
	if cur.Usage.PromptTokens > 0 || cur.Usage.CompletionTokens > 0 {
		usage := domainllm.EmptyUsage()
		usage.PromptTokens = cur.Usage.PromptTokens
		usage.CompletionTokens = cur.Usage.CompletionTokens
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		delta.Usage = usage
	}

	s.index++
	return &domainllm.LLMResultChunk{
		Model:             s.model,
		PromptMessages:    s.prompts,
		SystemFingerprint: cur.SystemFingerprint,
		Delta:             delta,
	}, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func openAIParams(req *domainllm.InvokeRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.PromptMessages),
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTemperature); ok {
		params.Temperature = openai.Float(v)
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTopP); ok {
		params.TopP = openai.Float(v)
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamPresencePenalty); ok {
		params.PresencePenalty = openai.Float(v)
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamFrequencyPenalty); ok {
		params.FrequencyPenalty = openai.Float(v)
	}
	if v, ok := domainllm.IntParam(req.Parameters, domainllm.ParamMaxTokens); ok && v > 0 {
		params.MaxTokens = openai.Int(int64(v))
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	for _, t := range req.Tools {
		schema, err := t.ParametersMap()
		if err != nil {
			return params, err
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return params, nil
}

func toOpenAIMessages(msgs []domainllm.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch v := msg.(type) {
		case *domainllm.SystemPromptMessage:
			out = append(out, openai.SystemMessage(v.Content))
		case *domainllm.UserPromptMessage:
			out = append(out, openai.UserMessage(v.Content))
		case *domainllm.ToolPromptMessage:
			out = append(out, openai.ToolMessage(v.Content, v.ToolCallID))
		case *domainllm.AssistantPromptMessage:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if v.Content != "" {
				asst.Content.OfString = openai.String(v.Content)
			}
			for _, tc := range v.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}
