package llm

import (
	"context"
	"encoding/json"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// anthropicDefaultMaxTokens Messages API 要求必须给出 max_tokens
const anthropicDefaultMaxTokens = 4096

// AnthropicModel Claude Messages API 驱动
type AnthropicModel struct {
	provider string
	config   config.ProviderConfig
	clients  *clientCache[anthropic.Client]
}

// NewAnthropicModel 创建 Anthropic 驱动
func NewAnthropicModel(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error) {
	return &AnthropicModel{
		provider: provider,
		config:   cfg,
		clients:  newClientCache[anthropic.Client](),
	}, nil
}

func (m *AnthropicModel) client(creds domainllm.Credentials) (anthropic.Client, error) {
	return m.clients.get(credentialsFingerprint(creds), func() (anthropic.Client, error) {
		ep := resolveEndpoint(m.config, creds)
		opts := []option.RequestOption{option.WithAPIKey(ep.apiKey)}
		if ep.baseURL != "" {
			opts = append(opts, option.WithBaseURL(ep.baseURL))
		}
		if m.config.Timeout > 0 {
			opts = append(opts, option.WithRequestTimeout(m.config.Timeout))
		}
		return anthropic.NewClient(opts...), nil
	})
}

func (m *AnthropicModel) Invoke(ctx context.Context, req *domainllm.InvokeRequest) (*domainllm.LLMResult, error) {
	client, err := m.client(req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	params, err := anthropicParams(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(m.provider, req.Model, err)
	}

	msg := &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, domainllm.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: domainllm.ToolCallFunction{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	usage := domainllm.EmptyUsage()
	usage.PromptTokens = resp.Usage.InputTokens
	usage.CompletionTokens = resp.Usage.OutputTokens
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &domainllm.LLMResult{
		Model:          req.Model,
		PromptMessages: req.PromptMessages,
		Message:        msg,
		Usage:          usage,
	}, nil
}

func (m *AnthropicModel) InvokeStream(ctx context.Context, req *domainllm.InvokeRequest) (domainllm.ChunkStream, error) {
	client, err := m.client(req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	params, err := anthropicParams(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}

	stream := client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, classifyError(m.provider, req.Model, err)
	}
	return &anthropicStream{
		stream:   stream,
		provider: m.provider,
		model:    req.Model,
		prompts:  req.PromptMessages,
	}, nil
}

type anthropicStream struct {
	stream   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	provider string
	model    string
	prompts  []domainllm.PromptMessage
	index    int

	// message_delta 中的 output_tokens 是累计值，记录已上报部分以换算增量
	outputSeen int64
}

// Recv 跳过 ping 等不携带内容与用量的事件
func (s *anthropicStream) Recv() (*domainllm.LLMResultChunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		delta := domainllm.LLMResultChunkDelta{
			Message: &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}},
		}

		switch event.Type {
		case "message_start":
			usage := domainllm.EmptyUsage()
			usage.PromptTokens = event.Message.Usage.InputTokens
			usage.CompletionTokens = event.Message.Usage.OutputTokens
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			delta.Usage = usage
			s.outputSeen = event.Message.Usage.OutputTokens
		case "content_block_start":
			if event.ContentBlock.Type != "tool_use" {
				continue
			}
			delta.Message.ToolCalls = append(delta.Message.ToolCalls, domainllm.ToolCall{
				ID:       event.ContentBlock.ID,
				Type:     "function",
				Function: domainllm.ToolCallFunction{Name: event.ContentBlock.Name},
			})
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				delta.Message.Content = event.Delta.Text
			case "input_json_delta":
				delta.Message.ToolCalls = append(delta.Message.ToolCalls, domainllm.ToolCall{
					Type:     "function",
					Function: domainllm.ToolCallFunction{Arguments: event.Delta.PartialJSON},
				})
			default:
				continue
			}
		case "message_delta":
			usage := domainllm.EmptyUsage()
			usage.CompletionTokens = max(event.Usage.OutputTokens-s.outputSeen, 0)
			usage.TotalTokens = usage.CompletionTokens
			delta.Usage = usage
			s.outputSeen = max(event.Usage.OutputTokens, s.outputSeen)
			delta.FinishReason = string(event.Delta.StopReason)
		default:
			continue
		}

		delta.Index = s.index
		s.index++
		return &domainllm.LLMResultChunk{
			Model:          s.model,
			PromptMessages: s.prompts,
			Delta:          delta,
		}, nil
	}
	if err := s.stream.Err(); err != nil {
		return nil, classifyError(s.provider, s.model, err)
	}
	return nil, io.EOF
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

func anthropicParams(req *domainllm.InvokeRequest) (anthropic.MessageNewParams, error) {
	system, messages := toAnthropicMessages(req.PromptMessages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  messages,
		System:    system,
	}
	if v, ok := domainllm.IntParam(req.Parameters, domainllm.ParamMaxTokens); ok && v > 0 {
		params.MaxTokens = int64(v)
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTemperature); ok {
		params.Temperature = anthropic.Float(v)
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTopP); ok {
		params.TopP = anthropic.Float(v)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if req.User != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.User)}
	}

	for _, t := range req.Tools {
		schema, err := t.ParametersMap()
		if err != nil {
			return params, err
		}
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					input.Required = append(input.Required, name)
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: input,
			},
		})
	}
	return params, nil
}

// toAnthropicMessages system 消息单独提取；工具结果按 user 角色发送，
// 相邻同角色消息合并为一条以满足交替要求
func toAnthropicMessages(msgs []domainllm.PromptMessage) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch v := msg.(type) {
		case *domainllm.SystemPromptMessage:
			system = append(system, anthropic.TextBlockParam{Text: v.Content})
		case *domainllm.UserPromptMessage:
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(v.Content))
		case *domainllm.ToolPromptMessage:
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(v.ToolCallID, v.Content, false))
		case *domainllm.AssistantPromptMessage:
			var blocks []anthropic.ContentBlockParamUnion
			if v.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(v.Content))
			}
			for _, tc := range v.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc.Function.Arguments), tc.Function.Name))
			}
			if len(blocks) > 0 {
				appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)
			}
		}
	}
	return system, out
}

// toolInput 参数不是合法 JSON 时退化为空对象
func toolInput(arguments string) any {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return map[string]any{}
}
