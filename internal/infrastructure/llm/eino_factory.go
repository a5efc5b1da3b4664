package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// EinoChatModel 基于 Eino OpenAI 适配器的驱动
type EinoChatModel struct {
	provider string
	config   config.ProviderConfig
	models   *clientCache[model.ToolCallingChatModel]
}

// NewEinoChatModel 创建 Eino 驱动
func NewEinoChatModel(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error) {
	return &EinoChatModel{
		provider: provider,
		config:   cfg,
		models:   newClientCache[model.ToolCallingChatModel](),
	}, nil
}

// chatModel 按凭证与模型名惰性创建 ChatModel
func (m *EinoChatModel) chatModel(ctx context.Context, req *domainllm.InvokeRequest) (model.ToolCallingChatModel, error) {
	ep := resolveEndpoint(m.config, req.Credentials)
	if ep.apiKey == "" {
		return nil, fmt.Errorf("%s is required", CredentialAPIKey)
	}

	base, err := m.models.get(credentialsFingerprint(req.Credentials, req.Model), func() (model.ToolCallingChatModel, error) {
		// 使用 Eino 的 OpenAI 适配器
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  ep.apiKey,
			BaseURL: ep.baseURL,
			Model:   req.Model,
			Timeout: m.config.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create eino chat model for %s: %w", m.provider, err)
		}
		return chatModel, nil
	})
	if err != nil {
		return nil, err
	}

	if len(req.Tools) == 0 {
		return base, nil
	}
	infos, err := toEinoTools(req.Tools)
	if err != nil {
		return nil, err
	}
	return base.WithTools(infos)
}

func (m *EinoChatModel) Invoke(ctx context.Context, req *domainllm.InvokeRequest) (*domainllm.LLMResult, error) {
	cm, err := m.chatModel(ctx, req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}

	out, err := cm.Generate(ctx, toEinoMessages(req.PromptMessages), einoOptions(req)...)
	if err != nil {
		return nil, classifyError(m.provider, req.Model, err)
	}

	result := &domainllm.LLMResult{
		Model:          req.Model,
		PromptMessages: req.PromptMessages,
		Message:        fromEinoMessage(out),
		Usage:          einoUsage(out),
	}
	if result.Usage == nil {
		result.Usage = domainllm.EmptyUsage()
	}
	return result, nil
}

func (m *EinoChatModel) InvokeStream(ctx context.Context, req *domainllm.InvokeRequest) (domainllm.ChunkStream, error) {
	cm, err := m.chatModel(ctx, req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}

	reader, err := cm.Stream(ctx, toEinoMessages(req.PromptMessages), einoOptions(req)...)
	if err != nil {
		return nil, classifyError(m.provider, req.Model, err)
	}
	return &einoStream{
		reader:   reader,
		provider: m.provider,
		model:    req.Model,
		prompts:  req.PromptMessages,
	}, nil
}

type einoStream struct {
	reader   *schema.StreamReader[*schema.Message]
	provider string
	model    string
	prompts  []domainllm.PromptMessage
	index    int
}

func (s *einoStream) Recv() (*domainllm.LLMResultChunk, error) {
	msg, err := s.reader.Recv()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classifyError(s.provider, s.model, err)
	}

	chunk := &domainllm.LLMResultChunk{
		Model:          s.model,
		PromptMessages: s.prompts,
		Delta: domainllm.LLMResultChunkDelta{
			Index:   s.index,
			Message: fromEinoMessage(msg),
			Usage:   einoUsage(msg),
		},
	}
	if msg.ResponseMeta != nil {
		chunk.Delta.FinishReason = msg.ResponseMeta.FinishReason
	}
	s.index++
	return chunk, nil
}

func (s *einoStream) Close() error {
	s.reader.Close()
	return nil
}

func toEinoMessages(msgs []domainllm.PromptMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch v := msg.(type) {
		case *domainllm.SystemPromptMessage:
			out = append(out, schema.SystemMessage(v.Content))
		case *domainllm.UserPromptMessage:
			out = append(out, schema.UserMessage(v.Content))
		case *domainllm.AssistantPromptMessage:
			calls := make([]schema.ToolCall, 0, len(v.ToolCalls))
			for _, tc := range v.ToolCalls {
				calls = append(calls, schema.ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: schema.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, schema.AssistantMessage(v.Content, calls))
		case *domainllm.ToolPromptMessage:
			out = append(out, schema.ToolMessage(v.Content, v.ToolCallID))
		}
	}
	return out
}

func toEinoTools(tools []domainllm.PromptMessageTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		var js jsonschema.Schema
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &js); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameters schema: %w", t.Name, err)
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByJSONSchema(&js),
		})
	}
	return infos, nil
}

func einoOptions(req *domainllm.InvokeRequest) []model.Option {
	opts := []model.Option{model.WithModel(req.Model)}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTemperature); ok {
		opts = append(opts, model.WithTemperature(float32(v)))
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTopP); ok {
		opts = append(opts, model.WithTopP(float32(v)))
	}
	if v, ok := domainllm.IntParam(req.Parameters, domainllm.ParamMaxTokens); ok && v > 0 {
		opts = append(opts, model.WithMaxTokens(v))
	}
	if len(req.Stop) > 0 {
		opts = append(opts, model.WithStop(req.Stop))
	}
	return opts
}

func fromEinoMessage(msg *schema.Message) *domainllm.AssistantPromptMessage {
	out := &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}}
	if msg == nil {
		return out
	}
	out.Content = msg.Content
	for _, tc := range msg.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out.ToolCalls = append(out.ToolCalls, domainllm.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: domainllm.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func einoUsage(msg *schema.Message) *domainllm.LLMUsage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	u := msg.ResponseMeta.Usage
	usage := domainllm.EmptyUsage()
	usage.PromptTokens = int64(u.PromptTokens)
	usage.CompletionTokens = int64(u.CompletionTokens)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
