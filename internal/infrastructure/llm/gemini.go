package llm

import (
	"context"
	"encoding/json"
	"io"
	"iter"

	"google.golang.org/genai"

	"model-invoke-api/internal/config"
	domainllm "model-invoke-api/internal/domain/llm"
)

// GeminiModel Google Gemini 驱动
type GeminiModel struct {
	provider string
	config   config.ProviderConfig
	clients  *clientCache[*genai.Client]
}

// NewGeminiModel 创建 Gemini 驱动
func NewGeminiModel(provider string, cfg config.ProviderConfig) (domainllm.LargeLanguageModel, error) {
	return &GeminiModel{
		provider: provider,
		config:   cfg,
		clients:  newClientCache[*genai.Client](),
	}, nil
}

func (m *GeminiModel) client(ctx context.Context, creds domainllm.Credentials) (*genai.Client, error) {
	return m.clients.get(credentialsFingerprint(creds), func() (*genai.Client, error) {
		ep := resolveEndpoint(m.config, creds)
		cc := &genai.ClientConfig{
			APIKey:  ep.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if ep.baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: ep.baseURL}
		}
		return genai.NewClient(context.WithoutCancel(ctx), cc)
	})
}

func (m *GeminiModel) Invoke(ctx context.Context, req *domainllm.InvokeRequest) (*domainllm.LLMResult, error) {
	client, err := m.client(ctx, req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	contents, cfg, err := geminiRequest(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classifyError(m.provider, req.Model, err)
	}

	usage := domainllm.EmptyUsage()
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &domainllm.LLMResult{
		Model:          req.Model,
		PromptMessages: req.PromptMessages,
		Message:        fromGeminiResponse(resp),
		Usage:          usage,
	}, nil
}

func (m *GeminiModel) InvokeStream(ctx context.Context, req *domainllm.InvokeRequest) (domainllm.ChunkStream, error) {
	client, err := m.client(ctx, req.Credentials)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	contents, cfg, err := geminiRequest(req)
	if err != nil {
		return nil, domainllm.NewInvokeError(m.provider, req.Model, err.Error(), err)
	}
	ctx, cancel := m.withTimeout(ctx)

	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, req.Model, contents, cfg))
	return &geminiStream{
		next: next,
		stop: func() {
			stop()
			cancel()
		},
		provider: m.provider,
		model:    req.Model,
		prompts:  req.PromptMessages,
	}, nil
}

func (m *GeminiModel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Timeout > 0 {
		return context.WithTimeout(ctx, m.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// geminiStream Gemini 流中的用量是累计值，这里换算成增量
type geminiStream struct {
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	provider string
	model    string
	prompts  []domainllm.PromptMessage
	index    int

	promptSeen     int64
	completionSeen int64
}

func (s *geminiStream) Recv() (*domainllm.LLMResultChunk, error) {
	resp, err, ok := s.next()
	if !ok {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classifyError(s.provider, s.model, err)
	}

	delta := domainllm.LLMResultChunkDelta{
		Index:   s.index,
		Message: fromGeminiResponse(resp),
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		delta.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if md := resp.UsageMetadata; md != nil {
		p, c := int64(md.PromptTokenCount), int64(md.CandidatesTokenCount)
		if p > s.promptSeen || c > s.completionSeen {
			usage := domainllm.EmptyUsage()
			usage.PromptTokens = max(p-s.promptSeen, 0)
			usage.CompletionTokens = max(c-s.completionSeen, 0)
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			delta.Usage = usage
			s.promptSeen = max(p, s.promptSeen)
			s.completionSeen = max(c, s.completionSeen)
		}
	}

	s.index++
	return &domainllm.LLMResultChunk{
		Model:          s.model,
		PromptMessages: s.prompts,
		Delta:          delta,
	}, nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func geminiRequest(req *domainllm.InvokeRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTemperature); ok {
		cfg.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamTopP); ok {
		cfg.TopP = genai.Ptr(float32(v))
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamPresencePenalty); ok {
		cfg.PresencePenalty = genai.Ptr(float32(v))
	}
	if v, ok := domainllm.FloatParam(req.Parameters, domainllm.ParamFrequencyPenalty); ok {
		cfg.FrequencyPenalty = genai.Ptr(float32(v))
	}
	if v, ok := domainllm.IntParam(req.Parameters, domainllm.ParamMaxTokens); ok && v > 0 {
		cfg.MaxOutputTokens = int32(v)
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema, err := t.ParametersMap()
			if err != nil {
				return nil, nil, err
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schema,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var contents []*genai.Content
	// 工具结果需要函数名，按 tool_call_id 从此前的助手消息中查找
	callNames := make(map[string]string)
	for _, msg := range req.PromptMessages {
		switch v := msg.(type) {
		case *domainllm.SystemPromptMessage:
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = genai.NewContentFromText(v.Content, genai.RoleUser)
			} else {
				cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts, genai.NewPartFromText(v.Content))
			}
		case *domainllm.UserPromptMessage:
			contents = append(contents, genai.NewContentFromText(v.Content, genai.RoleUser))
		case *domainllm.AssistantPromptMessage:
			var parts []*genai.Part
			if v.Content != "" {
				parts = append(parts, genai.NewPartFromText(v.Content))
			}
			for _, tc := range v.ToolCalls {
				callNames[tc.ID] = tc.Function.Name
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Function.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case *domainllm.ToolPromptMessage:
			name := callNames[v.ToolCallID]
			if name == "" {
				name = v.ToolCallID
			}
			part := genai.NewPartFromFunctionResponse(name, map[string]any{"content": v.Content})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}
	return contents, cfg, nil
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) *domainllm.AssistantPromptMessage {
	msg := &domainllm.AssistantPromptMessage{ToolCalls: []domainllm.ToolCall{}}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return msg
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			msg.Content += part.Text
		}
		if fc := part.FunctionCall; fc != nil {
			args, _ := json.Marshal(fc.Args)
			id := fc.ID
			if id == "" {
				id = fc.Name
			}
			msg.ToolCalls = append(msg.ToolCalls, domainllm.ToolCall{
				ID:   id,
				Type: "function",
				Function: domainllm.ToolCallFunction{
					Name:      fc.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return msg
}
