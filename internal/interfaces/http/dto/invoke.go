package dto

import (
	"model-invoke-api/internal/application/completion"
	"model-invoke-api/internal/domain/llm"
)

// InvokeLLMRequest 内部模型调用请求
type InvokeLLMRequest struct {
	TenantID         string           `json:"tenant_id" binding:"required"`
	Provider         string           `json:"provider" binding:"required"`
	Model            string           `json:"model" binding:"required"`
	CompletionParams map[string]any   `json:"completion_params"`
	PromptMessages   []map[string]any `json:"prompt_messages" binding:"required"`
	Tools            []map[string]any `json:"tools"`
	Stop             []string         `json:"stop"`
	Stream           bool             `json:"stream"`
	User             string           `json:"user"`
}

// ToInvokeRequest 转为编排服务入参
func (r *InvokeLLMRequest) ToInvokeRequest() completion.InvokeRequest {
	return completion.InvokeRequest{
		TenantID:         r.TenantID,
		Provider:         r.Provider,
		Model:            r.Model,
		CompletionParams: r.CompletionParams,
		PromptMessages:   r.PromptMessages,
		Tools:            r.Tools,
		Stop:             r.Stop,
		Stream:           r.Stream,
		User:             r.User,
	}
}

// PromptMessage 消息的统一输出形态
type PromptMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// LLMResultResponse 阻塞调用结果
type LLMResultResponse struct {
	Model             string          `json:"model"`
	PromptMessages    []PromptMessage `json:"prompt_messages"`
	Message           PromptMessage   `json:"message"`
	Usage             *llm.LLMUsage   `json:"usage"`
	SystemFingerprint string          `json:"system_fingerprint,omitempty"`
}

// LLMResultChunkDelta 流式分片增量
type LLMResultChunkDelta struct {
	Index        int           `json:"index"`
	Message      PromptMessage `json:"message"`
	Usage        *llm.LLMUsage `json:"usage,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// LLMResultChunkResponse 流式分片，每个 SSE data 事件一条
type LLMResultChunkResponse struct {
	Model             string              `json:"model"`
	PromptMessages    []PromptMessage     `json:"prompt_messages"`
	SystemFingerprint string              `json:"system_fingerprint,omitempty"`
	Delta             LLMResultChunkDelta `json:"delta"`
}

func NewLLMResultResponse(r *llm.LLMResult) *LLMResultResponse {
	if r == nil {
		return nil
	}
	return &LLMResultResponse{
		Model:             r.Model,
		PromptMessages:    toPromptMessages(r.PromptMessages),
		Message:           assistantMessage(r.Message),
		Usage:             r.Usage,
		SystemFingerprint: r.SystemFingerprint,
	}
}

func NewLLMResultChunkResponse(c *llm.LLMResultChunk) *LLMResultChunkResponse {
	if c == nil {
		return nil
	}
	return &LLMResultChunkResponse{
		Model:             c.Model,
		PromptMessages:    toPromptMessages(c.PromptMessages),
		SystemFingerprint: c.SystemFingerprint,
		Delta: LLMResultChunkDelta{
			Index:        c.Delta.Index,
			Message:      assistantMessage(c.Delta.Message),
			Usage:        c.Delta.Usage,
			FinishReason: c.Delta.FinishReason,
		},
	}
}

func assistantMessage(m *llm.AssistantPromptMessage) PromptMessage {
	out := PromptMessage{Role: string(llm.RoleAssistant)}
	if m != nil {
		out.Content = m.Content
		out.ToolCalls = m.ToolCalls
	}
	return out
}

func toPromptMessages(msgs []llm.PromptMessage) []PromptMessage {
	out := make([]PromptMessage, 0, len(msgs))
	for _, m := range msgs {
		switch v := m.(type) {
		case *llm.AssistantPromptMessage:
			out = append(out, assistantMessage(v))
		case *llm.ToolPromptMessage:
			out = append(out, PromptMessage{Role: string(llm.RoleTool), Content: v.Content, ToolCallID: v.ToolCallID})
		default:
			out = append(out, PromptMessage{Role: string(m.Role()), Content: m.Text()})
		}
	}
	return out
}

// RenameConversationRequest 会话命名请求
type RenameConversationRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Query    string `json:"query" binding:"required"`
}
