package llm

import (
	"context"
	"fmt"
)

// ModelType 模型类型
type ModelType string

const (
	ModelTypeLLM ModelType = "llm"
)

// Credentials 调用凭证（键名由驱动定义，如 api_key / base_url）
type Credentials map[string]string

// InvokeRequest 一次模型调用的参数
type InvokeRequest struct {
	Model          string
	Credentials    Credentials
	PromptMessages []PromptMessage
	// Parameters 补全参数（temperature / max_tokens / top_p 等），由驱动按需识别
	Parameters map[string]any
	Tools      []PromptMessageTool
	Stop       []string
	User       string
}

// ChunkStream 流式结果读取器，Recv 在结束时返回 io.EOF
type ChunkStream interface {
	Recv() (*LLMResultChunk, error)
	Close() error
}

// LargeLanguageModel 供应商 LLM 调用能力
type LargeLanguageModel interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*LLMResult, error)
	InvokeStream(ctx context.Context, req *InvokeRequest) (ChunkStream, error)
}

// InvokeError 供应商调用失败
type InvokeError struct {
	Provider    string
	Model       string
	Description string
	Err         error
}

func (e *InvokeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invoke %s/%s: %s: %v", e.Provider, e.Model, e.Description, e.Err)
	}
	return fmt.Sprintf("invoke %s/%s: %s", e.Provider, e.Model, e.Description)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// NewInvokeError 包装驱动返回的错误
func NewInvokeError(provider, model, description string, err error) *InvokeError {
	return &InvokeError{Provider: provider, Model: model, Description: description, Err: err}
}
