// Package llmtest 提供测试用的模型能力与流实现
package llmtest

import (
	"context"
	"io"
	"sync"

	"model-invoke-api/internal/domain/llm"
)

// SliceStream 按顺序返回预置分片，可在指定位置注入错误
type SliceStream struct {
	Chunks []*llm.LLMResultChunk
	// FailAt 为 >=0 时，读取第 FailAt 个分片返回 Err
	FailAt int
	Err    error

	pos    int
	Closed bool
}

// NewSliceStream 创建不会出错的分片流
func NewSliceStream(chunks ...*llm.LLMResultChunk) *SliceStream {
	return &SliceStream{Chunks: chunks, FailAt: -1}
}

func (s *SliceStream) Recv() (*llm.LLMResultChunk, error) {
	if s.Closed {
		return nil, io.ErrClosedPipe
	}
	if s.FailAt >= 0 && s.pos == s.FailAt {
		return nil, s.Err
	}
	if s.pos >= len(s.Chunks) {
		return nil, io.EOF
	}
	c := s.Chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *SliceStream) Close() error {
	s.Closed = true
	return nil
}

// Chunk 构造一个带用量增量的分片
func Chunk(index int, text string, promptTokens, completionTokens int64) *llm.LLMResultChunk {
	c := &llm.LLMResultChunk{
		Delta: llm.LLMResultChunkDelta{
			Index:   index,
			Message: &llm.AssistantPromptMessage{Content: text},
		},
	}
	if promptTokens != 0 || completionTokens != 0 {
		c.Delta.Usage = &llm.LLMUsage{PromptTokens: promptTokens, CompletionTokens: completionTokens, Currency: "USD"}
	}
	return c
}

// Model 可编程的 LargeLanguageModel
type Model struct {
	mu sync.Mutex

	Result    *llm.LLMResult
	InvokeErr error
	Stream    llm.ChunkStream
	StreamErr error

	Requests []*llm.InvokeRequest
}

func (m *Model) Invoke(ctx context.Context, req *llm.InvokeRequest) (*llm.LLMResult, error) {
	m.record(req)
	if m.InvokeErr != nil {
		return nil, m.InvokeErr
	}
	return m.Result, nil
}

func (m *Model) InvokeStream(ctx context.Context, req *llm.InvokeRequest) (llm.ChunkStream, error) {
	m.record(req)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return m.Stream, nil
}

// Calls 被调用次数
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func (m *Model) record(req *llm.InvokeRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
}
