package runner

import (
	"context"
	stderrors "errors"
	"io"
	"iter"
	"sync"

	"model-invoke-api/internal/domain/llm"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/metrics"
)

type publishFunc func(ctx context.Context, meta invocationMeta, usage *llm.LLMUsage)

// ResultStream 单向、不可重放的分片序列
//
// 每个分片原样转交调用方，同时累加用量。无论正常结束、出错还是调用方提前 Close，
// 用量都只发布一次；没有交付过任何分片时不发布。
// 非并发安全：Recv 与 Close 应由同一个消费者调用。
type ResultStream struct {
	ctx     context.Context
	src     llm.ChunkStream
	meta    invocationMeta
	publish publishFunc

	usage     *llm.LLMUsage
	delivered int
	done      bool
	err       error
	once      sync.Once
}

func newResultStream(ctx context.Context, src llm.ChunkStream, meta invocationMeta, publish publishFunc) *ResultStream {
	return &ResultStream{
		ctx:     ctx,
		src:     src,
		meta:    meta,
		publish: publish,
		usage:   llm.EmptyUsage(),
	}
}

// Recv 读取下一个分片，结束时返回 io.EOF
func (s *ResultStream) Recv() (*llm.LLMResultChunk, error) {
	if s.done {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}

	chunk, err := s.src.Recv()
	if err != nil {
		if !stderrors.Is(err, io.EOF) {
			s.err = toInvokeError(err)
		}
		s.finish(false)
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}

	if chunk.Delta.Usage != nil {
		s.usage.Merge(chunk.Delta.Usage)
	}
	s.delivered++
	metrics.LLMStreamChunks.WithLabelValues(s.meta.provider, s.meta.model).Inc()
	return chunk, nil
}

// Close 结束消费；未读完时视为提前放弃，已累计的用量照常发布
func (s *ResultStream) Close() error {
	s.finish(!s.done)
	return nil
}

// All 以 range-over-func 形式遍历分片，循环结束（含 break）时自动 Close
func (s *ResultStream) All() iter.Seq2[*llm.LLMResultChunk, error] {
	return func(yield func(*llm.LLMResultChunk, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Recv()
			if stderrors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Usage 当前累计用量的副本
func (s *ResultStream) Usage() *llm.LLMUsage {
	return s.usage.Clone()
}

// Delivered 已交付的分片数
func (s *ResultStream) Delivered() int {
	return s.delivered
}

func (s *ResultStream) finish(abandoned bool) {
	s.once.Do(func() {
		s.done = true
		if err := s.src.Close(); err != nil {
			logger.Warn(s.ctx, "failed to close provider stream", "error", err.Error())
		}
		if abandoned {
			metrics.LLMStreamAbandoned.WithLabelValues(s.meta.provider, s.meta.model).Inc()
		}
		if s.delivered == 0 {
			return
		}
		s.publish(s.ctx, s.meta, s.usage.Clone())
	})
}
