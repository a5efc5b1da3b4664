package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainllm "model-invoke-api/internal/domain/llm"
	"model-invoke-api/pkg/metrics"
	"model-invoke-api/pkg/tracer"
)

// instrumentedModel 为驱动统一记录链路、耗时与 token 指标
type instrumentedModel struct {
	provider string
	next     domainllm.LargeLanguageModel
}

// Instrument 包装驱动
func Instrument(provider string, next domainllm.LargeLanguageModel) domainllm.LargeLanguageModel {
	if _, ok := next.(*instrumentedModel); ok {
		return next
	}
	return &instrumentedModel{provider: provider, next: next}
}

func (m *instrumentedModel) start(ctx context.Context, model string, stream bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llm.invoke", trace.WithAttributes(
		attribute.String("llm.provider", m.provider),
		attribute.String("llm.model", model),
		attribute.Bool("llm.stream", stream),
	))
}

func (m *instrumentedModel) Invoke(ctx context.Context, req *domainllm.InvokeRequest) (*domainllm.LLMResult, error) {
	ctx, span := m.start(ctx, req.Model, false)
	defer span.End()
	begin := time.Now()

	result, err := m.next.Invoke(ctx, req)
	observeCall(m.provider, req.Model, begin, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result.Usage != nil {
		result.Usage.Latency = time.Since(begin).Seconds()
		observeTokens(span, m.provider, req.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	}
	return result, nil
}

func (m *instrumentedModel) InvokeStream(ctx context.Context, req *domainllm.InvokeRequest) (domainllm.ChunkStream, error) {
	ctx, span := m.start(ctx, req.Model, true)
	begin := time.Now()

	stream, err := m.next.InvokeStream(ctx, req)
	if err != nil {
		observeCall(m.provider, req.Model, begin, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	return &instrumentedStream{
		next:     stream,
		span:     span,
		provider: m.provider,
		model:    req.Model,
		begin:    begin,
	}, nil
}

// instrumentedStream span 在 EOF、出错或 Close 时结束，只结束一次
type instrumentedStream struct {
	next     domainllm.ChunkStream
	span     trace.Span
	provider string
	model    string
	begin    time.Time

	prompt     int64
	completion int64
	once       sync.Once
}

func (s *instrumentedStream) Recv() (*domainllm.LLMResultChunk, error) {
	chunk, err := s.next.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.end(nil)
		} else {
			s.end(err)
		}
		return nil, err
	}
	if u := chunk.Delta.Usage; u != nil {
		s.prompt += u.PromptTokens
		s.completion += u.CompletionTokens
		u.Latency = time.Since(s.begin).Seconds()
	}
	return chunk, nil
}

func (s *instrumentedStream) Close() error {
	err := s.next.Close()
	s.end(nil)
	return err
}

func (s *instrumentedStream) end(err error) {
	s.once.Do(func() {
		observeCall(s.provider, s.model, s.begin, err)
		if err != nil {
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, err.Error())
		}
		observeTokens(s.span, s.provider, s.model, s.prompt, s.completion)
		s.span.End()
	})
}

func observeCall(provider, model string, begin time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(provider, model, status).Inc()
	metrics.LLMCallDuration.WithLabelValues(provider, model).Observe(time.Since(begin).Seconds())
}

func observeTokens(span trace.Span, provider, model string, prompt, completion int64) {
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completion))
	span.SetAttributes(
		attribute.Int64("llm.prompt_tokens", prompt),
		attribute.Int64("llm.completion_tokens", completion),
	)
}
