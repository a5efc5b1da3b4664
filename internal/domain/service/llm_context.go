package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeySource   llmCtxKey = "llm_source"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

// WithSource 标记调用入口（inner_api / message_replay 等）
func WithSource(ctx context.Context, source string) context.Context {
	if ctx == nil {
		return nil
	}
	s := strings.TrimSpace(source)
	if s == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeySource, s)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func WithSourceProvider(ctx context.Context, source, provider string) context.Context {
	return WithProvider(WithSource(ctx, source), provider)
}

func SourceFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeySource)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
