package quota

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/infrastructure/eventbus"
)

func TestListener_DeductsOnBothTopics(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 1000, 0)
	resolver := &stubResolver{cfg: systemConfiguration(provider.QuotaUnitTokens, 1000, 0)}

	bus := eventbus.New()
	NewListener(resolver, NewDeductor(store)).Register(bus)

	bus.Publish(context.Background(), event.TopicModelInvoked, event.InvocationEvent{
		TenantID: "tenant-1", Provider: "openai", Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 5,
	})
	bus.Publish(context.Background(), event.TopicMessageCreated, event.InvocationEvent{
		TenantID: "tenant-1", Provider: "openai", Model: "gpt-4o-mini", PromptTokens: 1, CompletionTokens: 1, MessageID: "m-1",
	})

	assert.Equal(t, int64(17), store.used("tenant-1", "openai", "trial"))
	assert.Equal(t, 2, resolver.calls)
}

func TestListener_SkipsIncompleteEvent(t *testing.T) {
	store := newMemQuotaStore()
	resolver := &stubResolver{cfg: systemConfiguration(provider.QuotaUnitTokens, 1000, 0)}
	l := NewListener(resolver, NewDeductor(store))

	require.NoError(t, l.Handle(context.Background(), event.InvocationEvent{Provider: "openai"}))
	require.NoError(t, l.Handle(context.Background(), event.InvocationEvent{TenantID: "tenant-1"}))
	assert.Zero(t, resolver.calls)
	assert.Zero(t, store.calls)
}

func TestListener_ProviderNotFoundIsSkipped(t *testing.T) {
	store := newMemQuotaStore()
	l := NewListener(&stubResolver{}, NewDeductor(store))

	err := l.Handle(context.Background(), event.InvocationEvent{TenantID: "tenant-1", Provider: "unknown", Model: "x"})
	require.NoError(t, err)
	assert.Zero(t, store.calls)
}

func TestListener_ResolverFailureReturnsError(t *testing.T) {
	l := NewListener(&stubResolver{err: stderrors.New("db down")}, NewDeductor(newMemQuotaStore()))

	err := l.Handle(context.Background(), event.InvocationEvent{TenantID: "tenant-1", Provider: "openai", Model: "gpt-4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestListener_CustomProviderNeverMutates(t *testing.T) {
	store := newMemQuotaStore()
	store.put("tenant-1", "openai", "trial", 1000, 0)
	cfg := systemConfiguration(provider.QuotaUnitTokens, 1000, 0)
	cfg.UsingProviderType = provider.ProviderTypeCustom
	l := NewListener(&stubResolver{cfg: cfg}, NewDeductor(store))

	require.NoError(t, l.Handle(context.Background(), event.InvocationEvent{
		TenantID: "tenant-1", Provider: "openai", Model: "gpt-4", PromptTokens: 500, CompletionTokens: 500,
	}))
	assert.Zero(t, store.used("tenant-1", "openai", "trial"))
	assert.Zero(t, store.calls)
}
