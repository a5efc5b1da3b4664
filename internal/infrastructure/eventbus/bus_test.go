package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"model-invoke-api/internal/domain/event"
)

func TestBus_PublishInOrderWithIsolation(t *testing.T) {
	bus := New()
	var calls []string

	bus.Subscribe(event.TopicModelInvoked, "first", func(ctx context.Context, evt event.InvocationEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe(event.TopicModelInvoked, "second", func(ctx context.Context, evt event.InvocationEvent) error {
		calls = append(calls, "second")
		panic("unexpected")
	})
	bus.Subscribe(event.TopicModelInvoked, "third", func(ctx context.Context, evt event.InvocationEvent) error {
		calls = append(calls, "third:"+evt.TenantID)
		return nil
	})
	bus.Subscribe(event.TopicMessageCreated, "other", func(ctx context.Context, evt event.InvocationEvent) error {
		calls = append(calls, "other")
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event.TopicModelInvoked, event.InvocationEvent{TenantID: "t1"})
	})
	assert.Equal(t, []string{"first", "second", "third:t1"}, calls)
	assert.Equal(t, []string{"first", "second", "third"}, bus.Subscribers(event.TopicModelInvoked))
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event.TopicMessageCreated, event.InvocationEvent{})
	})
}

func TestBus_PublishAsyncSurvivesCancel(t *testing.T) {
	bus := New()
	var got atomic.Int64
	bus.Subscribe(event.TopicModelInvoked, "counter", func(ctx context.Context, evt event.InvocationEvent) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		got.Add(evt.PromptTokens)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pub := bus.Async()
	for i := 0; i < 10; i++ {
		pub.Publish(ctx, event.TopicModelInvoked, event.InvocationEvent{PromptTokens: 1})
	}
	cancel()
	bus.Wait()

	assert.Equal(t, int64(10), got.Load())
}
