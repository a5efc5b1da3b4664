// Package eventbus 提供进程内发布/订阅实现
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/metrics"
)

type subscription struct {
	name    string
	handler event.Handler
}

// Bus 进程内事件总线
//
// 订阅在启动阶段注册，之后只读；Publish 按注册顺序依次调用订阅者，
// 单个订阅者的错误或 panic 只记录日志，不影响其他订阅者，也不返回给发布方。
type Bus struct {
	mu   sync.RWMutex
	subs map[event.Topic][]subscription

	wg sync.WaitGroup
}

// New 创建事件总线
func New() *Bus {
	return &Bus{subs: make(map[event.Topic][]subscription)}
}

// Subscribe 注册订阅者
func (b *Bus) Subscribe(topic event.Topic, name string, h event.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], subscription{name: name, handler: h})
}

// Publish 同步分发事件
func (b *Bus) Publish(ctx context.Context, topic event.Topic, evt event.InvocationEvent) {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, topic, s, evt)
	}
}

// PublishAsync 在后台 goroutine 中分发事件，发布方不等待订阅者完成
func (b *Bus) PublishAsync(ctx context.Context, topic event.Topic, evt event.InvocationEvent) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Publish(ctx, topic, evt)
	}()
}

// Wait 等待所有异步分发结束，用于优雅退出
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Async 返回以 PublishAsync 分发的 Publisher
func (b *Bus) Async() event.Publisher {
	return asyncPublisher{bus: b}
}

// Subscribers 返回主题下的订阅者名称
func (b *Bus) Subscribers(topic event.Topic) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		names = append(names, s.name)
	}
	return names
}

func (b *Bus) dispatch(ctx context.Context, topic event.Topic, s subscription, evt event.InvocationEvent) {
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			logger.Error(ctx, "event subscriber panicked", fmt.Errorf("%v", r),
				"topic", string(topic),
				"subscriber", s.name,
				"event_id", evt.ID,
			)
		}
		metrics.EventBusDispatchTotal.WithLabelValues(string(topic), status).Inc()
	}()

	if err := s.handler(ctx, evt); err != nil {
		status = "error"
		logger.Error(ctx, "event subscriber failed", err,
			"topic", string(topic),
			"subscriber", s.name,
			"event_id", evt.ID,
		)
	}
}

type asyncPublisher struct {
	bus *Bus
}

func (p asyncPublisher) Publish(ctx context.Context, topic event.Topic, evt event.InvocationEvent) {
	p.bus.PublishAsync(ctx, topic, evt)
}

var (
	_ event.Publisher  = (*Bus)(nil)
	_ event.Subscriber = (*Bus)(nil)
)
