package messaging

import (
	"context"
	"fmt"

	"model-invoke-api/internal/domain/event"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/pkg/logger"
)

// UsageExporter 订阅进程内 model.invoked 事件并写入用量流
type UsageExporter struct {
	producer *Producer
	stream   Stream
}

// UsageExporterSubscriberName 在事件总线上的订阅者名称
const UsageExporterSubscriberName = "usage-exporter"

func NewUsageExporter(producer *Producer, stream Stream) *UsageExporter {
	if stream == "" {
		stream = StreamModelUsage
	}
	return &UsageExporter{producer: producer, stream: stream}
}

func (e *UsageExporter) Register(sub event.Subscriber) {
	sub.Subscribe(event.TopicModelInvoked, UsageExporterSubscriberName, e.Handle)
}

func (e *UsageExporter) Handle(ctx context.Context, evt event.InvocationEvent) error {
	if evt.TenantID == "" {
		return nil
	}
	if _, err := e.producer.PublishEvent(ctx, e.stream, event.TopicModelInvoked, evt); err != nil {
		return fmt.Errorf("export usage event %s: %w", evt.ID, err)
	}
	return nil
}

// LedgerHandler 将用量流中的事件写入流水表
func LedgerHandler(recorder service.LLMUsageRecorder) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var evt event.InvocationEvent
		if err := msg.UnmarshalPayload(&evt); err != nil {
			// 载荷损坏重试也无意义
			logger.Error(ctx, "drop malformed usage message", err, "message_id", msg.ID)
			return nil
		}
		if evt.ID == "" {
			evt.ID = msg.ID
		}
		return recorder.Record(ctx, service.LLMUsageInput{
			EventID:          evt.ID,
			TenantID:         evt.TenantID,
			Provider:         evt.Provider,
			ProviderType:     evt.ProviderType,
			ModelType:        string(evt.ModelType),
			Model:            evt.Model,
			PromptTokens:     evt.PromptTokens,
			CompletionTokens: evt.CompletionTokens,
			DurationMs:       evt.LatencyMs,
			User:             evt.User,
			OccurredAt:       evt.OccurredAt,
		})
	}
}

// ReplayHandler 将外部 message.created 事件重放到本地总线
func ReplayHandler(pub event.Publisher) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var evt event.InvocationEvent
		if err := msg.UnmarshalPayload(&evt); err != nil {
			logger.Error(ctx, "drop malformed message.created", err, "message_id", msg.ID)
			return nil
		}
		if evt.ID == "" {
			evt.ID = msg.ID
		}
		if evt.TenantID == "" {
			evt.TenantID = msg.TenantID
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = msg.CreatedAt
		}
		pub.Publish(service.WithSource(ctx, "message_replay"), event.TopicMessageCreated, evt)
		return nil
	}
}
