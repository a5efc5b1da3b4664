package wire

import (
	"fmt"
	"os"

	"model-invoke-api/internal/application/completion"
	"model-invoke-api/internal/application/quota"
	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/event"
	domainprovider "model-invoke-api/internal/domain/provider"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/internal/infrastructure/eventbus"
	"model-invoke-api/internal/infrastructure/llm"
	"model-invoke-api/internal/infrastructure/messaging"
	"model-invoke-api/internal/infrastructure/persistence/postgres"
	"model-invoke-api/internal/infrastructure/persistence/redis"
	"model-invoke-api/internal/infrastructure/provider"
	"model-invoke-api/internal/interfaces/http/handler"
	"model-invoke-api/internal/interfaces/http/middleware"
	"model-invoke-api/internal/interfaces/http/router"
)

// App API 网关依赖容器
type App struct {
	Router        *router.Router
	Bus           *eventbus.Bus
	Subscriptions GatewaySubscriptions
}

// Worker job-worker 依赖容器
type Worker struct {
	Ledger        UsageLedgerConsumer
	Replay        MessageReplayConsumer
	Bus           *eventbus.Bus
	Subscriptions WorkerSubscriptions
}

// DataLayer 仅包含 PostgreSQL 的数据层
type DataLayer struct {
	PgClient     *postgres.Client
	TxManager    *postgres.TxManager
	TenantRepo   *postgres.TenantRepository
	ProviderRepo *postgres.ProviderRepository
	ModelRepo    *postgres.ProviderModelRepository
	PrefRepo     *postgres.PreferredProviderRepository
	LLMUsageRepo *postgres.LLMUsageEventRepository
}

// GatewaySubscriptions 网关总线上已注册的订阅者名称
type GatewaySubscriptions []string

// WorkerSubscriptions worker 总线上已注册的订阅者名称
type WorkerSubscriptions []string

// UsageLedgerConsumer 用量流水消费者
type UsageLedgerConsumer struct{ *messaging.Consumer }

// MessageReplayConsumer message.created 重放消费者
type MessageReplayConsumer struct{ *messaging.Consumer }

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideUsageExporter 提供用量导出器
func ProvideUsageExporter(producer *messaging.Producer, cfg *config.Config) *messaging.UsageExporter {
	return messaging.NewUsageExporter(producer, messaging.Stream(cfg.Messaging.RedisStream.UsageStream))
}

// ProvideResolver 提供供应商解析器，配置了缓存时长时启用租户缓存
func ProvideResolver(cfg *config.Config, repos provider.Repositories, registry *llm.Registry, cache *redis.Cache) domainprovider.Resolver {
	var opts []provider.Option
	if ttl := cfg.Resolver.TenantCacheTTL; ttl > 0 {
		opts = append(opts, provider.WithTenantCache(cache, redis.TenantKey, ttl))
	}
	return provider.NewManager(cfg.Providers, repos, registry, opts...)
}

// ProvidePublisher 按配置选择同步或异步发布
func ProvidePublisher(cfg *config.Config, bus *eventbus.Bus) event.Publisher {
	if cfg.EventBus.Async {
		return bus.Async()
	}
	return bus
}

// ProvideGatewaySubscriptions 注册配额监听与用量导出
func ProvideGatewaySubscriptions(bus *eventbus.Bus, listener *quota.Listener, exporter *messaging.UsageExporter) GatewaySubscriptions {
	listener.Register(bus)
	exporter.Register(bus)
	return GatewaySubscriptions(bus.Subscribers(event.TopicModelInvoked))
}

// ProvideWorkerSubscriptions worker 只需配额监听处理重放的 message.created
func ProvideWorkerSubscriptions(bus *eventbus.Bus, listener *quota.Listener) WorkerSubscriptions {
	listener.Register(bus)
	return WorkerSubscriptions(bus.Subscribers(event.TopicMessageCreated))
}

// ProvideUsageLedgerConsumer 消费用量流写入流水表
func ProvideUsageLedgerConsumer(cfg *config.Config, redisClient *redis.Client, recorder service.LLMUsageRecorder) UsageLedgerConsumer {
	stream := streamOrDefault(cfg.Messaging.RedisStream.UsageStream, messaging.StreamModelUsage)
	c := messaging.NewConsumer(redisClient.Redis(), consumerConfig(cfg, stream, messaging.ConsumerGroupUsageLedger))
	c.RegisterHandler(string(event.TopicModelInvoked), messaging.LedgerHandler(recorder))
	return UsageLedgerConsumer{c}
}

// ProvideMessageReplayConsumer 将外部 message.created 重放到本地总线
func ProvideMessageReplayConsumer(cfg *config.Config, redisClient *redis.Client, pub event.Publisher) MessageReplayConsumer {
	stream := streamOrDefault(cfg.Messaging.RedisStream.MessageStream, messaging.StreamMessageCreated)
	c := messaging.NewConsumer(redisClient.Redis(), consumerConfig(cfg, stream, messaging.ConsumerGroupMessageReplay))
	c.RegisterHandler(string(event.TopicMessageCreated), messaging.ReplayHandler(pub))
	return MessageReplayConsumer{c}
}

// ProvideConversationNamer 会话命名复用调用编排，按配置选择模型
func ProvideConversationNamer(cfg *config.Config, svc *completion.Service) *completion.ConversationNamer {
	return completion.NewConversationNamer(svc, cfg.InnerAPI.Naming.Provider, cfg.InnerAPI.Naming.Model)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    redisClient,
	})
}

// ProvideRateLimitKey 限流键格式
func ProvideRateLimitKey() middleware.KeyFunc {
	return redis.BuildRateLimitKey
}

func streamOrDefault(name string, def messaging.Stream) messaging.Stream {
	if name == "" {
		return def
	}
	return messaging.Stream(name)
}

func consumerConfig(cfg *config.Config, stream messaging.Stream, group messaging.ConsumerGroup) messaging.ConsumerConfig {
	rs := cfg.Messaging.RedisStream
	return messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group.WithPrefix(rs.ConsumerGroupPrefix),
		ConsumerName:  consumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	}
}

// consumerName 主机名加进程号，保证同组内唯一
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
