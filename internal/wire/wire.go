//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"model-invoke-api/internal/application/completion"
	"model-invoke-api/internal/application/quota"
	"model-invoke-api/internal/application/runner"
	"model-invoke-api/internal/config"
	"model-invoke-api/internal/domain/repository"
	"model-invoke-api/internal/domain/service"
	"model-invoke-api/internal/infrastructure/eventbus"
	"model-invoke-api/internal/infrastructure/llm"
	"model-invoke-api/internal/infrastructure/persistence/postgres"
	"model-invoke-api/internal/infrastructure/persistence/redis"
	"model-invoke-api/internal/infrastructure/provider"
	"model-invoke-api/internal/interfaces/http/handler"
	"model-invoke-api/internal/interfaces/http/middleware"
	"model-invoke-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		ResolverSet,
		InvokeSet,
		RouterSet,
		ProvideGatewaySubscriptions,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		ResolverSet,
		eventbus.New,
		ProvidePublisher,
		quota.NewDeductor,
		quota.NewListener,
		quota.NewLLMUsageRecorder,
		wire.Bind(new(quota.QuotaStore), new(*postgres.ProviderRepository)),
		wire.Bind(new(service.LLMUsageRecorder), new(*quota.LLMUsageRecorder)),
		ProvideWorkerSubscriptions,
		ProvideUsageLedgerConsumer,
		ProvideMessageReplayConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeDataLayer 仅初始化 PostgreSQL 数据层（bootstrap / quotactl 使用）
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	wire.Build(
		RepoSet,
		wire.Struct(new(DataLayer), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewTenantRepository,
	postgres.NewProviderRepository,
	postgres.NewProviderModelRepository,
	postgres.NewPreferredProviderRepository,
	postgres.NewLLMUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.TenantRepository), new(*postgres.TenantRepository)),
	wire.Bind(new(repository.ProviderRepository), new(*postgres.ProviderRepository)),
	wire.Bind(new(repository.ProviderModelRepository), new(*postgres.ProviderModelRepository)),
	wire.Bind(new(repository.PreferredProviderRepository), new(*postgres.PreferredProviderRepository)),
	wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideUsageExporter,
)

// ResolverSet 供应商解析
var ResolverSet = wire.NewSet(
	llm.NewRegistry,
	wire.Struct(new(provider.Repositories), "*"),
	ProvideResolver,
)

// InvokeSet 调用编排与配额
var InvokeSet = wire.NewSet(
	eventbus.New,
	ProvidePublisher,
	runner.NewModelRunner,
	wire.Bind(new(completion.Runner), new(*runner.ModelRunner)),
	completion.NewService,
	quota.NewDeductor,
	quota.NewListener,
	quota.NewQuotaInspector,
	wire.Bind(new(quota.QuotaStore), new(*postgres.ProviderRepository)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewInvokeHandler,
	handler.NewQuotaHandler,
	handler.NewNamingHandler,
	ProvideConversationNamer,
	ProvideHealthHandler,
	wire.Bind(new(handler.Invoker), new(*completion.Service)),
	wire.Bind(new(handler.QuotaReader), new(*quota.QuotaInspector)),
	wire.Bind(new(handler.ConversationNamer), new(*completion.ConversationNamer)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideRateLimitKey,
	router.New,
)
