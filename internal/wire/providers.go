// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/application/pipeline"
	"sitegen-ai-api/internal/application/quota"
	"sitegen-ai-api/internal/application/safety"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/internal/infrastructure/llm"
	"sitegen-ai-api/internal/infrastructure/messaging"
	"sitegen-ai-api/internal/infrastructure/persistence/mongodb"
	"sitegen-ai-api/internal/infrastructure/persistence/postgres"
	"sitegen-ai-api/internal/infrastructure/persistence/redis"
	"sitegen-ai-api/internal/interfaces/http/handler"
	"sitegen-ai-api/internal/interfaces/http/router"
	"sitegen-ai-api/internal/workflow/port"
	"sitegen-ai-api/internal/workflow/prompt"
	"sitegen-ai-api/pkg/logger"
)

// 注意：可选依赖未启用或不可达时返回 nil，下游按 nil 降级。
// 接口类型的返回值必须是无类型 nil，不能是带类型的空指针。

// ProvideRedisClient 提供 Redis 客户端；启用后连接失败视为启动失败
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMongoClientOptional 提供 MongoDB 客户端（不可达时不阻塞启动）
func ProvideMongoClientOptional(ctx context.Context, cfg *config.Config) (*mongodb.Client, func(), error) {
	if !cfg.Database.MongoDB.Enabled {
		return nil, func() {}, nil
	}
	client, err := mongodb.NewClient(ctx, &cfg.Database.MongoDB)
	if err != nil {
		logger.Warn(ctx, "mongodb not available, website persistence disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close(context.Background())
	}
	return client, cleanup, nil
}

// ProvidePostgresClientOptional 提供 PostgreSQL 客户端并建表（不可达时不阻塞启动）
func ProvidePostgresClientOptional(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Warn(ctx, "postgres not available, credit ledger disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	if err := client.AutoMigrate(ctx); err != nil {
		_ = client.Close()
		logger.Warn(ctx, "postgres migration failed, credit ledger disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideWebsiteRepository 站点产物仓储
func ProvideWebsiteRepository(ctx context.Context, client *mongodb.Client) repository.WebsiteRepository {
	if client == nil {
		return nil
	}
	return mongodb.NewWebsiteRepository(ctx, client.Collection())
}

// ProvideCreditLedger 积分流水账本
func ProvideCreditLedger(client *postgres.Client) repository.CreditLedgerRepository {
	if client == nil {
		return nil
	}
	return postgres.NewCreditLedgerRepository(client)
}

// ProvideUsageRecorder 用量记录器；启用事件流时由 job-worker 落库，网关只记录指标
func ProvideUsageRecorder(cfg *config.Config, redisClient *redis.Client, client *postgres.Client) service.LLMUsageRecorder {
	if client == nil || (cfg.Messaging.RedisStream.Enabled && redisClient != nil) {
		return quota.NewLLMUsageRecorder(nil)
	}
	return quota.NewLLMUsageRecorder(postgres.NewLLMUsageEventRepository(client))
}

// ProvideCounterStore 积分计数存储，无 Redis 时退化为进程内存储
func ProvideCounterStore(client *redis.Client) admission.CounterStore {
	if client == nil {
		return admission.NewMemoryCounterStore()
	}
	return redis.NewCounterStore(client)
}

// ProvideWindowStore 滑动窗口存储，无 Redis 时退化为进程内存储
func ProvideWindowStore(client *redis.Client) admission.WindowStore {
	if client == nil {
		return admission.NewMemoryWindowStore()
	}
	return redis.NewRateLimiter(client)
}

// ProvideGenerationCache 生成结果缓存
func ProvideGenerationCache(cfg *config.Config, client *redis.Client) port.GenerationCache {
	if client == nil || cfg.Cache.GenerationTTL <= 0 {
		return nil
	}
	return redis.NewGenerationCache(redis.NewCache(client), cfg.Cache.GenerationTTL)
}

// ProvidePublisher 站点生成事件发布方
func ProvidePublisher(cfg *config.Config, client *redis.Client) pipeline.SitePublisher {
	if client == nil || !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), maxLen)
}

// ProvideProviders 按配置顺序提供模型适配器
func ProvideProviders(cfg *config.Config, factory *llm.EinoFactory, prompts *prompt.Registry) []port.Provider {
	return []port.Provider{
		llm.NewOpenAIAdapter(cfg, factory, prompts),
		llm.NewGeminiAdapter(cfg, factory, prompts),
	}
}

// ProvidePricing 计费表
func ProvidePricing(cfg *config.Config) *admission.Pricing {
	return admission.NewPricing(cfg.Billing)
}

// ProvideCredits 积分服务
func ProvideCredits(cfg *config.Config, store admission.CounterStore, pricing *admission.Pricing, ledger repository.CreditLedgerRepository) *admission.Credits {
	return admission.NewCredits(store, pricing, ledger, cfg.Billing.StartingBalance)
}

// ProvideAdmissionController 生成准入：请求频率 + 免费档每日次数 + 积分预留
func ProvideAdmissionController(cfg *config.Config, credits *admission.Credits, store admission.WindowStore) *admission.Controller {
	rl := cfg.Security.RateLimit
	var limiter *admission.RateLimiter
	if rl.Enabled {
		genCfg := rl
		genCfg.KeyPrefix = rl.KeyPrefix + "generation:"
		limiter = admission.NewRateLimiter(store, "generation", genCfg)
	}
	daily := admission.NewRateLimiter(store, "daily", config.RateLimitConfig{
		KeyPrefix: rl.KeyPrefix + "daily:",
	})
	return admission.NewController(credits, limiter, daily)
}

// ProvideSiteHandler 站点处理器
func ProvideSiteHandler(svc *pipeline.Service, websites repository.WebsiteRepository) *handler.SiteHandler {
	return handler.NewSiteHandler(svc, websites)
}

// ProvideCreditsHandler 积分处理器
func ProvideCreditsHandler(cfg *config.Config, credits *admission.Credits, ledger repository.CreditLedgerRepository) *handler.CreditsHandler {
	return handler.NewCreditsHandler(credits, ledger, cfg.Billing.WebhookSecret)
}

// ProvideHealthHandler 健康检查处理器；Redis 启用时为必需依赖
func ProvideHealthHandler(cfg *config.Config, redisClient *redis.Client, mongoClient *mongodb.Client, pgClient *postgres.Client) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "redis", Required: cfg.Cache.Redis.Enabled},
		{Name: "mongodb"},
		{Name: "postgres"},
	}
	if redisClient != nil {
		deps[0].Checker = redisClient
	}
	if mongoClient != nil {
		deps[1].Checker = mongoClient
	}
	if pgClient != nil {
		deps[2].Checker = pgClient
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideRouter 提供 HTTP 路由；接口级限流与生成准入使用不同的键前缀
func ProvideRouter(cfg *config.Config, handlers router.Handlers, store admission.WindowStore) *router.Router {
	var limiter *admission.RateLimiter
	if cfg.Security.RateLimit.Enabled {
		httpCfg := cfg.Security.RateLimit
		httpCfg.KeyPrefix = httpCfg.KeyPrefix + "http:"
		limiter = admission.NewRateLimiter(store, "http", httpCfg)
	}
	return router.New(cfg, handlers, limiter)
}

// ProvideSafetyLayer 内容安全校验层
func ProvideSafetyLayer(cfg *config.Config) *safety.Layer {
	return safety.NewLayerFromConfig(cfg.Safety)
}
