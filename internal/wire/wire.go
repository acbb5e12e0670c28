//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"sitegen-ai-api/internal/application/pipeline"
	"sitegen-ai-api/internal/application/routing"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/infrastructure/llm"
	"sitegen-ai-api/internal/interfaces/http/router"
	"sitegen-ai-api/internal/workflow/prompt"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		DataSet,
		AdmissionSet,
		GenerationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// DataSet 存储与消息提供者集合
var DataSet = wire.NewSet(
	ProvideRedisClient,
	ProvideMongoClientOptional,
	ProvidePostgresClientOptional,
	ProvideWebsiteRepository,
	ProvideCreditLedger,
	ProvideUsageRecorder,
	ProvideGenerationCache,
	ProvidePublisher,
)

// AdmissionSet 准入控制提供者集合
var AdmissionSet = wire.NewSet(
	ProvideCounterStore,
	ProvideWindowStore,
	ProvidePricing,
	ProvideCredits,
	ProvideAdmissionController,
)

// GenerationSet 生成链路提供者集合
var GenerationSet = wire.NewSet(
	llm.NewEinoFactory,
	prompt.NewRegistry,
	ProvideProviders,
	routing.NewRouter,
	wire.Bind(new(pipeline.StreamRouter), new(*routing.Router)),
	ProvideSafetyLayer,
	pipeline.NewPipeline,
	pipeline.NewService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideSiteHandler,
	ProvideCreditsHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
