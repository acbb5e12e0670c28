package port

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"sitegen-ai-api/internal/domain/entity"
)

// Provider 提供商适配器：把生成请求翻译为归一化的响应块流。
// 返回的流以 done=true 且内容含完成标记的块结束；流内失败以单个 error 块结束，不返回错误。
type Provider interface {
	Name() entity.ProviderName
	// Enabled 提供商已启用且凭证齐全
	Enabled() bool
	// Supports 是否能服务该抽象模型
	Supports(m entity.Model) bool
	Generate(ctx context.Context, req entity.GenerationRequest) (*schema.StreamReader[entity.ResponseChunk], error)
}

// ChunkStream 生成路由输出的块流
type ChunkStream = *schema.StreamReader[entity.ResponseChunk]
