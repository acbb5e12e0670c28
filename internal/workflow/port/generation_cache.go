package port

import (
	"context"

	"sitegen-ai-api/internal/domain/entity"
)

// GenerationCache 已生成成品的缓存，按模型、操作与提示词定位
type GenerationCache interface {
	// Lookup 未命中时返回 ok=false 且 err=nil
	Lookup(ctx context.Context, req entity.GenerationRequest) (markup string, ok bool, err error)
	Store(ctx context.Context, req entity.GenerationRequest, markup string) error
}
