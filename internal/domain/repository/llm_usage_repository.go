package repository

import (
	"context"

	"sitegen-ai-api/internal/domain/entity"
)

// LLMUsageEventRepository 生成用量流水；同一 generation 重复写入必须幂等
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
}
