package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
)

// LLMUsageEventRepository 用量流水，由 job-worker 消费站点生成事件写入
type LLMUsageEventRepository struct {
	client *Client
}

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	// 消费端至少一次投递，同一 generation 重复写入时忽略
	if err := getDB(ctx, r.client.db).Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}
