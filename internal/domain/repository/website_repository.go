// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"sitegen-ai-api/internal/domain/entity"
)

// WebsiteRepository 站点产物存储（博客存储协作方）
type WebsiteRepository interface {
	// Save 保存产物并返回 ID；website.ID 为空时生成新 ID
	Save(ctx context.Context, website *entity.Website) (string, error)
	GetByID(ctx context.Context, id string) (*entity.Website, error)
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.Website], error)
}
