package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	apperrors "sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"
)

// WebsiteRepository 站点产物仓储
type WebsiteRepository struct {
	col *mongo.Collection
}

var _ repository.WebsiteRepository = (*WebsiteRepository)(nil)

// NewWebsiteRepository 创建站点产物仓储并确保索引
func NewWebsiteRepository(ctx context.Context, col *mongo.Collection) *WebsiteRepository {
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "metadata.created_at", Value: -1},
		},
	})
	if err != nil {
		logger.Warn(ctx, "failed to create website index", "error", err)
	}
	return &WebsiteRepository{col: col}
}

// Save 保存产物（按 ID upsert）
func (r *WebsiteRepository) Save(ctx context.Context, website *entity.Website) (string, error) {
	ctx, span := tracer.Start(ctx, "mongodb.WebsiteRepository.Save")
	defer span.End()

	if website.ID == "" {
		website.ID = uuid.NewString()
	}
	if website.Metadata != nil && website.Metadata.CreatedAt.IsZero() {
		website.Metadata.CreatedAt = time.Now().UTC()
	}

	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": website.ID}, website, options.Replace().SetUpsert(true))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to save website: %w", err)
	}
	return website.ID, nil
}

// GetByID 根据 ID 获取产物
func (r *WebsiteRepository) GetByID(ctx context.Context, id string) (*entity.Website, error) {
	ctx, span := tracer.Start(ctx, "mongodb.WebsiteRepository.GetByID")
	defer span.End()

	var w entity.Website
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound.WithDetail("website " + id)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	return &w, nil
}

// ListByUser 按创建时间倒序分页查询
func (r *WebsiteRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Website], error) {
	ctx, span := tracer.Start(ctx, "mongodb.WebsiteRepository.ListByUser")
	defer span.End()

	filter := bson.M{"user_id": userID}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count websites: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "metadata.created_at", Value: -1}}).
		SetSkip(int64(pagination.Offset())).
		SetLimit(int64(pagination.Limit()))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			logger.Warn(ctx, "failed to close mongo cursor", "error", err)
		}
	}()

	items := make([]*entity.Website, 0, pagination.Limit())
	for cur.Next(ctx) {
		var w entity.Website
		if err := cur.Decode(&w); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to decode website: %w", err)
		}
		items = append(items, &w)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("website cursor: %w", err)
	}

	return repository.NewPagedResult(items, total, pagination), nil
}
