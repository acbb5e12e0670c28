// Package mongodb 提供站点产物的 MongoDB 存储
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"sitegen-ai-api/internal/config"
)

var tracer = otel.Tracer("mongodb")

const defaultCollection = "websites"

// Client MongoDB 客户端
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	config *config.MongoDBConfig
}

// NewClient 连接并验证 MongoDB
func NewClient(ctx context.Context, cfg *config.MongoDBConfig) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mc, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := mc.Ping(connectCtx, nil); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Client{
		client: mc,
		db:     mc.Database(cfg.Database),
		config: cfg,
	}, nil
}

// Database 获取数据库句柄
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection 站点产物集合
func (c *Client) Collection() *mongo.Collection {
	name := c.config.Collection
	if name == "" {
		name = defaultCollection
	}
	return c.db.Collection(name)
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "mongodb.HealthCheck")
	defer span.End()

	if err := c.client.Ping(ctx, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close 断开连接
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
