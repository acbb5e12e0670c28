package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
)

var cacheTracer = otel.Tracer("redis.cache")

const (
	generationKeyPrefix  = "gen:"
	defaultGenerationTTL = 24 * time.Hour
)

// Cache JSON 值缓存；读取经 singleflight 合并
type Cache struct {
	client *Client
	group  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get 未命中时返回 redis.Nil
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, key).Bytes()
	span.SetAttributes(attribute.Bool("cache.hit", err == nil))
	if err != nil && !IsNil(err) {
		span.RecordError(err)
	}
	return raw, err
}

// GetShared 同一键的并发读取只访问一次 Redis
func (c *Cache) GetShared(ctx context.Context, key string) ([]byte, error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.Get(ctx, key)
	})
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.shared", shared))
	raw, _ := v.([]byte)
	return raw, err
}

// Set 写入 value 的 JSON 编码
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set", trace.WithAttributes(
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
	))
	defer span.End()

	raw, err := json.Marshal(value)
	if err == nil {
		err = c.client.rdb.Set(ctx, key, raw, ttl).Err()
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GenerationCache 生成成品缓存
type GenerationCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ port.GenerationCache = (*GenerationCache)(nil)

type cachedGeneration struct {
	Markup   string    `json:"markup"`
	Model    string    `json:"model"`
	StoredAt time.Time `json:"stored_at"`
}

// NewGenerationCache 创建生成成品缓存
func NewGenerationCache(cache *Cache, ttl time.Duration) *GenerationCache {
	if ttl <= 0 {
		ttl = defaultGenerationTTL
	}
	return &GenerationCache{cache: cache, ttl: ttl}
}

func (g *GenerationCache) Lookup(ctx context.Context, req entity.GenerationRequest) (string, bool, error) {
	data, err := g.cache.GetShared(ctx, GenerationKey(req))
	if IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var cg cachedGeneration
	if err := json.Unmarshal(data, &cg); err != nil {
		return "", false, fmt.Errorf("decode cached generation: %w", err)
	}
	return cg.Markup, cg.Markup != "", nil
}

func (g *GenerationCache) Store(ctx context.Context, req entity.GenerationRequest, markup string) error {
	return g.cache.Set(ctx, GenerationKey(req), cachedGeneration{
		Markup:   markup,
		Model:    string(req.Model),
		StoredAt: time.Now().UTC(),
	}, g.ttl)
}

// GenerationKey 以模型、操作、提示词与上下文的哈希定位
func GenerationKey(req entity.GenerationRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", req.Model, req.Operation, req.Prompt)
	if ctxJSON, err := json.Marshal(req.Context); err == nil {
		h.Write(ctxJSON)
	}
	return generationKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
