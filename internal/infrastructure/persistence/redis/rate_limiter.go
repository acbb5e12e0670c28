package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"sitegen-ai-api/internal/application/admission"
)

// slidingWindowScript 清理窗口外记录后计数，未达上限时以 ARGV[4] 为成员记录本次请求，返回 {allowed, remaining}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1}
end

return {0, 0}
`)

// RateLimiter 滑动窗口限流存储
type RateLimiter struct {
	client *Client
}

var _ admission.WindowStore = (*RateLimiter)(nil)

// NewRateLimiter 创建限流存储
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Hit 检查并记录一次请求（服务端脚本内原子完成）
func (l *RateLimiter) Hit(ctx context.Context, key, member string, limit int64, window time.Duration, now time.Time) (bool, int64, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Hit")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int64("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	res, err := slidingWindowScript.Run(ctx, l.client.rdb, []string{key},
		limit, window.Milliseconds(), now.UnixMilli(), member).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected script result %v", key, res)
	}

	allowed := res[0] == 1
	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed, res[1], nil
}

// Release 撤销一次记录
func (l *RateLimiter) Release(ctx context.Context, key, member string) error {
	ctx, span := tracer.Start(ctx, "ratelimit.Release")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	if err := l.client.rdb.ZRem(ctx, key, member).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("rate limit release %s: %w", key, err)
	}
	return nil
}
