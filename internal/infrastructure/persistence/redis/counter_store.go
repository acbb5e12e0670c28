package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/internal/application/admission"
)

// initScript 键不存在时写入初始值，返回当前值
var initScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
  return tonumber(ARGV[1])
end
return tonumber(redis.call('GET', KEYS[1]))
`)

// reserveScript 余额充足时扣减，返回 {ok, 余额}
var reserveScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if cur >= amt then
  return {1, redis.call('DECRBY', KEYS[1], amt)}
end
return {0, cur}
`)

// CounterStore Redis 共享计数存储，扣减通过服务端脚本原子完成
type CounterStore struct {
	client *Client
}

var _ admission.CounterStore = (*CounterStore)(nil)

// NewCounterStore 创建计数存储
func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) InitIfAbsent(ctx context.Context, key string, initial int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "counter.InitIfAbsent",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	v, err := initScript.Run(ctx, s.client.rdb, []string{key}, initial).Int64()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("init counter %s: %w", key, err)
	}
	return v, nil
}

func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, span := tracer.Start(ctx, "counter.Get",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	v, err := s.client.rdb.Get(ctx, key).Int64()
	if IsNil(err) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	return v, nil
}

func (s *CounterStore) DecrIfSufficient(ctx context.Context, key string, amount int64) (int64, bool, error) {
	ctx, span := tracer.Start(ctx, "counter.DecrIfSufficient",
		trace.WithAttributes(
			attribute.String("redis.key", key),
			attribute.Int64("counter.amount", amount),
		))
	defer span.End()

	res, err := reserveScript.Run(ctx, s.client.rdb, []string{key}, amount).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return 0, false, fmt.Errorf("reserve counter %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve counter %s: unexpected script result %v", key, res)
	}
	ok := res[0] == 1
	span.SetAttributes(attribute.Bool("counter.reserved", ok))
	return res[1], ok, nil
}

func (s *CounterStore) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "counter.IncrBy",
		trace.WithAttributes(
			attribute.String("redis.key", key),
			attribute.Int64("counter.amount", amount),
		))
	defer span.End()

	v, err := s.client.rdb.IncrBy(ctx, key, amount).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("incr counter %s: %w", key, err)
	}
	return v, nil
}
