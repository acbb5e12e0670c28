package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
)

const (
	readBatch    = 10
	pendingBatch = 20
)

// 消费结果，用于指标
const (
	outcomeOK      = "ok"
	outcomeRetry   = "retry"
	outcomeDLQ     = "dlq"
	outcomeDropped = "dropped"
)

// MessageHandler 消息处理函数；返回错误时消息保留在 pending 中按退避重投
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream       Stream
	Group        ConsumerGroup
	ConsumerName string
	BlockTimeout time.Duration
	// ClaimInterval 扫描其他消费者遗留消息的间隔
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// Consumer 消费者组成员：至少一次投递，超过重试上限进入死信队列
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	// reclaimIdle 其他消费者的消息空闲超过该时长才接管
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	running  bool
	stopCh   chan struct{}
}

// NewConsumer 创建消费者，零值配置项取默认值
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	reclaimIdle := 2 * cfg.Backoff.Max
	if reclaimIdle < 5*time.Minute {
		reclaimIdle = 5 * time.Minute
	}

	return &Consumer{
		client:      client,
		cfg:         cfg,
		reclaimIdle: reclaimIdle,
		handlers:    make(map[string]MessageHandler),
		stopCh:      make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 确保消费者组存在并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer already running")
	}

	err := c.client.XGroupCreateMkStream(ctx, c.stream(), c.group(), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.running = true
	go c.loop(ctx)
	return nil
}

// Stop 停止消费；正在处理的消息会处理完
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) stream() string { return string(c.cfg.Stream) }
func (c *Consumer) group() string  { return string(c.cfg.Group) }

func (c *Consumer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Consumer) loop(ctx context.Context) {
	log := logger.FromContext(ctx).With("stream", c.stream(), "group", c.group(), "consumer", c.cfg.ConsumerName)
	log.Info("consumer started")
	defer log.Info("consumer stopped")

	nextReclaim := time.Now()
	for !c.stopped(ctx) {
		// 先重投自己到期的 pending，再周期性接管其他消费者遗留的消息
		c.retryOwnPending(ctx)
		if now := time.Now(); !now.Before(nextReclaim) {
			c.reclaimAbandoned(ctx)
			nextReclaim = now.Add(c.cfg.ClaimInterval)
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group(),
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{c.stream(), ">"},
			Count:    readBatch,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.handle(ctx, xmsg)
			}
		}
	}
}

// handle 处理一条投递并返回结果
func (c *Consumer) handle(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.handle", trace.WithAttributes(
		attribute.String("stream", c.stream()),
		attribute.String("stream.message_id", xmsg.ID),
	))
	defer span.End()

	outcome := c.dispatch(ctx, span, xmsg)
	metrics.RedisStreamConsumed.WithLabelValues(c.stream(), outcome).Inc()
}

func (c *Consumer) dispatch(ctx context.Context, span trace.Span, xmsg redis.XMessage) string {
	msg, ok := decodeMessage(xmsg)
	if !ok {
		logger.FromContext(ctx).Error("dropping undecodable message", "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return outcomeDropped
	}

	ctx = messageContext(ctx, msg)
	log := logger.FromContext(ctx)
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	)

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		log.Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		return outcomeDropped
	}

	err := handler(ctx, msg)
	if err == nil {
		c.ack(ctx, xmsg.ID)
		return outcomeOK
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	deliveries := c.deliveryCount(ctx, xmsg.ID)
	if deliveries >= c.cfg.RetryLimit {
		log.Warn("message exhausted retries, moving to DLQ", "error", err, "deliveries", deliveries)
		c.deadLetter(ctx, msg, err.Error())
		c.ack(ctx, xmsg.ID)
		return outcomeDLQ
	}
	log.Warn("handler failed, message kept for retry", "error", err, "deliveries", deliveries)
	return outcomeRetry
}

// messageContext 把消息携带的标识带入日志上下文
func messageContext(ctx context.Context, msg *Message) context.Context {
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, msg.ID)
	if msg.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, msg.UserID)
	}
	for key, field := range map[string]logger.ContextKey{
		"request_id": logger.RequestIDKey,
		"trace_id":   logger.TraceIDKey,
	} {
		if v := msg.GetMetadata(key); v != "" {
			ctx = logger.WithContext(ctx, field, v)
		}
	}
	return ctx
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.stream(), c.group(), id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// deliveryCount 该消息在组内的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream(),
		Group:  c.group(),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// deadLetter 写入死信流，保留原消息与失败原因
func (c *Consumer) deadLetter(ctx context.Context, msg *Message, reason string) {
	entry, _ := json.Marshal(map[string]any{
		"original_stream": c.stream(),
		"group":           c.group(),
		"data":            msg,
		"error":           reason,
		"failed_at":       time.Now().Unix(),
	})
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]any{"data": string(entry)},
	}).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to write DLQ entry", "error", err, "message_id", msg.ID)
	}
}

// retryOwnPending 按退避重投本消费者名下失败的消息
func (c *Consumer) retryOwnPending(ctx context.Context) {
	c.claimPending(ctx, c.cfg.ConsumerName, func(p redis.XPendingExt) (time.Duration, bool) {
		if int(p.RetryCount) >= c.cfg.RetryLimit {
			return 0, true
		}
		backoff := c.cfg.Backoff.CalculateBackoff(int(p.RetryCount))
		return backoff, p.Idle >= backoff
	})
}

// reclaimAbandoned 接管长时间无人确认的他人消息（消费者崩溃后遗留）
func (c *Consumer) reclaimAbandoned(ctx context.Context) {
	c.claimPending(ctx, "", func(p redis.XPendingExt) (time.Duration, bool) {
		if p.Consumer == c.cfg.ConsumerName {
			return 0, false
		}
		return c.reclaimIdle, p.Idle >= c.reclaimIdle
	})
}

// claimPending 扫描 pending 列表，对 pick 选中的消息 XCLAIM 后重新处理；
// 已超过重试上限的直接转入死信队列
func (c *Consumer) claimPending(ctx context.Context, owner string, pick func(redis.XPendingExt) (time.Duration, bool)) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Start:    "-",
		End:      "+",
		Count:    pendingBatch,
		Consumer: owner,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		}
		return
	}

	for _, p := range pending {
		minIdle, ok := pick(p)
		if !ok {
			continue
		}
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream(),
			Group:    c.group(),
			Consumer: c.cfg.ConsumerName,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", p.ID)
			continue
		}

		for _, xmsg := range claimed {
			if int(p.RetryCount) < c.cfg.RetryLimit {
				c.handle(ctx, xmsg)
				continue
			}
			if msg, ok := decodeMessage(xmsg); ok {
				c.deadLetter(ctx, msg, "message exceeded max retries")
			}
			c.ack(ctx, xmsg.ID)
			metrics.RedisStreamConsumed.WithLabelValues(c.stream(), outcomeDLQ).Inc()
		}
	}
}

func decodeMessage(xmsg redis.XMessage) (*Message, bool) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, false
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// MonitorDLQ 每分钟检查一次死信队列长度，超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlq := c.cfg.Stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "DLQ backlog above threshold", "stream", dlq, "count", n, "threshold", alertThreshold)
			}
		}
	}
}
