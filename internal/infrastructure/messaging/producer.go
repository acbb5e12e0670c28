// Package messaging 提供基于 Redis Stream 的事件发布与消费
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamPublished.WithLabelValues(string(stream), "error").Inc()
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.RedisStreamPublished.WithLabelValues(string(stream), "ok").Inc()
	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishSiteGenerated 发布站点生成完成事件
func (p *Producer) PublishSiteGenerated(ctx context.Context, evt *SiteGeneratedMessage) (string, error) {
	msg, err := NewMessage(evt.GenerationID, TypeSiteGenerated, evt.UserID, evt)
	if err != nil {
		return "", err
	}

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if traceID := trace.SpanContextFromContext(ctx).TraceID(); traceID.IsValid() {
		msg.SetMetadata("trace_id", traceID.String())
	}
	if evt.Degraded {
		msg.SetMetadata("degraded", "true")
	}
	return p.Publish(ctx, StreamSiteGenerated, msg)
}

// SiteGeneratedMessage 站点生成完成事件
type SiteGeneratedMessage struct {
	GenerationID string    `json:"generation_id"`
	UserID       string    `json:"user_id"`
	WebsiteID    string    `json:"website_id,omitempty"`
	Operation    string    `json:"operation"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Tokens       int       `json:"tokens"`
	DurationMs   int       `json:"duration_ms"`
	Degraded     bool      `json:"degraded"`
	Passed       bool      `json:"passed"`
	IssueCount   int       `json:"issue_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageInput 转换为用量记录
func (m *SiteGeneratedMessage) UsageInput() service.LLMUsageInput {
	return service.LLMUsageInput{
		UserID:       m.UserID,
		GenerationID: m.GenerationID,
		Operation:    m.Operation,
		Provider:     m.Provider,
		Model:        m.Model,
		Tokens:       m.Tokens,
		DurationMs:   m.DurationMs,
		Degraded:     m.Degraded,
	}
}
