// Package messaging 基于 Redis Streams 的事件投递：站点生成完成后发布，job-worker 消费落库
package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Stream 流名称
type Stream string

// StreamSiteGenerated 站点生成完成事件流
const StreamSiteGenerated Stream = "stream:site:generated"

// TypeSiteGenerated 站点生成完成事件类型
const TypeSiteGenerated = "site.generated"

// DLQStream 重试耗尽后消息转入的死信流
func (s Stream) DLQStream() string {
	return string(s) + ":dlq"
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

// ConsumerGroupUsageWriter 将生成事件写成用量记录
const ConsumerGroupUsageWriter ConsumerGroup = "sitegen-usage-writer"

// Message 流中的事件信封，整体序列化到 XADD 的 data 字段
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 封装事件；id 取 generation id，便于下游幂等
func NewMessage(id, msgType, userID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		UserID:    userID,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 写入透传字段，空值忽略
func (m *Message) SetMetadata(key, value string) {
	if value == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	m.Metadata[key] = value
}

// GetMetadata 读取透传字段
func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解码载荷
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has empty payload", m.ID)
	}
	return json.Unmarshal(m.Payload, v)
}

// BackoffConfig 失败重投的指数退避
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起步、翻倍、上限 1m
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重投前的等待时间，retryCount 从 0 开始
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.Initial) * math.Pow(mult, float64(max(retryCount, 0)))
	if c.Max > 0 && d > float64(c.Max) {
		return c.Max
	}
	return time.Duration(d)
}
