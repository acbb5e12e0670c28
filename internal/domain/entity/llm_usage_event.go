// Package entity 定义领域实体
package entity

import "time"

type LLMUsageEvent struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       string    `json:"user_id" gorm:"type:varchar(128);index;not null"`
	GenerationID string    `json:"generation_id" gorm:"type:varchar(64);uniqueIndex:idx_llm_usage_generation,where:generation_id <> ''"`
	Provider     string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model        string    `json:"model" gorm:"type:varchar(64);not null"`
	Tokens       int       `json:"tokens" gorm:"not null;default:0"`
	DurationMs   int       `json:"duration_ms" gorm:"not null;default:0"`
	Degraded     bool      `json:"degraded" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}
