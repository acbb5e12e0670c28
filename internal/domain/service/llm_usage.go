package service

import "context"

// LLMUsageInput 表示一次生成的 LLM 使用量（可观测 + 审计）。
// 该结构位于 domain/service，作为跨层的稳定契约（port），避免基础设施层依赖应用层实现。
type LLMUsageInput struct {
	UserID       string
	GenerationID string

	Operation string
	Provider  string
	Model     string

	Tokens     int
	DurationMs int
	// Degraded 输出来自兜底占位流
	Degraded bool
}

// LLMUsageRecorder 负责记录 LLM 使用量。
// 约定：实现应尽量 best-effort，不应阻塞主业务流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
