// Package quota 记录生成用量
package quota

import (
	"context"
	"fmt"
	"strings"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/pkg/metrics"
)

type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if in.Tokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	provider := strings.TrimSpace(in.Provider)
	if provider != "" && in.Tokens > 0 {
		metrics.GenerationTokens.WithLabelValues(provider).Observe(float64(in.Tokens))
	}

	if r == nil || r.usageRepo == nil {
		return nil
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil
	}

	evt := &entity.LLMUsageEvent{
		UserID:       userID,
		GenerationID: in.GenerationID,
		Provider:     provider,
		Model:        strings.TrimSpace(in.Model),
		Tokens:       in.Tokens,
		DurationMs:   in.DurationMs,
		Degraded:     in.Degraded,
	}
	return r.usageRepo.Create(ctx, evt)
}
