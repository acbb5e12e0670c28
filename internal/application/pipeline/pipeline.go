// Package pipeline 编排站点生成：提示词 -> 路由流 -> 累积 -> 安全校验
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/internal/application/safety"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
	"sitegen-ai-api/internal/workflow/prompt"
	"sitegen-ai-api/pkg/tracer"
)

// 生成元数据中的固定置信度
const metadataConfidence = 0.8

// StreamRouter 生成路由
type StreamRouter interface {
	GenerateStream(ctx context.Context, req entity.GenerationRequest) (port.ChunkStream, error)
}

// Options 单次生成选项，零值使用默认：model=auto、operation=generatePage、校验层自身的严格度
type Options struct {
	Model       entity.Model
	Operation   entity.Operation
	SafetyLevel entity.SafetyLevel
	// OnChunk 每个块按生产顺序回调一次
	OnChunk func(entity.ResponseChunk)
}

// Result 生成结果
type Result struct {
	Website    *entity.Website
	Validation entity.ValidationResult
	Issues     []entity.GenerationIssue

	Request      entity.GenerationRequest
	Accumulation *Accumulation
}

// Pipeline 站点生成流水线
type Pipeline struct {
	router StreamRouter
	safety *safety.Layer
	now    func() time.Time
}

// NewPipeline 创建流水线
func NewPipeline(router StreamRouter, layer *safety.Layer) *Pipeline {
	if layer == nil {
		layer = safety.NewLayer(entity.SafetyStrict, nil, nil)
	}
	return &Pipeline{router: router, safety: layer, now: time.Now}
}

// BuildRequest 构造生成请求，附带固定的约束列表
func BuildRequest(description string, prefs entity.UserPreferences, snapshot *entity.WebsiteSnapshot, opts Options) entity.GenerationRequest {
	prefs = prefs.WithDefaults()
	model := opts.Model
	if model == "" {
		model = entity.ModelAuto
	}
	op := opts.Operation
	if op == "" {
		op = entity.OperationGeneratePage
	}
	return entity.GenerationRequest{
		Prompt: prompt.BuildWebsitePrompt(description, prefs),
		Context: entity.GenerationContext{
			CurrentDesign:   snapshot,
			UserPreferences: prefs,
			Constraints: []entity.DesignConstraint{
				{Type: entity.ConstraintA11y},
				{Type: entity.ConstraintPerformance, Details: map[string]any{"budget": "LCP<2.5s"}},
				{Type: entity.ConstraintSEO},
				{Type: entity.ConstraintBrand, Details: map[string]any{"preserve": true}},
				{Type: entity.ConstraintBudget, Details: map[string]any{"tokens": "auto"}},
			},
		},
		Model:     model,
		Stream:    true,
		Operation: op,
	}
}

// GenerateWebsite 生成站点并校验。路由返回的配置类错误与 ctx 取消会返回给调用方；
// 内容安全问题不是错误，随结果一起返回。
func (p *Pipeline) GenerateWebsite(ctx context.Context, description string, prefs entity.UserPreferences, snapshot *entity.WebsiteSnapshot, opts Options) (*Result, error) {
	req := BuildRequest(description, prefs, snapshot, opts)

	ctx, span := tracer.Start(ctx, "pipeline.GenerateWebsite",
		trace.WithAttributes(
			attribute.String("generation.model", string(req.Model)),
			attribute.String("generation.operation", string(req.Operation)),
		))
	defer span.End()

	stream, err := p.router.GenerateStream(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	acc, err := Accumulate(ctx, stream, opts.OnChunk)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("generation.provider", string(acc.Provider)),
		attribute.Int("generation.tokens", acc.Tokens),
		attribute.Bool("generation.degraded", acc.Degraded),
	)

	layer := p.safety
	if opts.SafetyLevel != "" {
		layer = layer.WithLevel(opts.SafetyLevel)
	}
	validation := layer.Validate(ctx, acc.Markup)

	model := acc.Model
	if model == "" {
		model = req.Model
	}
	var theme *entity.ThemeTokens
	if snapshot != nil {
		theme = snapshot.Theme
	}
	website := &entity.Website{
		Pages: []entity.Page{{
			ID:    "index",
			Path:  "/",
			Title: "Home",
			HTML:  acc.Markup,
		}},
		Assets: entity.Assets{Images: []entity.ImageAsset{}},
		Theme:  theme,
		Metadata: &entity.GenerationMetadata{
			GeneratedBy: entity.GeneratedByAI,
			Model:       model,
			Provider:    acc.Provider,
			TokensUsed:  acc.Tokens,
			Confidence:  metadataConfidence,
			CreatedAt:   p.now().UTC(),
		},
	}

	return &Result{
		Website:      website,
		Validation:   validation,
		Issues:       validation.Issues,
		Request:      req,
		Accumulation: acc,
	}, nil
}
