// Package routing 选择 AI 提供商并在恢复层保护下产出统一的块流
package routing

import (
	"context"
	"fmt"
	"html"
	"slices"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitegen-ai-api/internal/application/recovery"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
	apperrors "sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"
)

// FallbackMessage 兜底占位文档中展示的提示
const FallbackMessage = "No provider available or provider failure. Please retry."

const fallbackStartMarker = "<!-- FALLBACK START -->\n"

var tracer = otel.Tracer("routing")

// Router 生成路由
type Router struct {
	providers map[entity.ProviderName]port.Provider
	// priority auto 模型的提供商优先级，未出现在 fallback_chain 中的按注册顺序追加
	priority []entity.ProviderName
	policy   recovery.Policy
	cache    port.GenerationCache
	logFn    recovery.LogFunc
}

// NewRouter 创建路由；cache 可为 nil
func NewRouter(cfg *config.Config, providers []port.Provider, cache port.GenerationCache) *Router {
	r := &Router{
		providers: make(map[entity.ProviderName]port.Provider, len(providers)),
		policy:    recovery.DefaultPolicy(),
		cache:     cache,
	}

	var registered []entity.ProviderName
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
		registered = append(registered, p.Name())
	}

	if cfg != nil {
		for _, name := range cfg.LLM.FallbackChain {
			pn := entity.ProviderName(name)
			if _, ok := r.providers[pn]; ok && !slices.Contains(r.priority, pn) {
				r.priority = append(r.priority, pn)
			}
		}
		r.policy = recovery.Policy{
			MaxRetries:   cfg.Recovery.MaxRetries,
			InitialDelay: cfg.Recovery.InitialDelay,
			Jitter:       cfg.Recovery.Jitter,
		}
		if !cfg.App.IsTest() {
			r.logFn = logAttempt
		}
	} else {
		r.logFn = logAttempt
	}
	for _, pn := range registered {
		if !slices.Contains(r.priority, pn) {
			r.priority = append(r.priority, pn)
		}
	}
	return r
}

// WithPolicy 替换重试策略
func (r *Router) WithPolicy(p recovery.Policy) *Router {
	r.policy = p
	return r
}

// Priority 返回 auto 模型的提供商优先级
func (r *Router) Priority() []entity.ProviderName {
	return slices.Clone(r.priority)
}

// Select 按请求模型选择提供商。
// 显式模型：支持该模型且已启用的提供商；auto：按优先级第一个已启用的提供商。
func (r *Router) Select(req entity.GenerationRequest) (port.Provider, error) {
	for _, name := range r.priority {
		p := r.providers[name]
		if p.Supports(req.Model) && p.Enabled() {
			return p, nil
		}
	}
	return nil, apperrors.ErrNoProviderAvailable.WithDetail(
		fmt.Sprintf("No AI provider available for requested model: %s", req.Model))
}

// GenerateStream 选择提供商并调用，失败时依次走缓存、降级为 auto、退避重试，最终返回兜底占位流。
// 只有配置类错误（无可用提供商、模型不支持）会返回给调用方。
func (r *Router) GenerateStream(ctx context.Context, req entity.GenerationRequest) (port.ChunkStream, error) {
	ctx, span := tracer.Start(ctx, "routing.GenerateStream",
		trace.WithAttributes(
			attribute.String("generation.model", string(req.Model)),
			attribute.String("generation.operation", string(req.Operation)),
		))
	defer span.End()

	opts := recovery.Options[port.ChunkStream]{
		Policy: r.policy,
		Log:    r.logFn,
		Downgrade: func(ctx context.Context) (port.ChunkStream, error) {
			return r.invoke(ctx, req.WithModel(entity.ModelAuto))
		},
	}
	if r.cache != nil {
		opts.CachedResult = func(ctx context.Context) (port.ChunkStream, bool, error) {
			markup, ok, err := r.cache.Lookup(ctx, req)
			if err != nil || !ok {
				return nil, false, err
			}
			span.SetAttributes(attribute.Bool("generation.cache_hit", true))
			return CachedStream(req, markup), true, nil
		}
	}

	stream, err := recovery.Do(ctx, func(ctx context.Context) (port.ChunkStream, error) {
		return r.invoke(ctx, req)
	}, func(_ context.Context, _ error) (port.ChunkStream, error) {
		span.SetAttributes(attribute.Bool("generation.fallback", true))
		return FallbackStream(req, FallbackMessage), nil
	}, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return stream, nil
}

func (r *Router) invoke(ctx context.Context, req entity.GenerationRequest) (port.ChunkStream, error) {
	p, err := r.Select(req)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("generation.provider", string(p.Name())))
	return p.Generate(ctx, req)
}

// FallbackStream 兜底占位流：一个说明生成暂不可用的最小 HTML 文档，以完成标记结束
func FallbackStream(req entity.GenerationRequest, message string) port.ChunkStream {
	doc := "<!doctype html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\"/>\n" +
		"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\"/>\n" +
		"<title>AI Generation Unavailable</title>\n</head>\n<body>\n<main>\n" +
		"<h1>AI generation temporarily unavailable</h1>\n<p>" + html.EscapeString(message) + "</p>\n" +
		"</main>\n</body>\n</html>\n"

	chunk := func(content string, done bool) entity.ResponseChunk {
		return entity.ResponseChunk{
			Type:     entity.ChunkText,
			Content:  content,
			Done:     done,
			Provider: entity.ProviderFallback,
			Model:    req.Model,
		}
	}
	return schema.StreamReaderFromArray([]entity.ResponseChunk{
		chunk(fallbackStartMarker, false),
		chunk(doc, false),
		chunk(entity.CompletionMarker, true),
	})
}

// CachedStream 把缓存的成品回放为块流
func CachedStream(req entity.GenerationRequest, markup string) port.ChunkStream {
	return schema.StreamReaderFromArray([]entity.ResponseChunk{
		{Type: entity.ChunkText, Content: markup, Provider: entity.ProviderCache, Model: req.Model},
		{Type: entity.ChunkText, Content: entity.CompletionMarker, Done: true, Provider: entity.ProviderCache, Model: req.Model},
	})
}

// IsFallback 块是否来自兜底占位流
func IsFallback(c entity.ResponseChunk) bool {
	return c.Provider == entity.ProviderFallback
}

func logAttempt(ctx context.Context, err error, attempt int) {
	logger.Warn(ctx, "ai router attempt failed", "attempt", attempt, "error", err.Error())
}
