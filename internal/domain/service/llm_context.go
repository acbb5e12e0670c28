package service

import (
	"context"
	"strings"
)

// unknownLabel 未标注时的指标标签
const unknownLabel = "unknown"

type llmCtxKey int

const (
	keyOperation llmCtxKey = iota
	keyProvider
)

func withLabel(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	if v := strings.TrimSpace(value); v != "" {
		return context.WithValue(ctx, key, v)
	}
	return ctx
}

func labelFrom(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknownLabel
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v
	}
	return unknownLabel
}

// WithOperation 标注生成操作（generatePage 等）
func WithOperation(ctx context.Context, operation string) context.Context {
	return withLabel(ctx, keyOperation, operation)
}

// WithProvider 标注实际调用的提供商
func WithProvider(ctx context.Context, provider string) context.Context {
	return withLabel(ctx, keyProvider, provider)
}

// WithOperationProvider 供 eino 回调按操作与提供商上报调用指标
func WithOperationProvider(ctx context.Context, operation, provider string) context.Context {
	return WithProvider(WithOperation(ctx, operation), provider)
}

func OperationFromContext(ctx context.Context) string { return labelFrom(ctx, keyOperation) }

func ProviderFromContext(ctx context.Context) string { return labelFrom(ctx, keyProvider) }
