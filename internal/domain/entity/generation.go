// Package entity 定义领域实体
package entity

import "slices"

// CompletionMarker 流内完成标记；传输层丢失 done 标志时下游仍可识别结束
const CompletionMarker = "<!-- COMPLETE -->"

// ProviderName AI 提供商标识
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderGemini    ProviderName = "gemini"
	ProviderAnthropic ProviderName = "anthropic"
	// ProviderFallback 降级占位流的来源标记
	ProviderFallback ProviderName = "fallback"
	// ProviderCache 缓存回放流的来源标记
	ProviderCache ProviderName = "cache"
)

// Model 抽象模型标识
type Model string

const (
	ModelAuto           Model = "auto"
	ModelGPT4oMini      Model = "gpt-4o-mini"
	ModelGPT41          Model = "gpt-4.1"
	ModelGPT4o          Model = "gpt-4o"
	ModelGemini15Flash  Model = "gemini-1.5-flash"
	ModelGemini15Pro    Model = "gemini-1.5-pro"
	ModelClaude35Sonnet Model = "claude-3-5-sonnet"
	ModelClaude3Opus    Model = "claude-3-opus"
)

// KnownModels 全部可请求的模型
var KnownModels = []Model{
	ModelAuto, ModelGPT4oMini, ModelGPT41, ModelGPT4o,
	ModelGemini15Flash, ModelGemini15Pro, ModelClaude35Sonnet, ModelClaude3Opus,
}

// IsKnown 是否为已知模型
func (m Model) IsKnown() bool {
	return slices.Contains(KnownModels, m)
}

// Operation 计费与路由使用的操作类型
type Operation string

const (
	OperationGeneratePage      Operation = "generatePage"
	OperationGenerateComponent Operation = "generateComponent"
	OperationContentRewrite    Operation = "contentRewrite"
	OperationDesignSuggestion  Operation = "designSuggestion"
	OperationCodeOptimization  Operation = "codeOptimization"
)

// Operations 全部操作类型
var Operations = []Operation{
	OperationGeneratePage,
	OperationGenerateComponent,
	OperationContentRewrite,
	OperationDesignSuggestion,
	OperationCodeOptimization,
}

// IsValid 是否为已知操作
func (o Operation) IsValid() bool {
	return slices.Contains(Operations, o)
}

// ConstraintType 设计约束类型
type ConstraintType string

const (
	ConstraintA11y        ConstraintType = "a11y"
	ConstraintPerformance ConstraintType = "performance"
	ConstraintSEO         ConstraintType = "seo"
	ConstraintBrand       ConstraintType = "brand"
	ConstraintBudget      ConstraintType = "budget"
)

// DesignConstraint 设计约束
type DesignConstraint struct {
	Type    ConstraintType `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

// GenerationContext 生成上下文
type GenerationContext struct {
	CurrentDesign   *WebsiteSnapshot   `json:"currentDesign"`
	UserPreferences UserPreferences    `json:"userPreferences"`
	Constraints     []DesignConstraint `json:"constraints"`
}

// GenerationRequest 一次生成请求，按值传递，创建后不再修改
type GenerationRequest struct {
	Prompt    string            `json:"prompt"`
	Context   GenerationContext `json:"context"`
	Model     Model             `json:"model"`
	Stream    bool              `json:"stream"`
	Operation Operation         `json:"operation"`
}

// WithModel 返回替换模型后的副本
func (r GenerationRequest) WithModel(m Model) GenerationRequest {
	r.Model = m
	return r
}

// ChunkType 响应块类型
type ChunkType string

const (
	ChunkToken ChunkType = "token"
	ChunkText  ChunkType = "text"
	ChunkJSON  ChunkType = "json"
	ChunkError ChunkType = "error"
)

// ResponseChunk 归一化的响应块
type ResponseChunk struct {
	Type     ChunkType    `json:"type"`
	Content  string       `json:"content"`
	Done     bool         `json:"done,omitempty"`
	Tokens   int          `json:"tokens,omitempty"`
	Provider ProviderName `json:"provider,omitempty"`
	Model    Model        `json:"model,omitempty"`
}

// IsContent 是否为需要累积的内容块
func (c ResponseChunk) IsContent() bool {
	return c.Type == ChunkToken || c.Type == ChunkText
}
