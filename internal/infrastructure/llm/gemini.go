package llm

import (
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
	"sitegen-ai-api/internal/workflow/prompt"
)

// geminiModels Gemini 支持的抽象模型
var geminiModels = map[entity.Model]string{
	entity.ModelAuto:          "gemini-1.5-flash",
	entity.ModelGemini15Flash: "gemini-1.5-flash",
	entity.ModelGemini15Pro:   "gemini-1.5-pro",
}

// NewGeminiAdapter 创建 Gemini 适配器（OpenAI 兼容端点，单条 user 消息）
func NewGeminiAdapter(cfg *config.Config, factory port.ChatModelFactory, prompts *prompt.Registry) *ChatAdapter {
	return newChatAdapter(entity.ProviderGemini, cfg, geminiModels, styleInlineUser, factory, prompts)
}
