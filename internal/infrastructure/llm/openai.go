package llm

import (
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/workflow/port"
	"sitegen-ai-api/internal/workflow/prompt"
)

// openAIModels OpenAI 支持的抽象模型
var openAIModels = map[entity.Model]string{
	entity.ModelAuto:      "gpt-4o-mini",
	entity.ModelGPT4oMini: "gpt-4o-mini",
	entity.ModelGPT41:     "gpt-4.1",
	entity.ModelGPT4o:     "gpt-4o",
}

// NewOpenAIAdapter 创建 OpenAI 适配器
func NewOpenAIAdapter(cfg *config.Config, factory port.ChatModelFactory, prompts *prompt.Registry) *ChatAdapter {
	return newChatAdapter(entity.ProviderOpenAI, cfg, openAIModels, styleSystemUser, factory, prompts)
}
