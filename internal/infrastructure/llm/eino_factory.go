// Package llm 提供 LLM 提供商适配器与 ChatModel 工厂
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sitegen-ai-api/internal/config"
	apperrors "sitegen-ai-api/pkg/errors"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例，按 provider:model 缓存
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定提供商与具体模型的 ChatModel，惰性创建
func (f *EinoFactory) Get(ctx context.Context, provider, modelName string) (model.BaseChatModel, error) {
	key := provider + ":" + modelName

	f.mu.RLock()
	m, ok := f.models[key]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[key]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[provider]
	if !ok {
		return nil, apperrors.ErrProviderDisabled.WithDetail(fmt.Sprintf("provider %s not found in LLM config", provider))
	}
	if strings.TrimSpace(providerCfg.APIKey) == "" {
		return nil, apperrors.ErrProviderDisabled.WithDetail(fmt.Sprintf("provider %s has no api key", provider))
	}

	// Gemini 通过其 OpenAI 兼容端点接入，同样使用 Eino 的 OpenAI 适配器
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       modelName,
		MaxTokens:   ptrInt(providerCfg.MaxTokens),
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderConfig, fmt.Sprintf("failed to create eino chat model for %s", key))
	}

	f.models[key] = chatModel
	return chatModel, nil
}

func ptrFloat32(f float32) *float32 {
	return &f
}

func ptrInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
