package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 定义适配器对 LLM ChatModel 的最小依赖（port）。
// provider 为提供商名称，modelName 为提供商侧的具体模型名。
type ChatModelFactory interface {
	Get(ctx context.Context, provider, modelName string) (model.BaseChatModel, error)
}
