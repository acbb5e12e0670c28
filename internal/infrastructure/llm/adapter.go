package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/service"
	"sitegen-ai-api/internal/workflow/node"
	"sitegen-ai-api/internal/workflow/port"
	"sitegen-ai-api/internal/workflow/prompt"
	apperrors "sitegen-ai-api/pkg/errors"
)

const (
	defaultStreamTimeout = 2 * time.Minute
	pipeCapacity         = 32
	maxStreamErrorRunes  = 300
)

type messageStyle int

const (
	// styleSystemUser system + user 两条消息
	styleSystemUser messageStyle = iota
	// styleInlineUser 单条 user 消息，system 指令内联在前
	styleInlineUser
)

// ChatAdapter 基于 Eino ChatModel 的提供商适配器
type ChatAdapter struct {
	name    entity.ProviderName
	cfg     config.ProviderConfig
	models  map[entity.Model]string
	style   messageStyle
	factory port.ChatModelFactory
	prompts *prompt.Registry
}

var _ port.Provider = (*ChatAdapter)(nil)

func newChatAdapter(name entity.ProviderName, cfg *config.Config, models map[entity.Model]string, style messageStyle, factory port.ChatModelFactory, prompts *prompt.Registry) *ChatAdapter {
	var pc config.ProviderConfig
	if cfg != nil {
		pc = cfg.LLM.Providers[string(name)]
	}
	if prompts == nil {
		prompts = prompt.NewRegistry()
	}
	return &ChatAdapter{
		name:    name,
		cfg:     pc,
		models:  models,
		style:   style,
		factory: factory,
		prompts: prompts,
	}
}

func (a *ChatAdapter) Name() entity.ProviderName {
	return a.name
}

// Enabled 已启用且配置了凭证
func (a *ChatAdapter) Enabled() bool {
	return a.cfg.Enabled && strings.TrimSpace(a.cfg.APIKey) != "" && a.factory != nil
}

func (a *ChatAdapter) Supports(m entity.Model) bool {
	_, ok := a.models[m]
	return ok
}

// ResolveModel 抽象模型映射为提供商侧模型名；不支持时报错，不做静默替换
func (a *ChatAdapter) ResolveModel(m entity.Model) (string, error) {
	concrete, ok := a.models[m]
	if !ok {
		return "", apperrors.ErrUnsupportedModel.WithDetail(fmt.Sprintf("%s does not support requested model: %s", a.name, m))
	}
	return concrete, nil
}

// BuildMessages 组装提供商消息：系统工程要求 + 操作 + 提示词 + 上下文 JSON
func (a *ChatAdapter) BuildMessages(ctx context.Context, req entity.GenerationRequest) ([]*schema.Message, error) {
	contextJSON, err := json.Marshal(req.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal generation context: %w", err)
	}

	tpl, err := a.prompts.ChatTemplate(prompt.PromptSiteGenerationV1)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"operation": string(req.Operation),
		"prompt":    req.Prompt,
		"context":   string(contextJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}

	if a.style == styleInlineUser {
		parts := make([]string, 0, len(msgs))
		for _, m := range msgs {
			parts = append(parts, m.Content)
		}
		return []*schema.Message{schema.UserMessage(strings.Join(parts, "\n\n"))}, nil
	}
	return msgs, nil
}

// Generate 调用提供商并返回归一化块流。
// 配置类错误与建立调用时的错误直接返回，交给路由的恢复层处理；流开始后的错误以 error 块结束流。
func (a *ChatAdapter) Generate(ctx context.Context, req entity.GenerationRequest) (*schema.StreamReader[entity.ResponseChunk], error) {
	if !a.Enabled() {
		return nil, apperrors.ErrProviderDisabled.WithDetail(fmt.Sprintf("%s is disabled or not configured", a.name))
	}
	concrete, err := a.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	chatModel, err := a.factory.Get(ctx, string(a.name), concrete)
	if err != nil {
		return nil, err
	}
	msgs, err := a.BuildMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = service.WithOperationProvider(ctx, string(req.Operation), string(a.name))
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      string(a.name),
		Type:      "ChatAdapter",
		Component: components.ComponentOfChatModel,
	})

	callCtx, cancel := context.WithTimeout(ctx, a.streamTimeout())

	if !req.Stream {
		defer cancel()
		return a.generateOnce(callCtx, chatModel, msgs, req)
	}

	upstream, err := chatModel.Stream(callCtx, msgs)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s stream: %w", a.name, err)
	}

	out, w := schema.Pipe[entity.ResponseChunk](pipeCapacity)
	go a.pump(callCtx, cancel, upstream, w, req)
	return out, nil
}

// generateOnce 非流式：一次阻塞调用，产出一个 text 块与完成块
func (a *ChatAdapter) generateOnce(ctx context.Context, chatModel model.BaseChatModel, msgs []*schema.Message, req entity.GenerationRequest) (*schema.StreamReader[entity.ResponseChunk], error) {
	msg, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", a.name, err)
	}

	chunks := make([]entity.ResponseChunk, 0, 2)
	if msg != nil && msg.Content != "" {
		chunks = append(chunks, entity.ResponseChunk{
			Type:     entity.ChunkText,
			Content:  msg.Content,
			Tokens:   completionTokens(msg),
			Provider: a.name,
			Model:    req.Model,
		})
	}
	chunks = append(chunks, a.completeChunk(req))
	return schema.StreamReaderFromArray(chunks), nil
}

// pump 把上游消息流转换为响应块；消费方关闭读端时停止并释放上游
func (a *ChatAdapter) pump(ctx context.Context, cancel context.CancelFunc, upstream *schema.StreamReader[*schema.Message], w *schema.StreamWriter[entity.ResponseChunk], req entity.GenerationRequest) {
	defer cancel()
	defer upstream.Close()
	defer w.Close()

	for {
		msg, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			w.Send(a.completeChunk(req), nil)
			return
		}
		if err != nil {
			w.Send(a.errorChunk(req, a.describeStreamError(ctx, err)), nil)
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		chunk := entity.ResponseChunk{
			Type:     entity.ChunkToken,
			Content:  msg.Content,
			Tokens:   completionTokens(msg),
			Provider: a.name,
			Model:    req.Model,
		}
		if closed := w.Send(chunk, nil); closed {
			return
		}
	}
}

func (a *ChatAdapter) describeStreamError(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s stream timed out after %s", a.name, a.streamTimeout())
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		// 上游错误体可能很长，会原样进入标记注释
		return node.TruncateByRunes(msg, maxStreamErrorRunes)
	}
	return fmt.Sprintf("%s streaming error", a.name)
}

func (a *ChatAdapter) completeChunk(req entity.GenerationRequest) entity.ResponseChunk {
	return entity.ResponseChunk{
		Type:     entity.ChunkText,
		Content:  entity.CompletionMarker,
		Done:     true,
		Provider: a.name,
		Model:    req.Model,
	}
}

func (a *ChatAdapter) errorChunk(req entity.GenerationRequest, msg string) entity.ResponseChunk {
	return entity.ResponseChunk{
		Type:     entity.ChunkError,
		Content:  msg,
		Done:     true,
		Provider: a.name,
		Model:    req.Model,
	}
}

func (a *ChatAdapter) streamTimeout() time.Duration {
	if a.cfg.StreamTimeout > 0 {
		return a.cfg.StreamTimeout
	}
	return defaultStreamTimeout
}

func completionTokens(msg *schema.Message) int {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	return msg.ResponseMeta.Usage.CompletionTokens
}
