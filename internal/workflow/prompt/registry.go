// Package prompt 站点生成提示词：内嵌模板注册表与用户描述拼装
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识，对应 templates/<id>.system.txt 与 templates/<id>.user.txt
type PromptID string

// PromptSiteGenerationV1 提供商适配器使用的生成提示词
const PromptSiteGenerationV1 PromptID = "site_generation_v1"

var known = map[PromptID]bool{
	PromptSiteGenerationV1: true,
}

// Registry 按 id 懒加载并缓存 eino ChatTemplate（FString 占位符）
type Registry struct {
	mu    sync.Mutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{cache: map[PromptID]einoprompt.ChatTemplate{}}
}

// ChatTemplate system + user 两条消息的模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	system, err := load(id, "system")
	if err != nil {
		return nil, err
	}
	user, err := load(id, "user")
	if err != nil {
		return nil, err
	}
	tpl := einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// SystemText system 部分原文（不做占位符替换）
func (r *Registry) SystemText(id PromptID) (string, error) {
	return load(id, "system")
}

func load(id PromptID, part string) (string, error) {
	if !known[id] {
		return "", fmt.Errorf("unknown prompt id: %s", id)
	}
	b, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.%s.txt", id, part))
	if err != nil {
		return "", fmt.Errorf("prompt %s/%s: %w", id, part, err)
	}
	return strings.TrimSpace(string(b)), nil
}
