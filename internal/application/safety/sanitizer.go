package safety

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"

	"sitegen-ai-api/internal/domain/entity"
)

// sanitizerRemovalThreshold 清洗后移除超过该比例的内容视为存在不安全片段
const sanitizerRemovalThreshold = 0.2

// Sanitizer 标记清洗协作方
type Sanitizer interface {
	Sanitize(markup string) string
}

// BluemondaySanitizer 基于 bluemonday 的清洗器，保留完整页面结构与样式
type BluemondaySanitizer struct {
	policy *bluemonday.Policy
}

// NewBluemondaySanitizer 在 UGC 策略基础上放开文档结构、表单与 ARIA 属性
func NewBluemondaySanitizer() *BluemondaySanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowUnsafe(true)
	p.AllowElements(
		"html", "head", "body", "title", "meta", "style", "link",
		"main", "header", "footer", "nav", "section", "article", "aside", "figure", "figcaption",
		"form", "label", "input", "select", "option", "textarea", "button",
	)
	p.AllowAttrs("lang").OnElements("html")
	p.AllowAttrs("charset", "name", "content").OnElements("meta")
	p.AllowAttrs("rel", "href", "type").OnElements("link")
	p.AllowAttrs("type", "name", "value", "placeholder", "for", "required", "disabled", "checked").Globally()
	p.AllowAttrs("class", "role", "aria-label", "aria-labelledby", "aria-describedby", "aria-hidden", "tabindex").Globally()
	p.AllowAttrs("loading", "width", "height", "srcset", "sizes").OnElements("img")
	return &BluemondaySanitizer{policy: p}
}

func (s *BluemondaySanitizer) Sanitize(markup string) string {
	return s.policy.Sanitize(markup)
}

func checkSanitizerDiff(s Sanitizer, markup string) (entity.GenerationIssue, bool) {
	if len(markup) == 0 {
		return entity.GenerationIssue{}, false
	}
	clean := s.Sanitize(markup)
	removed := len(markup) - len(clean)
	if removed <= 0 {
		return entity.GenerationIssue{}, false
	}
	ratio := float64(removed) / float64(len(markup))
	if ratio <= sanitizerRemovalThreshold {
		return entity.GenerationIssue{}, false
	}
	return entity.GenerationIssue{
		ID:           "sanitizer-stripped-content",
		Type:         entity.IssueSecurity,
		Message:      fmt.Sprintf("Sanitizer removed %.0f%% of the markup; unsafe content was stripped.", ratio*100),
		Severity:     entity.SeverityMedium,
		AIFixable:    true,
		SuggestedFix: "Regenerate without scripts, inline handlers or unsupported embeds.",
	}, true
}
