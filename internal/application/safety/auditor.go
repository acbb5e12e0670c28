package safety

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitegen-ai-api/internal/domain/entity"
)

// Finding 结构审计发现
type Finding struct {
	Rule         string
	Message      string
	SuggestedFix string
}

func (f Finding) issue(severity entity.Severity) entity.GenerationIssue {
	return entity.GenerationIssue{
		ID:           "a11y-audit-" + f.Rule,
		Type:         entity.IssueAccessibility,
		Message:      f.Message,
		Severity:     severity,
		AIFixable:    true,
		SuggestedFix: f.SuggestedFix,
	}
}

// Auditor 无障碍结构审计协作方
type Auditor interface {
	Audit(ctx context.Context, markup string) ([]Finding, error)
}

// StructuralAuditor 解析 DOM 树做结构级审计：语言声明、标题层级、主内容区、表单标签
type StructuralAuditor struct{}

// NewStructuralAuditor 创建结构审计器
func NewStructuralAuditor() *StructuralAuditor {
	return &StructuralAuditor{}
}

type auditState struct {
	htmlLang     bool
	htmlSeen     bool
	h1Count      int
	lastHeading  int
	skipped      bool
	hasMain      bool
	labelFor     map[string]bool
	controls     []*html.Node
	insideLabels map[*html.Node]bool
}

func (a *StructuralAuditor) Audit(ctx context.Context, markup string) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	st := &auditState{
		labelFor:     make(map[string]bool),
		insideLabels: make(map[*html.Node]bool),
	}
	walk(doc, st, false)
	// 解析器总会补出 <html>，仅对完整文档检查语言声明
	st.htmlSeen = strings.Contains(strings.ToLower(markup), "<html")

	var findings []Finding
	if st.htmlSeen && !st.htmlLang {
		findings = append(findings, Finding{
			Rule:         "html-lang",
			Message:      "Document does not declare a language",
			SuggestedFix: `Add a lang attribute to <html>, e.g. <html lang="en">.`,
		})
	}
	switch {
	case st.h1Count == 0:
		findings = append(findings, Finding{
			Rule:         "page-heading",
			Message:      "Page has no top-level <h1> heading",
			SuggestedFix: "Add exactly one <h1> describing the page.",
		})
	case st.h1Count > 1:
		findings = append(findings, Finding{
			Rule:         "page-heading",
			Message:      "Page has more than one <h1> heading",
			SuggestedFix: "Keep a single <h1> and demote the others.",
		})
	}
	if st.skipped {
		findings = append(findings, Finding{
			Rule:         "heading-order",
			Message:      "Heading levels skip a level",
			SuggestedFix: "Nest headings sequentially (h1, h2, h3) without gaps.",
		})
	}
	if !st.hasMain {
		findings = append(findings, Finding{
			Rule:         "landmark-main",
			Message:      "Page has no <main> landmark",
			SuggestedFix: "Wrap the primary content in a <main> element.",
		})
	}
	for _, n := range st.controls {
		if st.insideLabels[n] || hasNodeAttr(n, "aria-label") || hasNodeAttr(n, "aria-labelledby") {
			continue
		}
		if id := nodeAttr(n, "id"); id != "" && st.labelFor[id] {
			continue
		}
		findings = append(findings, Finding{
			Rule:         "form-label",
			Message:      "Form control has no associated label",
			SuggestedFix: "Associate every form control with a <label for> or an aria-label.",
		})
		break
	}
	return findings, nil
}

func walk(n *html.Node, st *auditState, inLabel bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Html:
			st.htmlLang = strings.TrimSpace(nodeAttr(n, "lang")) != ""
		case atom.Main:
			st.hasMain = true
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.Data[1] - '0')
			if level == 1 {
				st.h1Count++
			}
			if st.lastHeading > 0 && level > st.lastHeading+1 {
				st.skipped = true
			}
			st.lastHeading = level
		case atom.Label:
			if f := nodeAttr(n, "for"); f != "" {
				st.labelFor[f] = true
			}
			inLabel = true
		case atom.Input:
			switch strings.ToLower(nodeAttr(n, "type")) {
			case "hidden", "submit", "button", "reset", "image":
			default:
				st.controls = append(st.controls, n)
				st.insideLabels[n] = inLabel
			}
		case atom.Select, atom.Textarea:
			st.controls = append(st.controls, n)
			st.insideLabels[n] = inLabel
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, st, inLabel)
	}
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasNodeAttr(n *html.Node, key string) bool {
	return strings.TrimSpace(nodeAttr(n, key)) != ""
}
