package safety

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitegen-ai-api/internal/domain/entity"
)

var (
	inlineScriptRe = regexp.MustCompile(`(?i)<script[\s>]|\son[a-z]+\s*=\s*("[^"]*"|'[^']*')`)
	jsURLRe        = regexp.MustCompile(`(?i)\b(?:javascript:|data:text/html)`)
	unsafeLinkRe   = regexp.MustCompile(`(?i)https?://[^\s"']+\.(?:exe|js|bat|cmd|sh)(?:\?[^\s"']*)?\b`)
)

func checkMaliciousCode(markup string) []entity.GenerationIssue {
	var issues []entity.GenerationIssue

	if inlineScriptRe.MatchString(markup) {
		issues = append(issues, entity.GenerationIssue{
			ID:           "unsafe-inline",
			Type:         entity.IssueSecurity,
			Message:      "Inline <script> or event handlers detected. Disallowed under CSP.",
			Severity:     entity.SeverityHigh,
			AIFixable:    true,
			SuggestedFix: "Remove inline scripts and on* handlers. Use external scripts with nonce/CSP and add listeners via JS.",
		})
	}

	if jsURLRe.MatchString(markup) {
		issues = append(issues, entity.GenerationIssue{
			ID:           "js-url",
			Type:         entity.IssueSecurity,
			Message:      "javascript: or data:text/html URLs detected. These are unsafe.",
			Severity:     entity.SeverityHigh,
			AIFixable:    true,
			SuggestedFix: "Replace javascript: links with proper event handlers and safe URLs.",
		})
	}

	if unsafeLinkRe.MatchString(markup) {
		issues = append(issues, entity.GenerationIssue{
			ID:           "external-exe",
			Type:         entity.IssueSecurity,
			Message:      "Links to potentially dangerous binary or script files detected.",
			Severity:     entity.SeverityHigh,
			AIFixable:    true,
			SuggestedFix: "Remove unsafe external links and host vetted assets only.",
		})
	}

	return issues
}

type rule struct {
	message string
	found   bool
}

// id 由规则描述派生，例如 "Image missing alt attribute" -> a11y-image-missing-alt-attribute
func (r rule) id(prefix string) string {
	return prefix + "-" + strings.Join(strings.Fields(strings.ToLower(r.message)), "-")
}

type scanResult struct {
	imageNoAlt    rule
	buttonNoLabel rule
	anchorNoHref  rule
	emptyTitle    rule
	metaNoContent rule
}

// scan 单次遍历 token 流，收集各启发式规则的命中情况
func scan(markup string) scanResult {
	res := scanResult{
		imageNoAlt:    rule{message: "Image missing alt attribute"},
		buttonNoLabel: rule{message: "Button lacks accessible label"},
		anchorNoHref:  rule{message: "Anchor tag missing href"},
		emptyTitle:    rule{message: "Empty title"},
		metaNoContent: rule{message: "Meta description missing content"},
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		inButton      bool
		buttonLabeled bool
		inTitle       bool
		titleText     bool
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if inButton && !buttonLabeled {
				res.buttonNoLabel.found = true
			}
			return res

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Img:
				if !hasAttr(tok, "alt") {
					res.imageNoAlt.found = true
				}
				if inButton && attrValue(tok, "alt") != "" {
					buttonLabeled = true
				}
			case atom.Button:
				inButton = true
				buttonLabeled = hasNonEmptyAttr(tok, "aria-label", "aria-labelledby", "title")
				if tt == html.SelfClosingTagToken {
					if !buttonLabeled {
						res.buttonNoLabel.found = true
					}
					inButton = false
				}
			case atom.A:
				if !hasAttr(tok, "href") {
					res.anchorNoHref.found = true
				}
			case atom.Title:
				inTitle, titleText = true, false
			case atom.Meta:
				if strings.EqualFold(attrValue(tok, "name"), "description") && !hasAttr(tok, "content") {
					res.metaNoContent.found = true
				}
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Button:
				if inButton && !buttonLabeled {
					res.buttonNoLabel.found = true
				}
				inButton = false
			case atom.Title:
				if inTitle && !titleText {
					res.emptyTitle.found = true
				}
				inTitle = false
			}

		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) == "" {
				continue
			}
			if inButton {
				buttonLabeled = true
			}
			if inTitle {
				titleText = true
			}
		}
	}
}

func checkAccessibility(markup string, severity entity.Severity) []entity.GenerationIssue {
	res := scan(markup)
	var issues []entity.GenerationIssue
	for _, r := range []rule{res.imageNoAlt, res.buttonNoLabel, res.anchorNoHref} {
		if !r.found {
			continue
		}
		issues = append(issues, entity.GenerationIssue{
			ID:           r.id("a11y"),
			Type:         entity.IssueAccessibility,
			Message:      r.message,
			Severity:     severity,
			AIFixable:    true,
			SuggestedFix: "Fix accessibility issue: " + r.message,
		})
	}
	return issues
}

func checkSEO(markup string) []entity.GenerationIssue {
	res := scan(markup)
	var issues []entity.GenerationIssue
	for _, r := range []rule{res.emptyTitle, res.metaNoContent} {
		if !r.found {
			continue
		}
		issues = append(issues, entity.GenerationIssue{
			ID:           r.id("seo"),
			Type:         entity.IssueSEO,
			Message:      r.message,
			Severity:     entity.SeverityLow,
			AIFixable:    true,
			SuggestedFix: "Fix SEO issue: " + r.message,
		})
	}
	return issues
}

func hasAttr(tok html.Token, key string) bool {
	for _, a := range tok.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasNonEmptyAttr(tok html.Token, keys ...string) bool {
	for _, k := range keys {
		if strings.TrimSpace(attrValue(tok, k)) != "" {
			return true
		}
	}
	return false
}

func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
