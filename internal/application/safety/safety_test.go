package safety

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
)

const cleanDocument = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<title>Bakery</title>
<meta name="description" content="Fresh bread every morning">
</head>
<body>
<main>
<h1>Corner Bakery</h1>
<h2>Menu</h2>
<p>Sourdough, rye and seasonal pastries baked daily.</p>
<img src="/bread.jpg" alt="A loaf of sourdough">
<a href="/menu">See the full menu</a>
<button type="button">Order now</button>
</main>
</body>
</html>`

func findIssue(res entity.ValidationResult, id string) (entity.GenerationIssue, bool) {
	for _, i := range res.Issues {
		if i.ID == id {
			return i, true
		}
	}
	return entity.GenerationIssue{}, false
}

func TestCleanDocumentPasses(t *testing.T) {
	l := NewLayerFromConfig(config.SafetyConfig{Level: "strict", Sanitizer: true, StructuralAudit: true})
	res := l.Validate(context.Background(), cleanDocument)

	if !res.Passed || len(res.Issues) != 0 {
		t.Fatalf("clean document: passed=%v issues=%+v", res.Passed, res.Issues)
	}
	if res.ConfidenceScore != 0.9 {
		t.Fatalf("confidence = %v", res.ConfidenceScore)
	}
}

func TestImageWithoutAltIsFlagged(t *testing.T) {
	res := NewLayer(entity.SafetyStrict, nil, nil).Validate(context.Background(), `<img src="x.png">`)

	issue, ok := findIssue(res, "a11y-image-missing-alt-attribute")
	if !ok {
		t.Fatalf("missing a11y issue: %+v", res.Issues)
	}
	if !issue.AIFixable || issue.Type != entity.IssueAccessibility || issue.Severity != entity.SeverityMedium {
		t.Fatalf("issue = %+v", issue)
	}
	if res.Passed {
		t.Fatal("medium issue must fail the verdict")
	}
	if len(res.AIFixesAvailable) != 1 || res.AIFixesAvailable[0] != issue.SuggestedFix {
		t.Fatalf("fixes = %v", res.AIFixesAvailable)
	}
}

func TestInlineScriptIsHighSeverity(t *testing.T) {
	res := NewLayer(entity.SafetyMinimal, nil, nil).Validate(context.Background(), `<p>hi</p><script>alert(1)</script>`)

	issue, ok := findIssue(res, "unsafe-inline")
	if !ok {
		t.Fatalf("missing security issue: %+v", res.Issues)
	}
	if issue.Severity != entity.SeverityHigh || issue.Type != entity.IssueSecurity {
		t.Fatalf("issue = %+v", issue)
	}
	if res.Passed {
		t.Fatal("high severity must fail")
	}
	if res.ConfidenceScore != 0.6 {
		t.Fatalf("confidence = %v", res.ConfidenceScore)
	}
}

func TestSecurityPatterns(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"event handler", `<div onclick="steal()">x</div>`, "unsafe-inline"},
		{"single quoted handler", `<img alt="" onerror='x()'>`, "unsafe-inline"},
		{"javascript url", `<a href="javascript:void(0)">x</a>`, "js-url"},
		{"data html url", `<iframe src="data:text/html;base64,PHA+"></iframe>`, "js-url"},
		{"executable link", `<a href="https://cdn.example.com/setup.exe">download</a>`, "external-exe"},
		{"remote script file", `<a href="http://evil.example/x.js?v=1">x</a>`, "external-exe"},
	}
	l := NewLayer(entity.SafetyModerate, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := l.Validate(context.Background(), tt.markup)
			if _, ok := findIssue(res, tt.want); !ok {
				t.Fatalf("expected %s in %+v", tt.want, res.Issues)
			}
		})
	}

	res := l.Validate(context.Background(), `<meta name="description" content="options and conditions">`)
	for _, i := range res.Issues {
		if i.Type == entity.IssueSecurity {
			t.Fatalf("content attribute misread as handler: %+v", i)
		}
	}
}

func TestAccessibilityHeuristics(t *testing.T) {
	markup := `<button><svg></svg></button><button aria-label="Close"></button><button>Send</button><a name="top">top</a>`
	res := NewLayer(entity.SafetyModerate, nil, nil).Validate(context.Background(), markup)

	for _, id := range []string{"a11y-button-lacks-accessible-label", "a11y-anchor-tag-missing-href"} {
		issue, ok := findIssue(res, id)
		if !ok {
			t.Fatalf("missing %s in %+v", id, res.Issues)
		}
		if issue.Severity != entity.SeverityLow {
			t.Fatalf("moderate level severity = %s", issue.Severity)
		}
	}
	if !res.Passed {
		t.Fatal("only low issues must pass")
	}
	if res.ConfidenceScore != 0.9 {
		t.Fatalf("confidence = %v", res.ConfidenceScore)
	}
}

func TestSEOHeuristics(t *testing.T) {
	res := NewLayer(entity.SafetyStrict, nil, nil).Validate(context.Background(),
		`<title>  </title><meta name="description"><main><h1>x</h1></main>`)

	for _, id := range []string{"seo-empty-title", "seo-meta-description-missing-content"} {
		issue, ok := findIssue(res, id)
		if !ok {
			t.Fatalf("missing %s in %+v", id, res.Issues)
		}
		if issue.Severity != entity.SeverityLow || issue.Type != entity.IssueSEO {
			t.Fatalf("issue = %+v", issue)
		}
	}
}

type halfSanitizer struct{}

func (halfSanitizer) Sanitize(markup string) string { return markup[:len(markup)/2] }

func TestSanitizerDiff(t *testing.T) {
	res := NewLayer(entity.SafetyModerate, halfSanitizer{}, nil).Validate(context.Background(), "<p>plain text paragraph</p>")
	issue, ok := findIssue(res, "sanitizer-stripped-content")
	if !ok || issue.Severity != entity.SeverityMedium {
		t.Fatalf("sanitizer issue = %+v, %v", issue, ok)
	}
	if res.Passed || res.ConfidenceScore != 0.75 {
		t.Fatalf("passed=%v confidence=%v", res.Passed, res.ConfidenceScore)
	}

	payload := "<p>hi</p><script>" + strings.Repeat("document.cookie;", 20) + "</script>"
	res = NewLayer(entity.SafetyModerate, NewBluemondaySanitizer(), nil).Validate(context.Background(), payload)
	if _, ok := findIssue(res, "sanitizer-stripped-content"); !ok {
		t.Fatalf("bluemonday did not strip the script body: %+v", res.Issues)
	}
}

func TestStructuralAuditor(t *testing.T) {
	findings, err := NewStructuralAuditor().Audit(context.Background(), `<h2>About</h2><h4>Team</h4><input id="q">`)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, f := range findings {
		got[f.Rule] = true
	}
	for _, rule := range []string{"page-heading", "heading-order", "landmark-main", "form-label"} {
		if !got[rule] {
			t.Fatalf("missing %s in %+v", rule, findings)
		}
	}
	if got["html-lang"] {
		t.Fatal("fragments must not be checked for a language declaration")
	}

	findings, _ = NewStructuralAuditor().Audit(context.Background(),
		`<html><body><main><h1>x</h1><label for="q">Search</label><input id="q"><label>Name <input></label></main></body></html>`)
	if len(findings) != 1 || findings[0].Rule != "html-lang" {
		t.Fatalf("findings = %+v", findings)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	l := NewLayerFromConfig(config.SafetyConfig{Level: "strict", Sanitizer: true, StructuralAudit: true})
	markup := `<img src="x.png"><a href="javascript:x()">x</a><title></title><script>alert(1)</script>`

	first := l.Validate(context.Background(), markup)
	second := l.Validate(context.Background(), markup)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestWithLevel(t *testing.T) {
	strict := NewLayer("", nil, nil)
	if strict.Level() != entity.SafetyStrict {
		t.Fatalf("default level = %s", strict.Level())
	}
	res := strict.WithLevel(entity.SafetyMinimal).Validate(context.Background(), `<img src="x.png">`)
	if !res.Passed {
		t.Fatalf("minimal level a11y issue must be low: %+v", res.Issues)
	}
	if strict.Level() != entity.SafetyStrict {
		t.Fatal("WithLevel mutated the receiver")
	}
}
