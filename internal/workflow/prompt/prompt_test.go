package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"sitegen-ai-api/internal/domain/entity"
)

func TestBuildWebsitePrompt(t *testing.T) {
	prefs := entity.UserPreferences{
		DesignStyle:         entity.DesignStyleBold,
		ContentTone:         entity.ContentToneCasual,
		PerformancePriority: entity.PerformanceMax,
		Brand:               &entity.Brand{Name: "Acme", PrimaryColor: "#ff0000"},
	}
	got := BuildWebsitePrompt("A bakery landing page", prefs)

	for _, want := range []string{
		"- Ensure WCAG 2.1 AA compliance",
		"Project Description:\nA bakery landing page",
		"- Design Style: bold",
		"- Performance Priority: max",
		"- Name: Acme",
		"- Secondary: n/a",
		"- Font: system",
		"Include <!-- COMPLETE --> at the end.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q\n%s", want, got)
		}
	}
}

func TestBuildWebsitePromptWithoutBrand(t *testing.T) {
	got := BuildWebsitePrompt("x", entity.UserPreferences{}.WithDefaults())
	if strings.Contains(got, "Brand:") {
		t.Fatalf("unexpected brand block:\n%s", got)
	}
}

func TestRegistryFormatsSiteGenerationTemplate(t *testing.T) {
	r := NewRegistry()
	tpl, err := r.ChatTemplate(PromptSiteGenerationV1)
	if err != nil {
		t.Fatalf("ChatTemplate: %v", err)
	}
	msgs, err := tpl.Format(context.Background(), map[string]any{
		"operation": "generatePage",
		"prompt":    "Build a page",
		"context":   `{"constraints":[{"type":"a11y"}]}`,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "7. Clean, maintainable code") {
		t.Fatalf("system prompt = %q", msgs[0].Content)
	}
	user := msgs[1].Content
	for _, want := range []string{"Operation: generatePage", "Prompt:\nBuild a page", `{"constraints":[{"type":"a11y"}]}`, "End with <!-- COMPLETE --> when done."} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}

	if _, err := r.ChatTemplate("missing"); err == nil {
		t.Fatal("expected error for unknown prompt id")
	}
}
