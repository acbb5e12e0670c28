package prompt

import (
	"strings"

	"sitegen-ai-api/internal/domain/entity"
)

// websiteRequirements 生成站点必须满足的工程要求
var websiteRequirements = []string{
	"Generate valid, modern HTML/CSS/JS",
	"Ensure WCAG 2.1 AA compliance",
	"Mobile-first responsive design",
	"Performance-optimized (LCP < 2.5s)",
	"SEO-friendly structure",
	"Cross-browser compatible",
	"Clean, maintainable code",
}

// BuildWebsitePrompt 组装站点生成提示词：工程要求 + 项目描述 + 用户偏好 + 品牌约束
func BuildWebsitePrompt(description string, prefs entity.UserPreferences) string {
	var b strings.Builder
	b.WriteString("You are a professional web developer creating production websites.\nRequirements:\n- ")
	b.WriteString(strings.Join(websiteRequirements, "\n- "))
	b.WriteString("\n\nProject Description:\n")
	b.WriteString(description)
	b.WriteString("\n")

	b.WriteString("\nUser Preferences:")
	b.WriteString("\n- Design Style: " + string(prefs.DesignStyle))
	b.WriteString("\n- Content Tone: " + string(prefs.ContentTone))
	b.WriteString("\n- Performance Priority: " + string(prefs.PerformancePriority))

	if brand := prefs.Brand; brand != nil {
		font := "system"
		if brand.Typography != nil && brand.Typography.FontFamily != "" {
			font = brand.Typography.FontFamily
		}
		b.WriteString("\nBrand:")
		b.WriteString("\n- Name: " + orNA(brand.Name))
		b.WriteString("\n- Primary: " + orNA(brand.PrimaryColor))
		b.WriteString("\n- Secondary: " + orNA(brand.SecondaryColor))
		b.WriteString("\n- Font: " + font)
	}

	b.WriteString("\n\nOutput HTML/CSS/JS suitable for immediate use. Include ")
	b.WriteString(entity.CompletionMarker)
	b.WriteString(" at the end.")
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
