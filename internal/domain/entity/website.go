package entity

import "time"

type DesignStyle string

const (
	DesignStyleMinimal   DesignStyle = "minimal"
	DesignStyleBold      DesignStyle = "bold"
	DesignStyleCorporate DesignStyle = "corporate"
	DesignStyleCreative  DesignStyle = "creative"
)

type ContentTone string

const (
	ContentToneFormal    ContentTone = "formal"
	ContentToneCasual    ContentTone = "casual"
	ContentToneTechnical ContentTone = "technical"
	ContentToneFriendly  ContentTone = "friendly"
)

type PerformancePriority string

const (
	PerformanceMax      PerformancePriority = "max"
	PerformanceBalanced PerformancePriority = "balanced"
	PerformanceFeatures PerformancePriority = "features"
)

// Typography 字体设置
type Typography struct {
	FontFamily string `json:"fontFamily,omitempty" bson:"font_family,omitempty"`
	Scale      string `json:"scale,omitempty" bson:"scale,omitempty"`
}

// Brand 品牌约束
type Brand struct {
	Name           string      `json:"name,omitempty" bson:"name,omitempty"`
	PrimaryColor   string      `json:"primaryColor,omitempty" bson:"primary_color,omitempty"`
	SecondaryColor string      `json:"secondaryColor,omitempty" bson:"secondary_color,omitempty"`
	Typography     *Typography `json:"typography,omitempty" bson:"typography,omitempty"`
	LogoURL        string      `json:"logoUrl,omitempty" bson:"logo_url,omitempty"`
}

// UserPreferences 用户偏好
type UserPreferences struct {
	DesignStyle         DesignStyle         `json:"designStyle"`
	ContentTone         ContentTone         `json:"contentTone"`
	PerformancePriority PerformancePriority `json:"performancePriority"`
	Brand               *Brand              `json:"brand,omitempty"`
}

// WithDefaults 补全缺省偏好
func (p UserPreferences) WithDefaults() UserPreferences {
	if p.DesignStyle == "" {
		p.DesignStyle = DesignStyleMinimal
	}
	if p.ContentTone == "" {
		p.ContentTone = ContentToneFriendly
	}
	if p.PerformancePriority == "" {
		p.PerformancePriority = PerformanceBalanced
	}
	return p
}

// ThemeTokens 主题令牌
type ThemeTokens struct {
	Colors       map[string]string `json:"colors" bson:"colors"`
	Typography   Typography        `json:"typography" bson:"typography"`
	SpacingScale []int             `json:"spacingScale,omitempty" bson:"spacing_scale,omitempty"`
}

// Page 站点页面
type Page struct {
	ID    string `json:"id" bson:"id"`
	Path  string `json:"path" bson:"path"`
	Title string `json:"title,omitempty" bson:"title,omitempty"`
	HTML  string `json:"html,omitempty" bson:"html,omitempty"`
	CSS   string `json:"css,omitempty" bson:"css,omitempty"`
	JS    string `json:"js,omitempty" bson:"js,omitempty"`
}

type ImageAsset struct {
	Path   string `json:"path" bson:"path"`
	Width  int    `json:"width,omitempty" bson:"width,omitempty"`
	Height int    `json:"height,omitempty" bson:"height,omitempty"`
	Format string `json:"format,omitempty" bson:"format,omitempty"`
}

type FontAsset struct {
	Family string `json:"family" bson:"family"`
	URL    string `json:"url,omitempty" bson:"url,omitempty"`
	Weight string `json:"weight,omitempty" bson:"weight,omitempty"`
}

type OtherAsset struct {
	Path string `json:"path" bson:"path"`
	Type string `json:"type" bson:"type"`
}

// Assets 资源清单
type Assets struct {
	Images []ImageAsset `json:"images" bson:"images"`
	Fonts  []FontAsset  `json:"fonts,omitempty" bson:"fonts,omitempty"`
	Other  []OtherAsset `json:"other,omitempty" bson:"other,omitempty"`
}

// WebsiteSnapshot 当前设计快照（增量生成时提供）
type WebsiteSnapshot struct {
	Pages     []Page         `json:"pages"`
	Assets    Assets         `json:"assets"`
	Theme     *ThemeTokens   `json:"theme,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// GeneratedBy 生成来源
type GeneratedBy string

const (
	GeneratedByAI    GeneratedBy = "AI"
	GeneratedByUser  GeneratedBy = "user"
	GeneratedByMixed GeneratedBy = "mixed"
)

// GenerationMetadata 生成元数据
type GenerationMetadata struct {
	GeneratedBy GeneratedBy  `json:"generatedBy" bson:"generated_by"`
	Model       Model        `json:"model,omitempty" bson:"model,omitempty"`
	Provider    ProviderName `json:"provider,omitempty" bson:"provider,omitempty"`
	TokensUsed  int          `json:"tokensUsed" bson:"tokens_used"`
	Confidence  float64      `json:"confidence" bson:"confidence"`
	CreatedAt   time.Time    `json:"createdAt" bson:"created_at"`
}

// Website 生成产物
type Website struct {
	ID       string              `json:"id,omitempty" bson:"_id,omitempty"`
	UserID   string              `json:"userId,omitempty" bson:"user_id,omitempty"`
	Pages    []Page              `json:"pages" bson:"pages"`
	Assets   Assets              `json:"assets" bson:"assets"`
	Theme    *ThemeTokens        `json:"theme,omitempty" bson:"theme,omitempty"`
	Metadata *GenerationMetadata `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// IndexHTML 返回首页 HTML
func (w *Website) IndexHTML() string {
	if w == nil {
		return ""
	}
	for _, p := range w.Pages {
		if p.Path == "/" {
			return p.HTML
		}
	}
	return ""
}
