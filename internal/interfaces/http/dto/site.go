package dto

import (
	"time"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
)

// GenerateSiteRequest 站点生成请求
type GenerateSiteRequest struct {
	Description string                 `json:"description" binding:"required,max=8000"`
	Preferences entity.UserPreferences `json:"preferences"`
	// UserID 未认证时也可由请求体携带
	UserID string `json:"userId,omitempty"`

	Model         string                  `json:"model,omitempty"`
	Operation     string                  `json:"operation,omitempty"`
	SafetyLevel   string                  `json:"safetyLevel,omitempty"`
	CurrentDesign *entity.WebsiteSnapshot `json:"currentDesign,omitempty"`
}

// WebsiteResponse 站点产物
type WebsiteResponse struct {
	ID        string                     `json:"id"`
	UserID    string                     `json:"userId,omitempty"`
	Pages     []entity.Page              `json:"pages"`
	Assets    entity.Assets              `json:"assets"`
	Theme     *entity.ThemeTokens        `json:"theme,omitempty"`
	Metadata  *entity.GenerationMetadata `json:"metadata,omitempty"`
	CreatedAt string                     `json:"createdAt,omitempty"`
}

// ToWebsiteResponse 转换为响应
func ToWebsiteResponse(w *entity.Website) *WebsiteResponse {
	if w == nil {
		return nil
	}
	resp := &WebsiteResponse{
		ID:       w.ID,
		UserID:   w.UserID,
		Pages:    w.Pages,
		Assets:   w.Assets,
		Theme:    w.Theme,
		Metadata: w.Metadata,
	}
	if w.Metadata != nil {
		resp.CreatedAt = w.Metadata.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// WebsiteListResponse 站点列表
type WebsiteListResponse struct {
	Websites []*WebsiteResponse `json:"websites"`
}

// ToWebsiteList 转换分页结果
func ToWebsiteList(result *repository.PagedResult[*entity.Website]) (*WebsiteListResponse, *PageMeta) {
	out := &WebsiteListResponse{Websites: make([]*WebsiteResponse, 0, len(result.Items))}
	for _, w := range result.Items {
		out.Websites = append(out.Websites, ToWebsiteResponse(w))
	}
	return out, PageMetaOf(result)
}
