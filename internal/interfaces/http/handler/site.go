// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"sitegen-ai-api/internal/application/pipeline"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/interfaces/http/dto"
	"sitegen-ai-api/internal/interfaces/http/middleware"
	"sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"
)

// Generator 站点生成服务
type Generator interface {
	Run(ctx context.Context, in pipeline.GenerateInput, sink pipeline.Sink)
}

// SiteHandler 站点生成与查询处理器
type SiteHandler struct {
	generator Generator
	// websites 可为 nil，此时查询接口返回 503
	websites repository.WebsiteRepository
}

// NewSiteHandler 创建站点处理器
func NewSiteHandler(generator Generator, websites repository.WebsiteRepository) *SiteHandler {
	return &SiteHandler{
		generator: generator,
		websites:  websites,
	}
}

// Generate 生成站点
// @Summary 生成站点
// @Description 以 SSE 推送 reserved/credits/progress/data/validation/error/done/aborted 事件
// @Tags Sites
// @Accept json
// @Produce text/event-stream
// @Param body body dto.GenerateSiteRequest true "生成请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/sites/generate [post]
func (h *SiteHandler) Generate(c *gin.Context) {
	var req dto.GenerateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		dto.Unauthorized(c, "user id is required")
		return
	}

	model := entity.Model(req.Model)
	if model != "" && !model.IsKnown() {
		dto.BadRequest(c, fmt.Sprintf("unknown model: %s", req.Model))
		return
	}
	op := entity.Operation(req.Operation)
	if op != "" && !op.IsValid() {
		dto.BadRequest(c, fmt.Sprintf("unknown operation: %s", req.Operation))
		return
	}
	var level entity.SafetyLevel
	if req.SafetyLevel != "" {
		level = entity.ParseSafetyLevel(req.SafetyLevel)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	sink := func(ev pipeline.Event) {
		// 客户端已断开时不再写出
		if ctx.Err() != nil && ev.Type != pipeline.EventAborted {
			return
		}
		c.SSEvent(string(ev.Type), ev.Data)
		c.Writer.Flush()
	}

	h.generator.Run(ctx, pipeline.GenerateInput{
		UserID:      userID,
		Plan:        entity.ParsePlan(c.GetString(middleware.ContextPlan)),
		Description: req.Description,
		Preferences: req.Preferences,
		Snapshot:    req.CurrentDesign,
		Options: pipeline.Options{
			Model:       model,
			Operation:   op,
			SafetyLevel: level,
		},
	}, sink)
}

// GetSite 获取站点产物
// @Summary 获取站点产物
// @Tags Sites
// @Produce json
// @Param id path string true "站点 ID"
// @Success 200 {object} dto.Response[dto.WebsiteResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sites/{id} [get]
func (h *SiteHandler) GetSite(c *gin.Context) {
	if h.websites == nil {
		dto.ServiceUnavailable(c, "website store not configured")
		return
	}
	ctx := c.Request.Context()

	website, err := h.websites.GetByID(ctx, dto.BindWebsiteID(c))
	if err != nil {
		if !errors.IsAppError(err) {
			logger.Error(ctx, "failed to get website", err)
		}
		dto.FromError(c, err)
		return
	}

	// 只能查看自己的站点
	if userID := c.GetString(middleware.ContextUserID); userID != "" && website.UserID != "" && website.UserID != userID {
		dto.NotFound(c, "website not found")
		return
	}
	dto.Success(c, dto.ToWebsiteResponse(website))
}

// ListSites 列出当前用户的站点
// @Summary 列出站点
// @Tags Sites
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.WebsiteListResponse]
// @Router /v1/sites [get]
func (h *SiteHandler) ListSites(c *gin.Context) {
	if h.websites == nil {
		dto.ServiceUnavailable(c, "website store not configured")
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		dto.Unauthorized(c, "user id is required")
		return
	}
	ctx := c.Request.Context()

	result, err := h.websites.ListByUser(ctx, userID, dto.BindPage(c))
	if err != nil {
		logger.Error(ctx, "failed to list websites", err)
		dto.FromError(c, err)
		return
	}
	list, meta := dto.ToWebsiteList(result)
	dto.SuccessWithPage(c, list, meta)
}
