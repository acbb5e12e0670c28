package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"sitegen-ai-api/internal/application/admission"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	"sitegen-ai-api/internal/interfaces/http/dto"
	"sitegen-ai-api/internal/interfaces/http/middleware"
	"sitegen-ai-api/pkg/logger"
)

// WebhookSecretHeader 积分发放回调携带的密钥头
const WebhookSecretHeader = "X-Webhook-Secret"

// CreditsHandler 积分余额、流水与发放
type CreditsHandler struct {
	credits       *admission.Credits
	ledger        repository.CreditLedgerRepository
	webhookSecret string
}

// NewCreditsHandler 创建积分处理器；ledger 可为 nil
func NewCreditsHandler(credits *admission.Credits, ledger repository.CreditLedgerRepository, webhookSecret string) *CreditsHandler {
	return &CreditsHandler{
		credits:       credits,
		ledger:        ledger,
		webhookSecret: webhookSecret,
	}
}

// GetBalance 当前用户积分余额，首次访问时按初始余额开户
// @Summary 积分余额
// @Tags Credits
// @Produce json
// @Success 200 {object} dto.Response[dto.CreditsResponse]
// @Router /v1/credits [get]
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		dto.Unauthorized(c, "user id is required")
		return
	}
	ctx := c.Request.Context()

	balance, err := h.credits.Ensure(ctx, userID)
	if err != nil {
		logger.Error(ctx, "failed to read credits", err)
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.CreditsResponse{UserID: userID, Balance: balance})
}

// ListLedger 当前用户的积分流水
// @Summary 积分流水
// @Tags Credits
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.LedgerListResponse]
// @Router /v1/credits/ledger [get]
func (h *CreditsHandler) ListLedger(c *gin.Context) {
	if h.ledger == nil {
		dto.ServiceUnavailable(c, "credit ledger not configured")
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		dto.Unauthorized(c, "user id is required")
		return
	}
	ctx := c.Request.Context()

	result, err := h.ledger.ListByUser(ctx, userID, dto.BindPage(c))
	if err != nil {
		logger.Error(ctx, "failed to list credit ledger", err)
		dto.FromError(c, err)
		return
	}
	resp := &dto.LedgerListResponse{Entries: make([]*dto.LedgerEntryResponse, 0, len(result.Items))}
	for _, e := range result.Items {
		resp.Entries = append(resp.Entries, dto.ToLedgerEntryResponse(e))
	}
	dto.SuccessWithPage(c, resp, dto.PageMetaOf(result))
}

// Grant 订阅回调发放积分，需携带共享密钥
// @Summary 发放积分
// @Tags Credits
// @Accept json
// @Produce json
// @Param body body dto.GrantCreditsRequest true "发放请求"
// @Success 200 {object} dto.Response[dto.CreditsResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/credits/grant [post]
func (h *CreditsHandler) Grant(c *gin.Context) {
	secret := c.GetHeader(WebhookSecretHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		dto.Error(c, http.StatusForbidden, "invalid webhook secret")
		return
	}

	var req dto.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	var (
		balance int64
		err     error
	)
	if req.Amount > 0 {
		balance, err = h.credits.Grant(ctx, req.UserID, req.Amount)
	} else {
		balance, err = h.credits.GrantPlan(ctx, req.UserID, entity.ParsePlan(req.Plan))
	}
	if err != nil {
		logger.Error(ctx, "failed to grant credits", err, "target_user", req.UserID)
		dto.FromError(c, err)
		return
	}
	logger.Info(ctx, "credits granted", "target_user", req.UserID, "plan", req.Plan, "amount", req.Amount, "balance", balance)
	dto.Success(c, &dto.CreditsResponse{UserID: req.UserID, Balance: balance})
}
