package admission

import (
	"context"
	"fmt"
	"time"

	"sitegen-ai-api/internal/domain/entity"
	apperrors "sitegen-ai-api/pkg/errors"
)

// 拒绝原因
const (
	ReasonInsufficientCredits   = "insufficient_credits"
	ReasonInsufficientRateLimit = "insufficient_rate_limit"
	ReasonInsufficientDaily     = "insufficient_daily_limit"
)

const dailyWindow = 24 * time.Hour

// Request 准入请求
type Request struct {
	UserID    string
	Plan      entity.Plan
	Operation entity.Operation
	// Identifier 限流标识，默认使用 UserID
	Identifier string
}

// Controller 两阶段准入：先限流，再预留积分；任何一步拒绝都不产生扣费，也不占用限流计数
type Controller struct {
	credits *Credits
	limiter *RateLimiter
	daily   *RateLimiter
}

// NewController 创建准入控制器；limiter 与 daily 可为 nil
func NewController(credits *Credits, limiter, daily *RateLimiter) *Controller {
	return &Controller{credits: credits, limiter: limiter, daily: daily}
}

// Credits 积分服务
func (c *Controller) Credits() *Credits {
	return c.credits
}

// Admit 通过时返回预留，调用方必须在结束时 Commit 或 Refund
func (c *Controller) Admit(ctx context.Context, req Request) (*Reservation, error) {
	if req.UserID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("user id is required")
	}
	if req.Operation == "" {
		req.Operation = entity.OperationGeneratePage
	}
	if !req.Operation.IsValid() {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown operation: %s", req.Operation))
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.UserID
	}

	// 后续步骤拒绝时归还已占用的窗口计数
	var releases []func(context.Context)
	rollback := func() {
		for _, release := range releases {
			release(context.WithoutCancel(ctx))
		}
	}

	if c.limiter != nil {
		d := c.limiter.Check(ctx, identifier)
		if !d.Allowed {
			return nil, apperrors.ErrRateLimited.WithDetail(
				fmt.Sprintf("at most %d requests per %s", c.limiter.MaxRequests(), c.limiter.Window()))
		}
		releases = append(releases, c.limiter.releaser(d))
	}

	if c.daily != nil && req.Plan == entity.PlanFree {
		if limit := c.credits.Pricing().DailyLimit(req.Operation); limit > 0 {
			key := fmt.Sprintf("%s:%s", req.Operation, req.UserID)
			d := c.daily.CheckN(ctx, key, limit, dailyWindow)
			if !d.Allowed {
				rollback()
				return nil, apperrors.ErrDailyLimitReached.WithDetail(
					fmt.Sprintf("free tier allows %d %s per day", limit, req.Operation))
			}
			releases = append(releases, c.daily.releaser(d))
		}
	}

	if _, err := c.credits.Ensure(ctx, req.UserID); err != nil {
		rollback()
		return nil, err
	}
	res, err := c.credits.reserve(ctx, req.UserID, req.Operation, c.credits.Pricing().OperationCost(req.Operation))
	if err != nil {
		rollback()
		return nil, err
	}
	// 退款的生成不占用配额
	res.releases = releases
	return res, nil
}

// Reason 拒绝错误对应的原因标识，非准入拒绝时返回空
func Reason(err error) string {
	appErr := apperrors.AsAppError(err)
	switch appErr.Code {
	case apperrors.CodeInsufficientCredits:
		return ReasonInsufficientCredits
	case apperrors.CodeRateLimited:
		if appErr.Message == ReasonInsufficientDaily {
			return ReasonInsufficientDaily
		}
		return ReasonInsufficientRateLimit
	default:
		return ""
	}
}
