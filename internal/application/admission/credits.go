package admission

import (
	"context"
	"fmt"
	"sync"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
	apperrors "sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
)

// DefaultStartingBalance 新账户初始积分
const DefaultStartingBalance int64 = 100

// CreditsKey 用户积分计数键
func CreditsKey(userID string) string {
	return "credits:" + userID
}

// Credits 积分账户服务
type Credits struct {
	store           CounterStore
	pricing         *Pricing
	ledger          repository.CreditLedgerRepository
	startingBalance int64
}

// NewCredits 创建积分服务；ledger 可为 nil
func NewCredits(store CounterStore, pricing *Pricing, ledger repository.CreditLedgerRepository, startingBalance int64) *Credits {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	if startingBalance < 0 {
		startingBalance = DefaultStartingBalance
	}
	return &Credits{
		store:           store,
		pricing:         pricing,
		ledger:          ledger,
		startingBalance: startingBalance,
	}
}

// Pricing 计费表
func (c *Credits) Pricing() *Pricing {
	return c.pricing
}

// Ensure 账户不存在时以初始余额创建，返回当前余额
func (c *Credits) Ensure(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.ErrInvalidParam.WithDetail("user id is required")
	}
	balance, err := c.store.InitIfAbsent(ctx, CreditsKey(userID), c.startingBalance)
	if err != nil {
		return 0, storeError(err)
	}
	return balance, nil
}

// Balance 当前余额，账户不存在时为 0
func (c *Credits) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := c.store.Get(ctx, CreditsKey(userID))
	if err != nil {
		return 0, storeError(err)
	}
	return balance, nil
}

// Reserve 原子地检查并扣减；余额不足时返回 ErrInsufficientCredits 且余额不变
func (c *Credits) Reserve(ctx context.Context, userID string, amount int64) (*Reservation, error) {
	return c.reserve(ctx, userID, "", amount)
}

func (c *Credits) reserve(ctx context.Context, userID string, op entity.Operation, amount int64) (*Reservation, error) {
	if amount <= 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("reservation amount must be positive, got %d", amount))
	}
	remaining, ok, err := c.store.DecrIfSufficient(ctx, CreditsKey(userID), amount)
	if err != nil {
		metrics.CreditsTotal.WithLabelValues("reserve", "error").Inc()
		return nil, storeError(err)
	}
	if !ok {
		metrics.CreditsTotal.WithLabelValues("reserve", "insufficient").Inc()
		return nil, apperrors.ErrInsufficientCredits.WithDetail(
			fmt.Sprintf("balance %d is below required %d", remaining, amount))
	}
	metrics.CreditsTotal.WithLabelValues("reserve", "ok").Inc()
	return &Reservation{
		credits:   c,
		UserID:    userID,
		Operation: op,
		Amount:    amount,
		Remaining: remaining,
	}, nil
}

// Refund 无条件加回积分
func (c *Credits) Refund(ctx context.Context, userID string, amount int64) (int64, error) {
	balance, err := c.store.IncrBy(ctx, CreditsKey(userID), amount)
	if err != nil {
		metrics.CreditsTotal.WithLabelValues("refund", "error").Inc()
		return 0, storeError(err)
	}
	metrics.CreditsTotal.WithLabelValues("refund", "ok").Inc()
	return balance, nil
}

// Charge 按量计费结果
type Charge struct {
	Success bool  `json:"success"`
	Charged int64 `json:"charged"`
}

// ChargeForOperation 按用量计费：成本为 max(1, ceil(units*rate))，原子扣减
func (c *Credits) ChargeForOperation(ctx context.Context, userID string, op entity.Operation, units float64) (Charge, error) {
	cost := c.pricing.UnitCost(units)
	_, ok, err := c.store.DecrIfSufficient(ctx, CreditsKey(userID), cost)
	if err != nil {
		metrics.CreditsTotal.WithLabelValues("charge", "error").Inc()
		return Charge{}, storeError(err)
	}
	if !ok {
		metrics.CreditsTotal.WithLabelValues("charge", "insufficient").Inc()
		return Charge{Success: false, Charged: 0}, nil
	}
	metrics.CreditsTotal.WithLabelValues("charge", "ok").Inc()
	c.appendLedger(ctx, &entity.CreditLedgerEntry{
		UserID:    userID,
		Operation: op,
		Action:    entity.LedgerCommit,
		Amount:    cost,
	})
	return Charge{Success: true, Charged: cost}, nil
}

// Grant 发放积分（支付到账等场景）
func (c *Credits) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.ErrInvalidParam.WithDetail("grant amount must be positive")
	}
	if _, err := c.Ensure(ctx, userID); err != nil {
		return 0, err
	}
	balance, err := c.store.IncrBy(ctx, CreditsKey(userID), amount)
	if err != nil {
		metrics.CreditsTotal.WithLabelValues("grant", "error").Inc()
		return 0, storeError(err)
	}
	metrics.CreditsTotal.WithLabelValues("grant", "ok").Inc()
	c.appendLedger(ctx, &entity.CreditLedgerEntry{
		UserID: userID,
		Action: entity.LedgerGrant,
		Amount: amount,
	})
	return balance, nil
}

// GrantPlan 按套餐发放月度额度
func (c *Credits) GrantPlan(ctx context.Context, userID string, plan entity.Plan) (int64, error) {
	amount := c.pricing.PlanCredits(plan)
	if amount <= 0 {
		return c.Ensure(ctx, userID)
	}
	return c.Grant(ctx, userID, amount)
}

func (c *Credits) appendLedger(ctx context.Context, entry *entity.CreditLedgerEntry) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.Append(ctx, entry); err != nil {
		logger.Error(ctx, "failed to append credit ledger entry", err,
			"user_id", entry.UserID,
			"action", string(entry.Action),
			"amount", entry.Amount,
		)
	}
}

func storeError(err error) error {
	return apperrors.ErrCounterStore.WithError(err)
}

// Reservation 一次预留；Commit 与 Refund 只有第一次成功的调用生效
type Reservation struct {
	credits *Credits

	UserID       string
	Operation    entity.Operation
	GenerationID string
	Amount       int64
	// Remaining 预留后的余额
	Remaining int64

	// releases 退款成功后归还准入时占用的窗口计数
	releases []func(context.Context)

	mu      sync.Mutex
	settled entity.LedgerAction
}

// Commit 确认扣费
func (r *Reservation) Commit(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled != "" {
		return
	}
	r.settled = entity.LedgerCommit
	metrics.CreditsTotal.WithLabelValues("commit", "ok").Inc()
	r.credits.appendLedger(ctx, r.ledgerEntry(entity.LedgerCommit))
}

// Refund 退还预留；已结算时不做任何事并返回当前余额。
// 计数存储写入失败时保持未结算，调用方可以重试。
func (r *Reservation) Refund(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled != "" {
		return r.credits.Balance(ctx, r.UserID)
	}
	balance, err := r.credits.Refund(ctx, r.UserID, r.Amount)
	if err != nil {
		return 0, err
	}
	r.settled = entity.LedgerRefund
	r.credits.appendLedger(ctx, r.ledgerEntry(entity.LedgerRefund))
	for _, release := range r.releases {
		release(ctx)
	}
	return balance, nil
}

// Settled 已结算的动作，未结算时为空
func (r *Reservation) Settled() entity.LedgerAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

func (r *Reservation) ledgerEntry(action entity.LedgerAction) *entity.CreditLedgerEntry {
	return &entity.CreditLedgerEntry{
		UserID:       r.UserID,
		GenerationID: r.GenerationID,
		Operation:    r.Operation,
		Action:       action,
		Amount:       r.Amount,
	}
}
