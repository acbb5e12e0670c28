package entity

import "time"

// Plan 订阅套餐
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// ParsePlan 解析套餐，未知值按免费档处理
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanStarter:
		return PlanStarter
	case PlanPro:
		return PlanPro
	default:
		return PlanFree
	}
}

// LedgerAction 积分流水动作
type LedgerAction string

const (
	LedgerCommit LedgerAction = "commit"
	LedgerRefund LedgerAction = "refund"
	LedgerGrant  LedgerAction = "grant"
)

// CreditLedgerEntry 积分结算流水
type CreditLedgerEntry struct {
	ID           string       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       string       `json:"user_id" gorm:"type:varchar(128);index;not null"`
	GenerationID string       `json:"generation_id" gorm:"type:varchar(64);index"`
	Operation    Operation    `json:"operation" gorm:"type:varchar(32)"`
	Action       LedgerAction `json:"action" gorm:"type:varchar(16);not null"`
	Amount       int64        `json:"amount" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger_entries"
}
