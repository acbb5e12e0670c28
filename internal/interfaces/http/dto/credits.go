package dto

import (
	"time"

	"sitegen-ai-api/internal/domain/entity"
)

// CreditsResponse 积分余额
type CreditsResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

// GrantCreditsRequest 积分发放请求（订阅回调）；Amount 为空时按套餐额度发放
type GrantCreditsRequest struct {
	UserID string `json:"userId" binding:"required"`
	Plan   string `json:"plan,omitempty" binding:"omitempty,oneof=free starter pro"`
	Amount int64  `json:"amount,omitempty" binding:"omitempty,gt=0"`
}

// LedgerEntryResponse 积分流水
type LedgerEntryResponse struct {
	ID           string `json:"id"`
	GenerationID string `json:"generationId,omitempty"`
	Operation    string `json:"operation,omitempty"`
	Action       string `json:"action"`
	Amount       int64  `json:"amount"`
	CreatedAt    string `json:"createdAt"`
}

// LedgerListResponse 积分流水列表
type LedgerListResponse struct {
	Entries []*LedgerEntryResponse `json:"entries"`
}

// ToLedgerEntryResponse 转换流水
func ToLedgerEntryResponse(e *entity.CreditLedgerEntry) *LedgerEntryResponse {
	return &LedgerEntryResponse{
		ID:           e.ID,
		GenerationID: e.GenerationID,
		Operation:    string(e.Operation),
		Action:       string(e.Action),
		Amount:       e.Amount,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}
