// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"sitegen-ai-api/internal/domain/entity"
)

// CreditLedgerRepository 积分结算流水
type CreditLedgerRepository interface {
	Append(ctx context.Context, entry *entity.CreditLedgerEntry) error
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.CreditLedgerEntry], error)
}
