package postgres

import (
	"context"
	"fmt"

	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/internal/domain/repository"
)

// CreditLedgerRepository 积分流水仓储
type CreditLedgerRepository struct {
	client *Client
	tx     *TxManager
}

var _ repository.CreditLedgerRepository = (*CreditLedgerRepository)(nil)

// NewCreditLedgerRepository 创建积分流水仓储
func NewCreditLedgerRepository(client *Client) *CreditLedgerRepository {
	return &CreditLedgerRepository{client: client, tx: NewTxManager(client)}
}

// Append 追加一条流水
func (r *CreditLedgerRepository) Append(ctx context.Context, entry *entity.CreditLedgerEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.CreditLedgerRepository.Append")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(entry).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append credit ledger entry: %w", err)
	}
	return nil
}

// ListByUser 按时间倒序分页查询用户流水
func (r *CreditLedgerRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.CreditLedgerEntry], error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditLedgerRepository.ListByUser")
	defer span.End()

	var (
		total   int64
		entries []*entity.CreditLedgerEntry
	)
	// 计数与分页在同一快照内完成
	err := r.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db).Model(&entity.CreditLedgerEntry{}).Where("user_id = ?", userID)
		if err := db.Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count credit ledger entries: %w", err)
		}
		if err := db.Order("created_at DESC").
			Offset(pagination.Offset()).
			Limit(pagination.Limit()).
			Find(&entries).Error; err != nil {
			return fmt.Errorf("failed to list credit ledger entries: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return repository.NewPagedResult(entries, total, pagination), nil
}
