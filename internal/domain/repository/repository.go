// Package repository 定义数据访问层接口
package repository

import (
	"context"
)

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TxKey 事务上下文键，实现方把事务句柄放在该键下
type TxKey struct{}

// Transactor 事务管理接口；fn 内使用传入的 ctx 访问仓储即在同一事务中
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pagination 分页参数，页码从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 创建分页参数，越界值收敛到合法范围
func NewPagination(page, pageSize int) Pagination {
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return Pagination{Page: page, PageSize: min(pageSize, MaxPageSize)}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Pagination) Limit() int {
	return p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPagedResult 按总数计算页数
func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	size := int64(max(pagination.PageSize, 1))
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: int((total + size - 1) / size),
	}
}

// HasMore 是否还有下一页
func (r *PagedResult[T]) HasMore() bool {
	return r.Page < r.TotalPages
}
