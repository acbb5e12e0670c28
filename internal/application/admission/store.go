// Package admission 提供生成请求的准入控制：积分预留与滑动窗口限流
package admission

import (
	"context"
	"sync"
	"time"
)

// CounterStore 共享整数计数存储。
// DecrIfSufficient 必须是单个原子操作：余额不足时不扣减，且同一键的并发调用不会丢失更新。
type CounterStore interface {
	// InitIfAbsent 键不存在时写入初始值，返回当前值
	InitIfAbsent(ctx context.Context, key string, initial int64) (int64, error)
	// Get 键不存在时返回 0
	Get(ctx context.Context, key string) (int64, error)
	DecrIfSufficient(ctx context.Context, key string, amount int64) (remaining int64, ok bool, err error)
	IncrBy(ctx context.Context, key string, amount int64) (int64, error)
}

// WindowStore 滑动窗口计数存储。member 唯一标识一次记录，Release 按它撤销。
type WindowStore interface {
	// Hit 在窗口内计数未达上限时记录一次并返回 allowed=true
	Hit(ctx context.Context, key, member string, limit int64, window time.Duration, now time.Time) (allowed bool, remaining int64, err error)
	// Release 撤销一次记录，记录不存在时不报错
	Release(ctx context.Context, key, member string) error
}

// MemoryCounterStore 进程内计数存储，仅保证单实例内的正确性。
// 生命周期与进程一致，重启后清空。
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryCounterStore 创建进程内计数存储
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]int64)}
}

func (s *MemoryCounterStore) InitIfAbsent(_ context.Context, key string, initial int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.counters[key]; ok {
		return v, nil
	}
	s.counters[key] = initial
	return initial, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryCounterStore) DecrIfSufficient(_ context.Context, key string, amount int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.counters[key]
	if cur < amount {
		return cur, false, nil
	}
	s.counters[key] = cur - amount
	return cur - amount, true, nil
}

func (s *MemoryCounterStore) IncrBy(_ context.Context, key string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += amount
	return s.counters[key], nil
}

// MemoryWindowStore 进程内滑动窗口
type MemoryWindowStore struct {
	mu   sync.Mutex
	hits map[string][]windowHit
}

type windowHit struct {
	at     time.Time
	member string
}

// NewMemoryWindowStore 创建进程内滑动窗口
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{hits: make(map[string][]windowHit)}
}

func (s *MemoryWindowStore) Hit(_ context.Context, key, member string, limit int64, window time.Duration, now time.Time) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldest := now.Add(-window)
	kept := s.hits[key][:0]
	for _, h := range s.hits[key] {
		if h.at.After(oldest) {
			kept = append(kept, h)
		}
	}

	count := int64(len(kept))
	if count >= limit {
		s.hits[key] = kept
		return false, 0, nil
	}
	s.hits[key] = append(kept, windowHit{at: now, member: member})
	return true, limit - count - 1, nil
}

func (s *MemoryWindowStore) Release(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := s.hits[key]
	for i, h := range hits {
		if h.member == member {
			s.hits[key] = append(hits[:i], hits[i+1:]...)
			return nil
		}
	}
	return nil
}
