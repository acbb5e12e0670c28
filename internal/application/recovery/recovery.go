// Package recovery 提供 AI 调用的重试、退避、降级与兜底包装
package recovery

import (
	"context"
	"math/rand/v2"
	"time"

	apperrors "sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/metrics"

	"sitegen-ai-api/internal/workflow/node"
)

const (
	// maxBackoffMultiplier 退避倍数上限
	maxBackoffMultiplier = 32
	jitterRatio          = 0.2
)

// Policy 重试策略
type Policy struct {
	// MaxRetries 总尝试次数 = MaxRetries + 1
	MaxRetries   int
	InitialDelay time.Duration
	Jitter       bool
}

// DefaultPolicy 默认策略：2 次重试，250ms 基础延迟，开启抖动
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, InitialDelay: 250 * time.Millisecond, Jitter: true}
}

// LogFunc 失败日志钩子，attempt 从 1 开始
type LogFunc func(ctx context.Context, err error, attempt int)

// Options 单次 Do 调用的恢复配置，按值传递
type Options[T any] struct {
	Policy

	// Downgrade 瞬时错误时的降级操作；失败后继续走重试
	Downgrade func(ctx context.Context) (T, error)
	// CachedResult 瞬时错误时查找缓存结果；错误被忽略
	CachedResult func(ctx context.Context) (T, bool, error)
	// IsTransient 瞬时错误判定，默认 node.IsTransientLLMError
	IsTransient func(error) bool
	// IsPermanent 永久错误判定（配置类错误），命中后立即返回不重试
	IsPermanent func(error) bool
	Log         LogFunc

	// Sleep 与 Rand 仅用于测试注入
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// Do 执行 op；瞬时错误依次尝试缓存、降级、退避重试，重试耗尽后调用 fallback。
// 非瞬时错误至多再重试一次后返回；只有 fallback 与非瞬时错误会把错误交给调用方。
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), fallback func(ctx context.Context, cause error) (T, error), opts Options[T]) (T, error) {
	opts = opts.withDefaults()

	var zero T
	attempt := 0
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		attempt++
		opts.log(ctx, err, attempt)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if opts.IsPermanent(err) {
			record("raise")
			return zero, err
		}

		if opts.IsTransient(err) {
			if opts.CachedResult != nil {
				if cached, ok, cerr := opts.CachedResult(ctx); cerr == nil && ok {
					record("cache")
					return cached, nil
				}
			}

			if opts.Downgrade != nil {
				dv, derr := opts.Downgrade(ctx)
				if derr == nil {
					record("downgrade")
					return dv, nil
				}
				opts.log(ctx, derr, attempt)
			}

			if attempt <= opts.MaxRetries {
				record("retry")
				if err := opts.Sleep(ctx, Backoff(attempt, opts.InitialDelay, opts.Jitter, opts.Rand)); err != nil {
					return zero, err
				}
				continue
			}

			record("fallback")
			return fallback(ctx, err)
		}

		if attempt <= min(1, opts.MaxRetries) {
			record("retry")
			if err := opts.Sleep(ctx, Backoff(attempt, opts.InitialDelay, opts.Jitter, opts.Rand)); err != nil {
				return zero, err
			}
			continue
		}

		record("raise")
		return zero, err
	}
}

// Backoff 计算第 attempt 次失败后的等待：base * min(2^attempt, 32)，可选 ±20% 抖动
func Backoff(attempt int, base time.Duration, jitter bool, rnd func() float64) time.Duration {
	exp := maxBackoffMultiplier
	if attempt < 5 {
		exp = min(1<<max(attempt, 0), maxBackoffMultiplier)
	}
	delay := float64(base) * float64(exp)
	if jitter {
		if rnd == nil {
			rnd = rand.Float64
		}
		delta := delay * jitterRatio
		delay += (rnd()*2 - 1) * delta
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay).Truncate(time.Millisecond)
}

func (o Options[T]) withDefaults() Options[T] {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.IsTransient == nil {
		o.IsTransient = node.IsTransientLLMError
	}
	if o.IsPermanent == nil {
		o.IsPermanent = apperrors.IsConfiguration
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

func (o Options[T]) log(ctx context.Context, err error, attempt int) {
	if o.Log != nil {
		o.Log(ctx, err, attempt)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func record(outcome string) {
	metrics.RecoveryAttemptsTotal.WithLabelValues(outcome).Inc()
}
