package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
)

const (
	defaultWindow      = time.Minute
	defaultMaxRequests = 100
	defaultKeyPrefix   = "ratelimit:"
)

// Decision 一次限流判定
type Decision struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	// FailOpen 存储故障时放行
	FailOpen bool

	key    string
	member string
}

// RateLimiter 按标识符的滑动窗口限流器；存储故障时放行并记录日志
type RateLimiter struct {
	store       WindowStore
	scope       string
	window      time.Duration
	maxRequests int64
	keyPrefix   string
	now         func() time.Time
}

// NewRateLimiter 创建限流器；store 为 nil 时始终放行
func NewRateLimiter(store WindowStore, scope string, cfg config.RateLimitConfig) *RateLimiter {
	l := &RateLimiter{
		store:       store,
		scope:       scope,
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		keyPrefix:   cfg.KeyPrefix,
		now:         time.Now,
	}
	if l.window <= 0 {
		l.window = defaultWindow
	}
	if l.maxRequests <= 0 {
		l.maxRequests = defaultMaxRequests
	}
	if l.keyPrefix == "" {
		l.keyPrefix = defaultKeyPrefix
	}
	return l
}

// Check 判定并记录一次请求
func (l *RateLimiter) Check(ctx context.Context, identifier string) Decision {
	return l.CheckN(ctx, identifier, l.maxRequests, l.window)
}

// CheckN 以指定上限与窗口判定，键为 prefix + identifier
func (l *RateLimiter) CheckN(ctx context.Context, identifier string, limit int64, window time.Duration) Decision {
	now := l.now()
	if l.store == nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(l.scope, "fail_open").Inc()
		logger.Warn(ctx, "rate limiter store not available, allowing request", "scope", l.scope)
		return Decision{Allowed: true, Remaining: limit, FailOpen: true}
	}

	key, member := l.keyPrefix+identifier, uuid.NewString()
	allowed, remaining, err := l.store.Hit(ctx, key, member, limit, window, now)
	if err != nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(l.scope, "fail_open").Inc()
		logger.Error(ctx, "rate limiter error", err, "scope", l.scope)
		return Decision{Allowed: true, Remaining: limit, FailOpen: true}
	}
	if !allowed {
		metrics.RateLimitDecisionsTotal.WithLabelValues(l.scope, "denied").Inc()
		return Decision{Allowed: false, Remaining: 0, ResetAt: now}
	}
	metrics.RateLimitDecisionsTotal.WithLabelValues(l.scope, "allowed").Inc()
	return Decision{Allowed: true, Remaining: remaining, ResetAt: now.Add(window), key: key, member: member}
}

// Release 撤销一次已放行的记录；放行失败或降级放行的判定不做任何事
func (l *RateLimiter) Release(ctx context.Context, d Decision) {
	if l.store == nil || d.member == "" {
		return
	}
	if err := l.store.Release(ctx, d.key, d.member); err != nil {
		logger.Error(ctx, "rate limiter release error", err, "scope", l.scope)
		return
	}
	metrics.RateLimitDecisionsTotal.WithLabelValues(l.scope, "released").Inc()
}

// Window 窗口长度
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// MaxRequests 窗口内上限
func (l *RateLimiter) MaxRequests() int64 {
	return l.maxRequests
}

func (l *RateLimiter) releaser(d Decision) func(context.Context) {
	return func(ctx context.Context) { l.Release(ctx, d) }
}
