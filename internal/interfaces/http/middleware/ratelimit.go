// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sitegen-ai-api/internal/application/admission"
)

// RateLimit 按客户端限流的中间件，复用准入控制的滑动窗口限流器。
// 标识优先取已认证用户，其次取客户端 IP；限流器存储故障时放行。
func RateLimit(limiter *admission.RateLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		identifier := c.GetString(ContextUserID)
		if identifier == "" {
			identifier = "ip:" + c.ClientIP()
		}

		d := limiter.Check(c.Request.Context(), identifier)
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiter.MaxRequests(), 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     429,
				"message":  admission.ReasonInsufficientRateLimit,
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
