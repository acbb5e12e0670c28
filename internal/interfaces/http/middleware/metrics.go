// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strconv"
	"time"

	"sitegen-ai-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 按路由模板记录请求数、时长与响应体大小；未匹配路由统一记为 unmatched，避免标签基数膨胀
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()

		c.Next()

		// SSE 的时长覆盖整个生成过程
		labels := []string{c.Request.Method, route}
		metrics.HTTPRequestsTotal.WithLabelValues(append(labels, strconv.Itoa(c.Writer.Status()))...).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			metrics.HTTPResponseSize.WithLabelValues(labels...).Observe(float64(n))
		}
	}
}
