package middleware

import (
	"fmt"
	"runtime/debug"

	"sitegen-ai-api/internal/interfaces/http/dto"
	"sitegen-ai-api/pkg/errors"
	"sitegen-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery 捕获 handler panic，记录堆栈并返回统一错误体
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", r),
				"route", c.FullPath(),
				"method", c.Request.Method,
				"stack", string(debug.Stack()),
			)
			// 流式响应已写出头部，只能中断
			if c.Writer.Written() {
				c.Abort()
				return
			}
			dto.FromError(c, errors.ErrInternalError)
			c.Abort()
		}()
		c.Next()
	}
}
