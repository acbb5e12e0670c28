package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sitegen-ai-api/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头
	RequestIDHeader = "X-Request-ID"
	// ContextRequestID gin.Context 中的请求 ID 键
	ContextRequestID = "request_id"

	maxRequestIDLen = 128
)

// RequestID 沿用调用方传入的请求 ID，缺失或超长时生成新的
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		c.Set(ContextRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
