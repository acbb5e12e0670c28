// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader 认证关闭时使用的用户标识头
	UserIDHeader = "X-User-ID"
	// UserPlanHeader 认证关闭时使用的套餐头
	UserPlanHeader = "X-User-Plan"

	ContextUserID = "user_id"
	ContextPlan   = "plan"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径
	SkipPaths []string
	// Enabled 关闭时信任 X-User-ID / X-User-Plan 请求头
	Enabled bool
}

// Auth 认证中间件：解析出用户 ID 与套餐写入上下文，不强制要求存在，由处理器决定
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		if isSkipPath(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		if !cfg.Enabled {
			setIdentity(c, strings.TrimSpace(c.GetHeader(UserIDHeader)), strings.TrimSpace(c.GetHeader(UserPlanHeader)))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if err == utils.ErrExpiredToken {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		setIdentity(c, claims.UserID(), claims.Plan)
		c.Next()
	}
}

func setIdentity(c *gin.Context, userID, plan string) {
	if userID == "" {
		return
	}
	c.Set(ContextUserID, userID)
	if plan != "" {
		c.Set(ContextPlan, plan)
	}
	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	c.Request = c.Request.WithContext(ctx)
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     401,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

func isSkipPath(path string, skip []string) bool {
	for _, p := range skip {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
