package middleware

import "github.com/gin-gonic/gin"

// LocalAuthMiddleware 在单机模式下注入固定用户，绕过 JWT 校验流程。
type LocalAuthMiddleware struct {
	userID  uint
	isAdmin bool
}

// NewLocalAuthMiddleware 构造用于单机模式的鉴权中间件。
func NewLocalAuthMiddleware(userID uint, isAdmin bool) *LocalAuthMiddleware {
	return &LocalAuthMiddleware{
		userID:  userID,
		isAdmin: isAdmin,
	}
}

// Handle 将固定用户写入上下文，使后续 Handler 可以读取 userID/isAdmin。
func (m *LocalAuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", m.userID)
		c.Set("isAdmin", m.isAdmin)
		c.Next()
	}
}
