package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware 基于共享密钥校验 JWT 的合法性，保护受限路由。
// 校验通过后在上下文注入 userID 与 isAdmin，供 Handler 直接读取。
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware 创建鉴权中间件实例，注入 JWT 签名密钥。
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// Handle 返回 Gin 中间件，验证 Bearer Token 并注入用户身份。
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.parseBearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, ok := claimUserID(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}
		c.Set("userID", userID)
		c.Set("isAdmin", claimIsAdmin(claims))
		c.Next()
	}
}

// Optional 返回宽松版中间件：携带合法 Token 时注入身份，否则放行匿名访问。
// 公开浏览接口用它区分登录用户，以便返回收藏标记与浏览去重。
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := m.parseBearer(c); ok {
			if userID, ok := claimUserID(claims); ok {
				c.Set("userID", userID)
				c.Set("isAdmin", claimIsAdmin(claims))
			}
		}
		c.Next()
	}
}

func (m *AuthMiddleware) parseBearer(c *gin.Context) (jwt.MapClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, false
	}

	tokenString := strings.TrimSpace(authHeader[7:])
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return []byte(m.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	return claims, true
}

func claimUserID(claims jwt.MapClaims) (uint, bool) {
	raw, ok := claims["sub"]
	if !ok {
		raw, ok = claims["userID"]
	}
	if !ok {
		return 0, false
	}
	switch id := raw.(type) {
	case float64:
		if id <= 0 {
			return 0, false
		}
		return uint(id), true
	case string:
		parsed, err := strconv.ParseUint(id, 10, 32)
		if err != nil || parsed == 0 {
			return 0, false
		}
		return uint(parsed), true
	default:
		return 0, false
	}
}

func claimIsAdmin(claims jwt.MapClaims) bool {
	if b, ok := claims["isAdmin"].(bool); ok {
		return b
	}
	return false
}
