package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const authTestSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func identityRouter(handler gin.HandlerFunc) (*gin.Engine, map[string]any) {
	gin.SetMode(gin.TestMode)
	captured := map[string]any{}
	router := gin.New()
	router.Use(handler)
	router.GET("/", func(c *gin.Context) {
		captured["userID"], _ = c.Get("userID")
		captured["isAdmin"], _ = c.Get("isAdmin")
		c.Status(http.StatusNoContent)
	})
	return router, captured
}

// TestAuthMiddlewareHandle 确认合法 Token 注入用户身份。
func TestAuthMiddlewareHandle(t *testing.T) {
	router, captured := identityRouter(NewAuthMiddleware(authTestSecret).Handle())

	token := signToken(t, authTestSecret, jwt.MapClaims{
		"sub":     float64(42),
		"isAdmin": true,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if userID, ok := captured["userID"].(uint); !ok || userID != 42 {
		t.Fatalf("userID not injected, got=%v", captured["userID"])
	}
	if isAdmin, ok := captured["isAdmin"].(bool); !ok || !isAdmin {
		t.Fatalf("isAdmin not injected, got=%v", captured["isAdmin"])
	}
}

// TestAuthMiddlewareRejects 确认非法请求被拦截。
func TestAuthMiddlewareRejects(t *testing.T) {
	router, _ := identityRouter(NewAuthMiddleware(authTestSecret).Handle())

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "wrong secret", header: "Bearer " + signTokenWithSecret(t, "other-secret")},
		{name: "expired", header: "Bearer " + signToken(t, authTestSecret, jwt.MapClaims{
			"sub": float64(42),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "missing subject", header: "Bearer " + signToken(t, authTestSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, cs := range cases {
		cs := cs
		t.Run(cs.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if cs.header != "" {
				req.Header.Set("Authorization", cs.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func signTokenWithSecret(t *testing.T, secret string) string {
	t.Helper()
	return signToken(t, secret, jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

// TestAuthMiddlewareOptional 确认宽松模式放行匿名请求并识别登录用户。
func TestAuthMiddlewareOptional(t *testing.T) {
	router, captured := identityRouter(NewAuthMiddleware(authTestSecret).Optional())

	// 匿名请求放行，不注入身份。
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous pass-through, got %d", rec.Code)
	}
	if captured["userID"] != nil {
		t.Fatalf("anonymous request should not carry userID, got %v", captured["userID"])
	}

	// 携带合法 Token 时注入身份。
	token := signToken(t, authTestSecret, jwt.MapClaims{
		"userID": "7",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if userID, ok := captured["userID"].(uint); !ok || userID != 7 {
		t.Fatalf("userID not injected from string claim, got=%v", captured["userID"])
	}
}

// TestLocalAuthMiddleware 确认单机模式注入固定身份。
func TestLocalAuthMiddleware(t *testing.T) {
	router, captured := identityRouter(NewLocalAuthMiddleware(42, true).Handle())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if userID, ok := captured["userID"].(uint); !ok || userID != 42 {
		t.Fatalf("userID not injected, got=%v", captured["userID"])
	}
	if isAdmin, ok := captured["isAdmin"].(bool); !ok || !isAdmin {
		t.Fatalf("isAdmin not injected, got=%v", captured["isAdmin"])
	}
}
