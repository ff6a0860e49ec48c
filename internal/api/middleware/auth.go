package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/cake_billing_server/internal/pkg/response"
	"github.com/qs3c/cake_billing_server/internal/pkg/session"
)

const (
	AdminKey        = "admin"
	SessionTokenKey = "sessionToken"
)

// Authenticator 校验会话 token，无效时返回 nil 会话
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
}

// AdminAuth 管理员会话认证中间件
func AdminAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		sess, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.ServerError(c, "")
			c.Abort()
			return
		}
		if sess == nil {
			response.AuthError(c, "登录已过期，请重新登录")
			c.Abort()
			return
		}

		c.Set(AdminKey, sess)
		c.Set(SessionTokenKey, token)
		c.Next()
	}
}

// BearerToken 从 Authorization 头取出 token
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// GetAdmin 从上下文获取当前管理员会话
func GetAdmin(c *gin.Context) (*session.Session, bool) {
	v, exists := c.Get(AdminKey)
	if !exists {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}
