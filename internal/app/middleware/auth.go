// internal/app/middleware/auth.go
package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/auth"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/response"
)

// IdentityKey 是在 gin.Context 中存储调用方身份的键
const IdentityKey = "caller_identity"

// min 辅助函数，返回两个整数中的较小值
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Middleware struct {
	secret []byte
	// guest 是未登录游客拥有的权限位
	guest model.Boolset
}

func NewMiddleware(secret []byte, guest model.Boolset) *Middleware {
	return &Middleware{secret: secret, guest: guest}
}

// bearerToken 提取 Authorization 头中的 Bearer Token
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return "", false
	}
	return parts[1], true
}

// authenticate 解析 Token 并把 Claims 与身份写入上下文
func (m *Middleware) authenticate(c *gin.Context, tokenString string) bool {
	claims, err := auth.ParseToken(tokenString, m.secret)
	if err != nil {
		log.Printf("[JWTAuth] JWT token解析失败 (%s...): %v", tokenString[:min(20, len(tokenString))], err)
		return false
	}
	identity, err := claims.Identity()
	if err != nil {
		log.Printf("[JWTAuth] JWT 用户信息无效: %v", err)
		return false
	}
	c.Set(auth.ClaimsKey, claims)
	c.Set(IdentityKey, identity)
	return true
}

// JWTAuth 是一个强制性的JWT认证中间件
func (m *Middleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Header.Get("Authorization") == "" {
			response.Fail(c, http.StatusUnauthorized, "请求未携带Token，无权限访问")
			c.Abort()
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, "Token格式不正确")
			c.Abort()
			return
		}
		if !m.authenticate(c, tokenString) {
			response.Fail(c, http.StatusUnauthorized, "无效或过期的Token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// JWTAuthOptional 是一个可选的JWT认证中间件
// 如果没有Token，按游客身份放行；如果有Token但无效，返回401
func (m *Middleware) JWTAuthOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Set(IdentityKey, model.Anonymous(m.guest))
			c.Next()
			return
		}
		if !m.authenticate(c, tokenString) {
			response.Fail(c, http.StatusUnauthorized, "Token已过期")
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityFrom 返回中间件写入的调用方身份，不存在时视为没有任何权限的游客
func IdentityFrom(c *gin.Context) model.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(model.Identity); ok {
			return id
		}
	}
	return model.Anonymous(nil)
}
