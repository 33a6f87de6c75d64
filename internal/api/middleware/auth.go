package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pixelchat_server/internal/pkg/jwt"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
)

const (
	UserIDKey  = "userID"
	GuestIDKey = "guestID"
)

// Auth 仅允许登录用户
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, msg := bearerClaims(c, jwtSecret)
		if claims == nil {
			response.AuthError(c, msg)
			c.Abort()
			return
		}
		if claims.IsGuest() {
			response.AuthError(c, "请先登录")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// Session 允许登录用户或访客
func Session(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, msg := bearerClaims(c, jwtSecret)
		if claims == nil {
			response.AuthError(c, msg)
			c.Abort()
			return
		}

		if claims.IsGuest() {
			c.Set(GuestIDKey, claims.GuestID)
		} else {
			c.Set(UserIDKey, claims.UserID)
		}
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := bearerClaims(c, jwtSecret)
		if claims != nil {
			if claims.IsGuest() {
				c.Set(GuestIDKey, claims.GuestID)
			} else {
				c.Set(UserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

func bearerClaims(c *gin.Context, jwtSecret string) (*jwt.Claims, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, "请提供认证信息"
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, "认证格式错误"
	}

	claims, err := jwt.ParseToken(tokenString, jwtSecret)
	if err != nil {
		return nil, "认证失败或已过期"
	}
	return claims, ""
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetGuestID 从上下文获取访客 ID
func GetGuestID(c *gin.Context) (string, bool) {
	guestID, exists := c.Get(GuestIDKey)
	if !exists {
		return "", false
	}
	id, ok := guestID.(string)
	return id, ok && id != ""
}
