// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/pkg/logger"
	"directory-assistant-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// VisitorIDHeader 匿名访客标识头
	VisitorIDHeader = "X-Visitor-ID"

	// visitorContextKey Gin Context 中的访客键
	visitorContextKey = "visitor"
	// directoryContextKey Gin Context 中的目录键
	directoryContextKey = "directory_id"
)

// VisitorConfig 访客识别配置
type VisitorConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
}

// Visitor 访客识别中间件
//
// 带有效 Bearer 令牌的请求按会员处理，凭据来自令牌声明；
// 令牌无效直接拒绝。匿名请求沿用 X-Visitor-ID，缺失时铸造新 ID
// 并通过响应头回传，供调用方后续请求携带以保证配额记账连续
func Visitor(cfg VisitorConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				abortUnauthorized(c, "invalid authorization format")
				return
			}

			claims, err := jwtManager.VerifyToken(parts[1])
			if err != nil {
				msg := "invalid token"
				if err == utils.ErrExpiredToken {
					msg = "token expired"
				}
				abortUnauthorized(c, msg)
				return
			}

			visitor := entity.Visitor{
				VisitorID: claims.UserID,
				Credentials: entity.Credentials{
					Authenticated: true,
					UserID:        claims.UserID,
					AuthToken:     parts[1],
					Name:          claims.Name,
					Email:         claims.Email,
				},
			}
			c.Set(visitorContextKey, visitor)
			c.Set(directoryContextKey, claims.DirectoryID)

			ctx := logger.WithContext(c.Request.Context(), logger.VisitorIDKey, visitor.VisitorID)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		visitorID := c.GetHeader(VisitorIDHeader)
		if visitorID == "" {
			visitorID = uuid.New().String()
		}

		c.Set(visitorContextKey, entity.Visitor{VisitorID: visitorID})
		c.Header(VisitorIDHeader, visitorID)

		ctx := logger.WithContext(c.Request.Context(), logger.VisitorIDKey, visitorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// VisitorFromContext 取出当前请求的访客身份
func VisitorFromContext(c *gin.Context) entity.Visitor {
	if v, ok := c.Get(visitorContextKey); ok {
		if visitor, ok := v.(entity.Visitor); ok {
			return visitor
		}
	}
	return entity.Visitor{}
}

// DirectoryFromContext 取出令牌中声明的目录 ID
func DirectoryFromContext(c *gin.Context) string {
	return c.GetString(directoryContextKey)
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     401,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
