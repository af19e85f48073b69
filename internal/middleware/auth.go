package middleware

import (
	"context"
	"errors"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticator 由 AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, util.ErrSessionInvalid) {
				logger.Log.Debug("Rejected token", zap.Error(err))
				util.Unauthorized(c)
			} else {
				util.RespondError(c, err)
			}
			c.Abort()
			return
		}

		util.SetSession(c, session)
		c.Next()
	}
}

// RoleMiddleware 管理员拥有所有教师权限，直接放行
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := util.GetSession(c)
		if session == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := session.Role == model.Admin
		for _, role := range roles {
			if session.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
