package middleware

import (
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/response"
	"Courier/internal/pkg/security"
	"context"
	log "log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware(auth security.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, response.Unauthorized, "missing or malformed token")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.AuthenticateConnection(c.Request.Context(), tokenString)
		if err != nil {
			if security.IsCredentialError(err) {
				response.Fail(c, response.Unauthorized, "token is invalid or expired")
			} else {
				log.ErrorContext(c.Request.Context(), "authenticate request failed", "err", err)
				response.Fail(c, response.InternalServerError, "unexpected error, please retry later")
			}
			c.Abort()
			return
		}

		c.Set(consts.UserIDKey, userID)
		newCtx := context.WithValue(c.Request.Context(), consts.UserIDKey, userID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}
