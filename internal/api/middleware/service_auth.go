package middleware

import (
	"Courier/internal/pkg/response"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware 内部服务调用使用共享的 service token
func ServiceAuthMiddleware(serviceToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if serviceToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(serviceToken)) != 1 {
			response.Fail(c, response.Forbidden, "service token required")
			c.Abort()
			return
		}
		c.Next()
	}
}
