package api

import (
	"Courier/internal/api/middleware"
	"Courier/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions 路由层配置
type RouterOptions struct {
	TrustedProxies []string
	AllowedOrigins []string
}

func SetupRouter(group *HandlersGroup, opts RouterOptions) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(opts.TrustedProxies)

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware("/api/ws", "/metrics", "/api/ping"))
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	logger.SetupGin(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		// 凭据通过 query 传递, 鉴权结果以关闭码返回
		apiGroup.GET("/ws", group.WSHandler.Connect)

		imGroup := apiGroup.Group("/im")
		imGroup.Use(middleware.AuthMiddleware(group.Authenticator))
		{
			imGroup.GET("/stats", group.IMHandler.GetStats)
			if group.AttachmentHandler != nil {
				imGroup.POST("/attachments", group.AttachmentHandler.Upload)
			}

			convGroup := imGroup.Group("/conversations")
			{
				convGroup.POST("", group.IMHandler.StartConversation)
				convGroup.GET("", group.IMHandler.ListConversations)
				convGroup.GET("/:id", group.IMHandler.GetConversation)
				convGroup.PATCH("/:id", group.IMHandler.UpdateConversation)
				convGroup.PATCH("/:id/member", group.IMHandler.UpdateMember)
				convGroup.GET("/:id/participants", group.IMHandler.GetParticipants)
				convGroup.GET("/:id/messages", group.IMHandler.GetHistory)
				convGroup.POST("/:id/messages", group.IMHandler.SendMessage)
				convGroup.POST("/:id/read", group.IMHandler.MarkConversationRead)
			}

			msgGroup := imGroup.Group("/messages")
			{
				msgGroup.GET("/search", group.IMHandler.SearchMessages)
				msgGroup.PATCH("/:id", group.IMHandler.EditMessage)
				msgGroup.DELETE("/:id", group.IMHandler.DeleteMessage)
				msgGroup.POST("/:id/read", group.IMHandler.MarkMessageRead)
			}
		}

		notifGroup := apiGroup.Group("/notifications")
		{
			// 内部服务调用
			internalGroup := notifGroup.Group("")
			internalGroup.Use(middleware.ServiceAuthMiddleware(group.ServiceToken))
			{
				internalGroup.POST("", group.NotificationHandler.CreateNotification)
				internalGroup.DELETE("/:id", group.NotificationHandler.DeleteNotification)
			}

			authGroup := notifGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware(group.Authenticator))
			{
				authGroup.GET("", group.NotificationHandler.GetNotificationList)
				authGroup.GET("/stats", group.NotificationHandler.GetStats)
				authGroup.POST("/read-all", group.NotificationHandler.MarkAllRead)
				authGroup.GET("/preferences", group.NotificationHandler.GetPreferences)
				authGroup.PUT("/preferences/:type", group.NotificationHandler.UpdatePreference)
				authGroup.PATCH("/:id/read", group.NotificationHandler.MarkRead)
				authGroup.GET("/:id/deliveries", group.NotificationHandler.GetDeliveries)
			}
		}
	}

	return r
}
