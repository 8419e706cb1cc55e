package api

import (
	"Courier/internal/api/handler"
	"Courier/internal/pkg/security"
)

// HandlersGroup 封装了所有已初始化的 Handler 实例及路由所需的鉴权组件
type HandlersGroup struct {
	WSHandler           *handler.WsHandler
	IMHandler           *handler.IMHandler
	NotificationHandler *handler.NotificationHandler
	// AttachmentHandler 未配置对象存储时为空
	AttachmentHandler *handler.AttachmentHandler

	Authenticator security.Authenticator
	ServiceToken  string
}
