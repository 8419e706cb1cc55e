package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/response"
	"Courier/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifService service.NotificationService
	prefService  service.PreferenceService
}

func NewNotificationHandler(notif service.NotificationService, pref service.PreferenceService) *NotificationHandler {
	return &NotificationHandler{
		notifService: notif,
		prefService:  pref,
	}
}

// CreateNotification 内部服务创建通知
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req dto.CreateNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := h.notifService.CreateNotification(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteNotification 内部服务删除通知
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	if err := h.notifService.DeleteNotification(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetNotificationList 获取通知列表
func (h *NotificationHandler) GetNotificationList(c *gin.Context) {
	var q dto.NotificationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	list, err := h.notifService.ListNotifications(c.Request.Context(), c.GetString(consts.UserIDKey), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// GetStats 获取通知统计
func (h *NotificationHandler) GetStats(c *gin.Context) {
	stats, err := h.notifService.GetStats(c.Request.Context(), c.GetString(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// MarkRead 标记单条已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifService.MarkRead(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkAllRead 全部已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	res, err := h.notifService.MarkAllRead(c.Request.Context(), c.GetString(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetDeliveries 各渠道投递情况
func (h *NotificationHandler) GetDeliveries(c *gin.Context) {
	res, err := h.notifService.GetDeliveries(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	res, err := h.prefService.GetPreferences(c.Request.Context(), c.GetString(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	var req dto.UpdatePreferenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := h.prefService.UpdatePreference(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("type"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
