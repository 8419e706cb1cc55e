package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 渠道名称
const (
	ChannelWeb   = "web"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// ChannelRank 渠道排序, 解析结果按此顺序输出
var ChannelRank = map[string]int{
	ChannelWeb:   0,
	ChannelPush:  1,
	ChannelEmail: 2,
	ChannelSMS:   3,
}

// 通知状态
const (
	NotificationStatusPending   = "pending"
	NotificationStatusSent      = "sent"
	NotificationStatusDelivered = "delivered"
	NotificationStatusRead      = "read"
	NotificationStatusFailed    = "failed"
)

// 投递状态
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var Priorities = map[string]struct{}{
	PriorityLow:    {},
	PriorityNormal: {},
	PriorityHigh:   {},
	PriorityUrgent: {},
}

const DefaultMaxAttempts = 3

// NotificationChannel 投递渠道
type NotificationChannel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"name"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func (NotificationChannel) TableName() string { return "notification_channels" }

// NotificationType 通知类型模板及默认渠道
type NotificationType struct {
	ID              uint64                `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string                `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	Description     string                `gorm:"type:varchar(255)" json:"description"`
	TitleTemplate   string                `gorm:"type:varchar(200)" json:"titleTemplate"`
	MessageTemplate string                `gorm:"type:text" json:"messageTemplate"`
	IsActive        bool                  `gorm:"not null" json:"isActive"`
	DefaultChannels []NotificationChannel `gorm:"many2many:notification_type_channels;" json:"defaultChannels"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func (NotificationType) TableName() string { return "notification_types" }

// UserNotificationPreference 用户对某类通知的渠道覆盖
type UserNotificationPreference struct {
	ID                 uint64                `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             string                `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_type" json:"userId"`
	NotificationTypeID uint64                `gorm:"not null;uniqueIndex:idx_user_type" json:"notificationTypeId"`
	IsEnabled          bool                  `gorm:"not null" json:"isEnabled"`
	Channels           []NotificationChannel `gorm:"many2many:preference_channels;" json:"channels"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`

	NotificationType NotificationType `gorm:"foreignKey:NotificationTypeID" json:"-"`
}

func (UserNotificationPreference) TableName() string { return "user_notification_preferences" }

// Notification 面向单个接收者的通知
type Notification struct {
	ID                 string            `gorm:"primaryKey;type:char(36)" json:"id"`
	RecipientID        string            `gorm:"type:varchar(64);not null;index:idx_recipient_created" json:"recipientId"`
	NotificationTypeID uint64            `gorm:"not null;index" json:"notificationTypeId"`
	Title              string            `gorm:"type:varchar(200)" json:"title"`
	Message            string            `gorm:"type:text" json:"message"`
	Data               datatypes.JSONMap `json:"data"`
	Priority           string            `gorm:"type:varchar(10);not null" json:"priority"`
	Status             string            `gorm:"type:varchar(16);not null;index" json:"status"`
	ActionURL          *string           `gorm:"type:varchar(512)" json:"actionUrl"`
	ActionText         string            `gorm:"type:varchar(100)" json:"actionText"`
	CreatedAt          time.Time         `gorm:"index:idx_recipient_created" json:"createdAt"`
	SentAt             *time.Time        `json:"sentAt"`
	DeliveredAt        *time.Time        `json:"deliveredAt"`
	ReadAt             *time.Time        `json:"readAt"`
	ExpiresAt          *time.Time        `json:"expiresAt"`

	NotificationType NotificationType       `gorm:"foreignKey:NotificationTypeID" json:"notificationType"`
	Deliveries       []NotificationDelivery `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"deliveries,omitempty"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// IsExpired 判断通知是否已过期
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// NotificationDelivery 单个渠道的投递记录, (notification, channel) 唯一
type NotificationDelivery struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NotificationID string     `gorm:"type:char(36);not null;uniqueIndex:idx_notif_channel" json:"notificationId"`
	ChannelID      uint64     `gorm:"not null;uniqueIndex:idx_notif_channel" json:"channelId"`
	Status         string     `gorm:"type:varchar(16);not null;index" json:"status"`
	ErrorMessage   string     `gorm:"type:text" json:"errorMessage"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int        `gorm:"not null" json:"maxAttempts"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"index" json:"updatedAt"`
	SentAt         *time.Time `json:"sentAt"`
	DeliveredAt    *time.Time `json:"deliveredAt"`
	FailedAt       *time.Time `json:"failedAt"`

	Channel NotificationChannel `gorm:"foreignKey:ChannelID" json:"channel"`
}

func (NotificationDelivery) TableName() string { return "notification_deliveries" }
