package dto

import "time"

// CreateNotificationReq 其他业务服务创建通知的入参
type CreateNotificationReq struct {
	RecipientID string         `json:"recipient_id" validate:"required,max=64"`
	Type        string         `json:"type" validate:"required,max=64"`
	Title       string         `json:"title" validate:"max=200"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data"`
	Priority    string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ActionURL   *string        `json:"action_url" validate:"omitempty,max=512"`
	ActionText  string         `json:"action_text" validate:"max=100"`
	ExpiresAt   *time.Time     `json:"expires_at"`
}

// NotificationQuery 通知列表筛选
type NotificationQuery struct {
	Status   string `form:"status"`
	Type     string `form:"type"`
	Priority string `form:"priority"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// NotificationDTO 通知
type NotificationDTO struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`
	ActionURL   *string        `json:"action_url"`
	ActionText  string         `json:"action_text"`
	CreatedAt   time.Time      `json:"created_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// NotificationStatsDTO 通知统计
type NotificationStatsDTO struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
	Read   int64 `json:"read"`
}

// DeliveryDTO 单渠道投递记录
type DeliveryDTO struct {
	ID           uint64     `json:"id"`
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// DeliveryAttemptDTO 投递尝试审计
type DeliveryAttemptDTO struct {
	DeliveryID uint64    `json:"delivery_id"`
	Channel    string    `json:"channel"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryReportDTO 通知投递详情
type DeliveryReportDTO struct {
	NotificationID string                `json:"notification_id"`
	Status         string                `json:"status"`
	Deliveries     []*DeliveryDTO        `json:"deliveries"`
	Attempts       []*DeliveryAttemptDTO `json:"attempts,omitempty"`
}

// PreferenceDTO 某类通知的偏好, Default 表示未设置个人偏好
type PreferenceDTO struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	IsEnabled   bool     `json:"is_enabled"`
	Channels    []string `json:"channels"`
	Default     bool     `json:"default"`
}

// UpdatePreferenceReq 修改通知偏好
type UpdatePreferenceReq struct {
	IsEnabled *bool    `json:"is_enabled" binding:"required"`
	Channels  []string `json:"channels" validate:"max=4,dive,oneof=web email sms push"`
}

// MarkAllResultDTO 全部已读结果
type MarkAllResultDTO struct {
	Updated int64 `json:"updated"`
}
