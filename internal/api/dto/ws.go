package dto

// 客户端上行帧类型
const (
	FrameSendMessage              = "send_message"
	FrameEditMessage              = "edit_message"
	FrameDeleteMessage            = "delete_message"
	FrameJoinConversation         = "join_conversation"
	FrameLeaveConversation        = "leave_conversation"
	FrameMarkRead                 = "mark_read"
	FrameMarkMessageRead          = "mark_message_read"
	FrameTypingStart              = "typing_start"
	FrameTypingStop               = "typing_stop"
	FrameMarkNotificationRead     = "mark_notification_read"
	FrameMarkAllNotificationsRead = "mark_all_notifications_read"
)

// 服务端下行帧类型
const (
	FrameConnectionEstablished = "connection_established"
	FrameMessage               = "message"
	FrameMessageUpdate         = "message_update"
	FrameReadReceipt           = "read_receipt"
	FrameTyping                = "typing"
	FrameNotification          = "notification"
	FrameError                 = "error"
	FrameSuccess               = "success"
)

const (
	UpdateTypeEdited  = "edited"
	UpdateTypeDeleted = "deleted"
)

// InboundFrame 上行帧, 字段按 type 取用
type InboundFrame struct {
	Type           string  `json:"type" validate:"required"`
	ConversationID string  `json:"conversation_id"`
	MessageID      string  `json:"message_id"`
	NotificationID string  `json:"notification_id"`
	Content        string  `json:"content"`
	MessageType    string  `json:"message_type"`
	ReplyTo        *string `json:"reply_to"`
	FileURL        *string `json:"file_url"`
	FileName       *string `json:"file_name"`
	FileSize       *int64  `json:"file_size"`
}

// FrameHeader 所有下行帧共有字段, event_id 供客户端去重
type FrameHeader struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

type ConnectionEstablishedFrame struct {
	FrameHeader
	UserID string `json:"user_id"`
}

type MessageFrame struct {
	FrameHeader
	Message *MessageDTO `json:"message"`
}

type MessageUpdateFrame struct {
	FrameHeader
	*MessageUpdateDTO
}

type ReadReceiptFrame struct {
	FrameHeader
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
}

type TypingFrame struct {
	FrameHeader
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type NotificationFrame struct {
	FrameHeader
	Notification *NotificationDTO `json:"notification"`
}

type ErrorFrame struct {
	FrameHeader
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessFrame struct {
	FrameHeader
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Message        string `json:"message,omitempty"`
}
