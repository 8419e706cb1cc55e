package es

import (
	"Courier/internal/model"
	"time"
)

// MessageES 消息检索文档, 仅保存检索所需字段
type MessageES struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	MessageType    string    `json:"message_type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewMessageES(msg *model.Message) *MessageES {
	return &MessageES{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		MessageType:    msg.MessageType,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}
