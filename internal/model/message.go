package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

var MessageTypes = map[string]struct{}{
	MessageTypeText:   {},
	MessageTypeFile:   {},
	MessageTypeImage:  {},
	MessageTypeSystem: {},
}

// Message 消息表, 内容不可变, 仅状态位可修改
type Message struct {
	ID             string     `gorm:"primaryKey;type:char(36)" json:"id"`
	ConversationID string     `gorm:"type:char(36);not null;uniqueIndex:idx_conv_seq" json:"conversationId"`
	Seq            uint64     `gorm:"not null;uniqueIndex:idx_conv_seq" json:"seq"`
	SenderID       string     `gorm:"type:varchar(64);not null;index" json:"senderId"`
	MessageType    string     `gorm:"type:varchar(16);not null" json:"messageType"`
	Content        string     `gorm:"type:text" json:"content"`
	FileURL        *string    `gorm:"type:varchar(512)" json:"fileUrl"`
	FileName       *string    `gorm:"type:varchar(255)" json:"fileName"`
	FileSize       *int64     `json:"fileSize"`
	ReplyToID      *string    `gorm:"type:char(36);index" json:"replyToId"`
	IsEdited       bool       `gorm:"not null" json:"isEdited"`
	IsDeleted      bool       `gorm:"not null;index" json:"isDeleted"`
	EditedAt       *time.Time `json:"editedAt"`
	DeletedAt      *time.Time `gorm:"index" json:"deletedAt"`
	CreatedAt      time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageReadStatus 消息已读记录, (message, user) 唯一
type MessageReadStatus struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID string    `gorm:"type:char(36);not null;uniqueIndex:idx_msg_user" json:"messageId"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_msg_user;index" json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

func (MessageReadStatus) TableName() string { return "message_read_statuses" }
