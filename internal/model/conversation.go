package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ConversationTypeDirect               = "direct"
	ConversationTypeJobInquiry           = "job_inquiry"
	ConversationTypeBidDiscussion        = "bid_discussion"
	ConversationTypeProjectCommunication = "project_communication"
	ConversationTypeSupport              = "support"
	ConversationTypeGeneral              = "general"
)

// ConversationTypes 合法的会话类型
var ConversationTypes = map[string]struct{}{
	ConversationTypeDirect:               {},
	ConversationTypeJobInquiry:           {},
	ConversationTypeBidDiscussion:        {},
	ConversationTypeProjectCommunication: {},
	ConversationTypeSupport:              {},
	ConversationTypeGeneral:              {},
}

// Conversation 会话主表
type Conversation struct {
	ID            string                      `gorm:"primaryKey;type:char(36)" json:"id"`
	Type          string                      `gorm:"type:varchar(32);not null;index" json:"type"`
	Title         string                      `gorm:"type:varchar(255)" json:"title"`
	Participants  datatypes.JSONSlice[string] `json:"participants"`
	DirectKey     *string                     `gorm:"type:varchar(160);uniqueIndex" json:"-"` // 单聊去重: uid1:uid2
	JobID         *string                     `gorm:"type:varchar(64);index" json:"jobId"`
	BidID         *string                     `gorm:"type:varchar(64);index" json:"bidId"`
	ProjectID     *string                     `gorm:"type:varchar(64);index" json:"projectId"`
	IsActive      bool                        `gorm:"not null;index" json:"isActive"`
	IsArchived    bool                        `gorm:"not null" json:"isArchived"`
	MaxMsgSeq     uint64                      `gorm:"not null;default:0" json:"maxMsgSeq"` // 序列号
	LastMessageAt *time.Time                  `gorm:"index" json:"lastMessageAt"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// HasParticipant 判断用户是否在参与者列表中
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ConversationMember 会话成员表
type ConversationMember struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID    string     `gorm:"type:char(36);uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID            string     `gorm:"type:varchar(64);uniqueIndex:idx_conv_user;index" json:"userId"`
	IsMuted           bool       `gorm:"not null" json:"isMuted"`
	IsArchived        bool       `gorm:"not null" json:"isArchived"`
	IsPinned          bool       `gorm:"not null" json:"isPinned"`
	UnreadCount       int64      `gorm:"not null;default:0" json:"unreadCount"`
	LastReadSeq       uint64     `gorm:"not null;default:0" json:"lastReadSeq"` // 已读水位
	LastReadMessageID *string    `gorm:"type:char(36)" json:"lastReadMessageId"`
	LastSeenAt        *time.Time `gorm:"index" json:"lastSeenAt"`
	JoinedAt          time.Time  `json:"joinedAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
