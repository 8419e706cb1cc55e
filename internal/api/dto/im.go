package dto

import "time"

// StartConversationReq 发起会话, 调用方自动加入参与者
type StartConversationReq struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required" validate:"min=1,max=50,dive,required,max=64"`
	Type           string   `json:"type" validate:"omitempty,oneof=direct job_inquiry bid_discussion project_communication support general"`
	Title          string   `json:"title" validate:"max=255"`
	JobID          *string  `json:"job_id" validate:"omitempty,max=64"`
	BidID          *string  `json:"bid_id" validate:"omitempty,max=64"`
	ProjectID      *string  `json:"project_id" validate:"omitempty,max=64"`
}

// UpdateConversationReq 修改会话
type UpdateConversationReq struct {
	Title      *string `json:"title" validate:"omitempty,max=255"`
	IsActive   *bool   `json:"is_active"`
	IsArchived *bool   `json:"is_archived"`
}

// UpdateMemberReq 修改个人会话设置
type UpdateMemberReq struct {
	IsMuted    *bool `json:"is_muted"`
	IsArchived *bool `json:"is_archived"`
	IsPinned   *bool `json:"is_pinned"`
}

// ConversationQuery 会话列表筛选
type ConversationQuery struct {
	Type     string `form:"type"`
	JobID    string `form:"job_id"`
	BidID    string `form:"bid_id"`
	Archived *bool  `form:"archived"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// SendMessageReq 发送消息
type SendMessageReq struct {
	ConversationID string  `json:"conversation_id"`
	Content        string  `json:"content"`
	MessageType    string  `json:"message_type" validate:"omitempty,oneof=text file image system"`
	ReplyTo        *string `json:"reply_to"`
	FileURL        *string `json:"file_url" validate:"omitempty,url,max=512"`
	FileName       *string `json:"file_name" validate:"omitempty,max=255"`
	FileSize       *int64  `json:"file_size" validate:"omitempty,min=0"`
}

// EditMessageReq 编辑消息
type EditMessageReq struct {
	Content string `json:"content" binding:"required"`
}

// HistoryQuery 历史消息分页, before_seq 为 0 时从最新开始
type HistoryQuery struct {
	BeforeSeq uint64 `form:"before_seq"`
	PageSize  int    `form:"page_size"`
}

// SearchQuery 消息搜索
type SearchQuery struct {
	Q              string `form:"q"`
	ConversationID string `form:"conversation_id"`
}

// MessageDTO 消息明细
type MessageDTO struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Seq            uint64     `json:"seq"`
	SenderID       string     `json:"sender_id"`
	MessageType    string     `json:"message_type"`
	Content        string     `json:"content"`
	FileURL        *string    `json:"file_url,omitempty"`
	FileName       *string    `json:"file_name,omitempty"`
	FileSize       *int64     `json:"file_size,omitempty"`
	ReplyToID      *string    `json:"reply_to,omitempty"`
	IsEdited       bool       `json:"is_edited"`
	IsDeleted      bool       `json:"is_deleted"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ConversationDTO 会话及当前用户的成员状态
type ConversationDTO struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Title             string     `json:"title"`
	Participants      []string   `json:"participants"`
	JobID             *string    `json:"job_id,omitempty"`
	BidID             *string    `json:"bid_id,omitempty"`
	ProjectID         *string    `json:"project_id,omitempty"`
	IsActive          bool       `json:"is_active"`
	IsArchived        bool       `json:"is_archived"`
	MaxMsgSeq         uint64     `json:"max_msg_seq"`
	LastMessageAt     *time.Time `json:"last_message_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UnreadCount       int64      `json:"unread_count"`
	IsMuted           bool       `json:"is_muted"`
	IsPinned          bool       `json:"is_pinned"`
	MemberArchived    bool       `json:"member_archived"`
	LastReadSeq       uint64     `json:"last_read_seq"`
	LastReadMessageID *string    `json:"last_read_message_id,omitempty"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
}

// MessageUpdateDTO 消息编辑/删除推送
type MessageUpdateDTO struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UpdateType     string    `json:"update_type"`
	Content        *string   `json:"content,omitempty"`
	IsEdited       bool      `json:"is_edited"`
	IsDeleted      bool      `json:"is_deleted"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ParticipantDTO 会话参与者
type ParticipantDTO struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsOnline  bool   `json:"is_online"`
}

// IMStatsDTO 会话统计
type IMStatsDTO struct {
	TotalConversations  int64 `json:"total_conversations"`
	UnreadConversations int64 `json:"unread_conversations"`
	TotalUnreadMessages int64 `json:"total_unread_messages"`
}

// ReadResultDTO 标记已读结果
type ReadResultDTO struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Marked         int64  `json:"marked"`
	UnreadCount    int64  `json:"unread_count"`
}
