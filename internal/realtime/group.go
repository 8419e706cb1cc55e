package realtime

import "fmt"

// GroupKind 广播组类别
type GroupKind uint8

const (
	KindConversation GroupKind = iota + 1
	KindUser
)

// GroupKey 广播组标识, 由类别与 ID 组成, 不同类别的相同 ID 互不冲突
type GroupKey struct {
	Kind GroupKind `json:"kind"`
	ID   string    `json:"id"`
}

// ConversationGroup 会话组, 订阅者为当前打开该会话的连接
func ConversationGroup(conversationID string) GroupKey {
	return GroupKey{Kind: KindConversation, ID: conversationID}
}

// UserGroup 用户个人通知组, 用户的每个连接都会加入
func UserGroup(userID string) GroupKey {
	return GroupKey{Kind: KindUser, ID: userID}
}

func (k GroupKey) IsZero() bool {
	return k.Kind == 0 || k.ID == ""
}

func (k GroupKey) String() string {
	switch k.Kind {
	case KindConversation:
		return "conversation:" + k.ID
	case KindUser:
		return "user:" + k.ID
	default:
		return fmt.Sprintf("unknown(%d):%s", k.Kind, k.ID)
	}
}
