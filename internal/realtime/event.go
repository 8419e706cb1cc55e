package realtime

import (
	"Courier/internal/api/dto"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Envelope 一次广播: 目标组, 可选的排除组与排除用户, 以及已编码的帧
type Envelope struct {
	Group       GroupKey        `json:"group"`
	ExceptGroup *GroupKey       `json:"except_group,omitempty"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// NewHeader 生成带唯一 event_id 的帧头
func NewHeader(frameType string) dto.FrameHeader {
	return dto.FrameHeader{Type: frameType, EventID: uuid.NewString()}
}

// Encode 编码下行帧
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// NewEnvelope 编码帧并构造投递到 group 的信封
func NewEnvelope(group GroupKey, frame any) (*Envelope, error) {
	payload, err := Encode(frame)
	if err != nil {
		return nil, err
	}
	return &Envelope{Group: group, Payload: payload}, nil
}

// Except 跳过同时在 other 组内的连接
func (e *Envelope) Except(other GroupKey) *Envelope {
	e.ExceptGroup = &other
	return e
}

// Exclude 跳过某用户的所有连接
func (e *Envelope) Exclude(userID string) *Envelope {
	e.ExcludeUser = userID
	return e
}

// Retarget 复用同一帧投递到其他组
func (e *Envelope) Retarget(group GroupKey) *Envelope {
	return &Envelope{Group: group, ExceptGroup: e.ExceptGroup, ExcludeUser: e.ExcludeUser, Payload: e.Payload}
}
