package sender

import (
	"context"
	"errors"
	"fmt"
)

// Message 渠道无关的投递内容
type Message struct {
	NotificationID string
	RecipientID    string
	Type           string
	Title          string
	Body           string
	Data           map[string]any
	Priority       string
	ActionURL      *string
	ActionText     string
	// Frame 已编码的站内推送帧
	Frame []byte
}

// Sender 单个渠道的发送器, 返回 nil 即视为该渠道已送达
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg *Message) error
}

// Permanent 标记不可重试的失败, 如收件地址缺失或服务商拒绝
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent 是否被 Permanent 包装
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }

// Set 按渠道名索引的发送器集合
type Set map[string]Sender

func NewSet(senders ...Sender) Set {
	s := make(Set, len(senders))
	for _, snd := range senders {
		s[snd.Channel()] = snd
	}
	return s
}

func (s Set) Get(channel string) (Sender, bool) {
	snd, ok := s[channel]
	return snd, ok
}
