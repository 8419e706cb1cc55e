package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	ServiceUnavailable  = 503
	InternalServerError = 500
)

// 稳定的错误原因码, 通过 websocket error 帧下发给客户端
const (
	ReasonValidation     = "validation_error"
	ReasonContentTooLong = "content_too_long"
	ReasonUnknownType    = "unknown_type"
	ReasonInvalidFrame   = "invalid_frame"
	ReasonAccessDenied   = "access_denied"
	ReasonNotFound       = "not_found"
	ReasonTransient      = "transient_failure"
	ReasonInternal       = "internal_error"
)

// Validation
var (
	ErrParamInvalid             = errors.New("invalid parameters")
	ErrContentEmpty             = errors.New("message content must not be empty")
	ErrContentTooLong           = errors.New("message content exceeds the maximum length")
	ErrMessageTypeInvalid       = errors.New("unsupported message type")
	ErrReplyInvalid             = errors.New("reply_to must reference a message in the same conversation")
	ErrMessageDeleted           = errors.New("message has been deleted")
	ErrParticipantsInvalid      = errors.New("a conversation needs at least two distinct participants")
	ErrConversationTypeInvalid  = errors.New("unsupported conversation type")
	ErrConversationInactive     = errors.New("conversation is not active")
	ErrNotificationTypeUnknown  = errors.New("notification type is not configured")
	ErrNotificationTypeInactive = errors.New("notification type is disabled")
	ErrPriorityInvalid          = errors.New("unsupported notification priority")
	ErrChannelUnknown           = errors.New("unknown notification channel")
	ErrRecipientMissing         = errors.New("recipient_id is required")
	ErrSearchQueryEmpty         = errors.New("search query required")
	ErrFrameInvalid             = errors.New("invalid frame")
	ErrFrameTypeUnknown         = errors.New("unknown frame type")
	ErrFileNotSupported         = errors.New("file type not supported")
	ErrFileTooLarge             = errors.New("file exceeds the maximum size")
)

// AccessDenied
var (
	ErrNotConversationMember = errors.New("access denied: not a member of this conversation")
	ErrNotMessageSender      = errors.New("access denied: only the sender may modify this message")
	ErrNotJoined             = errors.New("access denied: conversation not joined on this connection")
	UnauthorizedError        = errors.New("unauthorized")
)

// NotFound
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// Transient / Internal
var (
	ErrStoreUnavailable = errors.New("storage temporarily unavailable, please retry")
	UnExpectedError     = errors.New("unexpected error, please retry later")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:             BadRequest,
	ErrContentEmpty:             BadRequest,
	ErrContentTooLong:           BadRequest,
	ErrMessageTypeInvalid:       BadRequest,
	ErrReplyInvalid:             BadRequest,
	ErrMessageDeleted:           BadRequest,
	ErrParticipantsInvalid:      BadRequest,
	ErrConversationTypeInvalid:  BadRequest,
	ErrConversationInactive:     BadRequest,
	ErrNotificationTypeUnknown:  BadRequest,
	ErrNotificationTypeInactive: BadRequest,
	ErrPriorityInvalid:          BadRequest,
	ErrChannelUnknown:           BadRequest,
	ErrRecipientMissing:         BadRequest,
	ErrSearchQueryEmpty:         BadRequest,
	ErrFrameInvalid:             BadRequest,
	ErrFrameTypeUnknown:         BadRequest,
	ErrFileNotSupported:         BadRequest,
	ErrFileTooLarge:             BadRequest,
	ErrNotConversationMember:    Forbidden,
	ErrNotMessageSender:         Forbidden,
	ErrNotJoined:                Forbidden,
	UnauthorizedError:           Unauthorized,
	ErrConversationNotFound:     NotFound,
	ErrMessageNotFound:          NotFound,
	ErrNotificationNotFound:     NotFound,
	ErrStoreUnavailable:         ServiceUnavailable,
	UnExpectedError:             InternalServerError,
}

// ReasonMap 细分原因码, 未列出的按 ErrorMap 的类别归类
var ReasonMap = map[error]string{
	ErrContentTooLong:          ReasonContentTooLong,
	ErrNotificationTypeUnknown: ReasonUnknownType,
	ErrFrameInvalid:            ReasonInvalidFrame,
	ErrFrameTypeUnknown:        ReasonInvalidFrame,
}

// Classify 解析 (可能被包装过的) 错误, 返回响应码与稳定原因码
func Classify(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	for target, code := range ErrorMap {
		if !errors.Is(err, target) {
			continue
		}
		if reason, ok := ReasonMap[target]; ok {
			return code, reason
		}
		return code, reasonOf(code)
	}
	return InternalServerError, ReasonInternal
}

// IsKnown 是否为已定义的业务错误
func IsKnown(err error) bool {
	for target := range ErrorMap {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func reasonOf(code int) string {
	switch code {
	case BadRequest:
		return ReasonValidation
	case Forbidden, Unauthorized:
		return ReasonAccessDenied
	case NotFound:
		return ReasonNotFound
	case ServiceUnavailable:
		return ReasonTransient
	default:
		return ReasonInternal
	}
}
