package consts

// UserIDKey context / gin 中的用户标识键
const UserIDKey = "user_id"

const (
	// NewMessageNotificationType 新消息通知类型
	NewMessageNotificationType = "new_message"
	// NewMessageTitle 新消息通知标题
	NewMessageTitle = "New Message"
	// NewMessagePreviewRunes 通知正文中消息预览的最大字符数
	NewMessagePreviewRunes = 100
	DirectMessageTitle     = "Direct Message"
	ViewMessageText        = "View Message"
)

// 附件允许的 MIME 前缀
const (
	MimePrefixImage = "image/"
	MimePrefixVideo = "video/"
	MimePrefixAudio = "audio/"
)

var AttachmentMimePrefixes = []string{
	MimePrefixImage,
	MimePrefixVideo,
	MimePrefixAudio,
	"application/pdf",
	"application/zip",
	"text/plain",
}
