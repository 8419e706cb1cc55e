package consts

import "Courier/internal/model"

// NotificationTypeSeed 通知类型初始化数据
type NotificationTypeSeed struct {
	Name            string
	Description     string
	TitleTemplate   string
	MessageTemplate string
	DefaultChannels []string
}

// DefaultChannels 初始化渠道
var DefaultChannels = []string{model.ChannelWeb, model.ChannelEmail, model.ChannelSMS, model.ChannelPush}

// DefaultNotificationTypes 初始化通知类型, 默认仅走站内渠道
var DefaultNotificationTypes = []NotificationTypeSeed{
	{"new_message", "New Message", "You have a new message", "You received a message from {sender}", []string{model.ChannelWeb}},
	{"message_reply", "Message Reply", "Someone replied to your message", "You received a reply from {sender}", []string{model.ChannelWeb}},
	{"bid_created", "New Bid Received", "New bid received", "You received a new bid of ${amount} from {freelancer}", []string{model.ChannelWeb}},
	{"bid_accepted", "Bid Accepted", "Your bid was accepted", "Congratulations! Your bid of ${amount} was accepted", []string{model.ChannelWeb}},
	{"bid_rejected", "Bid Rejected", "Your bid was not selected", "Your bid was not selected for this project", []string{model.ChannelWeb}},
	{"bid_withdrawn", "Bid Withdrawn", "Bid withdrawn", "A freelancer withdrew their bid", []string{model.ChannelWeb}},
	{"job_published", "Job Published", "Job published successfully", "Your job \"{title}\" is now live", []string{model.ChannelWeb}},
	{"job_updated", "Job Updated", "Job updated", "Job \"{title}\" has been updated", []string{model.ChannelWeb}},
	{"job_expired", "Job Expired", "Job expired", "Your job \"{title}\" has expired", []string{model.ChannelWeb}},
	{"job_completed", "Job Completed", "Job completed", "Job \"{title}\" has been marked as completed", []string{model.ChannelWeb}},
	{"account_verified", "Account Verified", "Account verified", "Your account has been successfully verified", []string{model.ChannelWeb}},
	{"profile_updated", "Profile Updated", "Profile updated", "Your profile has been updated", []string{model.ChannelWeb}},
	{"payment_received", "Payment Received", "Payment received", "You received a payment of ${amount}", []string{model.ChannelWeb}},
	{"system_maintenance", "System Maintenance", "System maintenance", "The system will be under maintenance", []string{model.ChannelWeb}},
}
