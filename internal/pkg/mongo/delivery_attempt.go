package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryAttemptModel 单次渠道发送尝试的审计记录
type DeliveryAttemptModel struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NotificationID string             `bson:"notification_id" json:"notificationId"`
	DeliveryID     uint64             `bson:"delivery_id" json:"deliveryId"`
	RecipientID    string             `bson:"recipient_id" json:"recipientId"`
	Channel        string             `bson:"channel" json:"channel"`
	Attempt        int                `bson:"attempt" json:"attempt"` // 第几次尝试, 从 1 开始
	Success        bool               `bson:"success" json:"success"`
	Error          string             `bson:"error,omitempty" json:"error,omitempty"`
	LatencyMs      int64              `bson:"latency_ms" json:"latencyMs"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}
