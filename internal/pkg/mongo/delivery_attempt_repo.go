package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const deliveryAttemptCollection = "delivery_attempts"

type DeliveryAttemptRepo interface {
	Record(ctx context.Context, attempt *DeliveryAttemptModel) error
	ListByNotification(ctx context.Context, notificationID string, limit int64) ([]*DeliveryAttemptModel, error)
}

type deliveryAttemptRepoImpl struct {
	col *mongo.Collection
}

func NewDeliveryAttemptRepo(db *mongo.Database) DeliveryAttemptRepo {
	return &deliveryAttemptRepoImpl{
		col: db.Collection(deliveryAttemptCollection),
	}
}

// Record 追加一条尝试记录
func (s *deliveryAttemptRepoImpl) Record(ctx context.Context, attempt *DeliveryAttemptModel) error {
	_, err := s.col.InsertOne(ctx, attempt)
	return err
}

// ListByNotification 按时间正序返回某通知的全部尝试
func (s *deliveryAttemptRepoImpl) ListByNotification(ctx context.Context, notificationID string, limit int64) ([]*DeliveryAttemptModel, error) {
	filter := bson.M{"notification_id": notificationID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*DeliveryAttemptModel
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}
