package mongostore

import (
	"context"
	"fmt"

	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Notifications is the MongoDB NotificationStore.
type Notifications struct {
	col *mongo.Collection
}

var _ repository.NotificationStore = (*Notifications)(nil)

func (s *Notifications) Insert(ctx context.Context, n *model.Notification) error {
	if _, err := s.col.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: notification %s", repository.ErrDuplicate, n.ID)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Notifications) ListByRecipient(ctx context.Context, recipientID string, page, size int) ([]model.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skipFor(page, size)).
		SetLimit(int64(size))
	cur, err := s.col.Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]model.Notification, 0, size)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return out, nil
}

func (s *Notifications) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"recipientId": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *Notifications) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "recipientId": recipientID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: notification %s", repository.ErrNotFound, id)
	}
	return nil
}

func (s *Notifications) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.col.UpdateMany(ctx,
		bson.M{"recipientId": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}
