package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Users is the MongoDB UserStore.
type Users struct {
	col *mongo.Collection
}

var _ repository.UserStore = (*Users)(nil)

func (s *Users) Ensure(ctx context.Context, id string, periodStart, at time.Time) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$setOnInsert": bson.M{
		"lifetimePoints":   int64(0),
		"monthlyPoints":    int64(0),
		"lastMonthlyReset": periodStart,
		"createdAt":        at,
		"updatedAt":        at,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *Users) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// AddPoints runs as a single pipeline upsert. Every expression in one $set
// stage sees the pre-update document, so the stale-period check and the
// credit cannot interleave with a concurrent reset.
func (s *Users) AddPoints(ctx context.Context, d model.PointsDelta, periodStart, at time.Time) (*model.User, error) {
	lastReset := bson.M{"$ifNull": bson.A{"$lastMonthlyReset", time.Unix(0, 0).UTC()}}
	stale := bson.M{"$lt": bson.A{lastReset, periodStart}}
	monthlyBase := bson.M{"$cond": bson.A{stale, 0, bson.M{"$ifNull": bson.A{"$monthlyPoints", 0}}}}

	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "lifetimePoints", Value: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$lifetimePoints", 0}}, d.Lifetime}}},
		{Key: "monthlyPoints", Value: bson.M{"$add": bson.A{monthlyBase, d.Monthly}}},
		{Key: "lastMonthlyReset", Value: bson.M{"$max": bson.A{lastReset, periodStart}}},
		{Key: "createdAt", Value: bson.M{"$ifNull": bson.A{"$createdAt", at}}},
		{Key: "updatedAt", Value: at},
	}}}}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var u model.User
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": d.UserID}, update, opts).Decode(&u); err != nil {
		return nil, fmt.Errorf("add points: %w", err)
	}
	return &u, nil
}

func (s *Users) ResetMonthly(ctx context.Context, periodStart, at time.Time) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"lastMonthlyReset": nil},
		bson.M{"lastMonthlyReset": bson.M{"$lt": periodStart}},
	}}
	res, err := s.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"monthlyPoints":    int64(0),
		"lastMonthlyReset": periodStart,
		"updatedAt":        at,
	}})
	if err != nil {
		return 0, fmt.Errorf("reset monthly: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Users) SetDeviceToken(ctx context.Context, id, token string, at time.Time) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"deviceToken": token, "updatedAt": at}})
	if err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
	}
	return nil
}

func (s *Users) List(ctx context.Context) ([]model.User, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]model.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}
