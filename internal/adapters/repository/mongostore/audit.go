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

// Audit is the MongoDB AuditStore.
type Audit struct {
	col *mongo.Collection
}

var _ repository.AuditStore = (*Audit)(nil)

func (s *Audit) Append(ctx context.Context, e *model.AuditEntry) error {
	if _, err := s.col.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Audit) ListByReport(ctx context.Context, reportID string) ([]model.AuditEntry, error) {
	cur, err := s.col.Find(ctx, bson.M{"reportId": reportID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	out := make([]model.AuditEntry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode audit: %w", err)
	}
	return out, nil
}
