package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/lifecycle"
	"github.com/okian/civicflow/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// upvote toggles retry when a concurrent toggle by the same actor slips
// between the pull and add attempts.
const maxToggleAttempts = 3

// Reports is the MongoDB ReportStore.
type Reports struct {
	col *mongo.Collection
}

var _ repository.ReportStore = (*Reports)(nil)

func notFound(id string) error {
	return fmt.Errorf("%w: report %s", repository.ErrNotFound, id)
}

func (s *Reports) Create(ctx context.Context, r *model.Report) error {
	if _, err := s.col.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: report %s", repository.ErrDuplicate, r.ID)
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Reports) Get(ctx context.Context, id string) (*model.Report, error) {
	var r model.Report
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &r, nil
}

// transitionFilter expresses lifecycle.Transition.Matches as a query.
func transitionFilter(id string, t lifecycle.Transition) bson.D {
	f := bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: bson.M{"$in": t.From}},
	}
	if t.Submitter != "" {
		f = append(f, bson.E{Key: "submittedBy", Value: t.Submitter})
	}
	if !t.AcknowledgedBefore.IsZero() {
		f = append(f, bson.E{Key: "$or", Value: bson.A{
			bson.M{"acknowledgedAt": nil},
			bson.M{"acknowledgedAt": bson.M{"$lte": t.AcknowledgedBefore}},
		}})
	}
	return f
}

// transitionUpdate expresses lifecycle.Transition.Apply as an update pipeline
// so "stamp acknowledgedAt only if missing" happens in the same write.
func transitionUpdate(t lifecycle.Transition) mongo.Pipeline {
	set := bson.D{
		{Key: "status", Value: t.To},
		{Key: "updatedAt", Value: t.At},
	}
	actor := bson.M{"$literal": t.Actor}
	switch t.To {
	case model.StatusAcknowledged:
		set = append(set,
			bson.E{Key: "acknowledgedAt", Value: t.At},
			bson.E{Key: "acknowledgedBy", Value: actor})
	case model.StatusResolved:
		set = append(set,
			bson.E{Key: "acknowledgedAt", Value: bson.M{"$ifNull": bson.A{"$acknowledgedAt", t.At}}},
			bson.E{Key: "acknowledgedBy", Value: bson.M{"$ifNull": bson.A{"$acknowledgedBy", actor}}},
			bson.E{Key: "resolvedAt", Value: t.At},
			bson.E{Key: "resolvedBy", Value: actor})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func (s *Reports) Transition(ctx context.Context, id string, t lifecycle.Transition) (*model.Report, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r model.Report
	err := s.col.FindOneAndUpdate(ctx, transitionFilter(id, t), transitionUpdate(t), opts).Decode(&r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transition report: %w", err)
	}
	cur, gerr := s.Get(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return cur, fmt.Errorf("%w: %s report %s", repository.ErrConditionFailed, t.Action, id)
}

func (s *Reports) ToggleUpvote(ctx context.Context, id, actor string, at time.Time) (*model.Report, bool, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	live := bson.M{"$ne": model.StatusDeleted}

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		var r model.Report
		err := s.col.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "status": live, "upvotedBy": actor},
			bson.M{
				"$pull": bson.M{"upvotedBy": actor},
				"$inc":  bson.M{"upvotes": -1},
				"$set":  bson.M{"updatedAt": at},
			}, opts).Decode(&r)
		if err == nil {
			return &r, false, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, fmt.Errorf("remove upvote: %w", err)
		}

		err = s.col.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "status": live, "upvotedBy": bson.M{"$ne": actor}},
			bson.M{
				"$addToSet": bson.M{"upvotedBy": actor},
				"$inc":      bson.M{"upvotes": 1},
				"$set":      bson.M{"updatedAt": at},
			}, opts).Decode(&r)
		if err == nil {
			return &r, true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, fmt.Errorf("add upvote: %w", err)
		}

		cur, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, false, gerr
		}
		if cur.Status == model.StatusDeleted {
			return nil, false, fmt.Errorf("%w: report %s is deleted", model.ErrInvalidState, id)
		}
	}
	return nil, false, fmt.Errorf("%w: upvote on report %s kept racing", repository.ErrConditionFailed, id)
}

func (s *Reports) MergeClassification(ctx context.Context, id string, res model.ClassificationResult, at time.Time) (*model.Report, error) {
	set := bson.M{
		"department":   res.Department,
		"severity":     res.Severity,
		"mlDepartment": res.Department,
		"mlSeverity":   res.Severity,
		"mlConfidence": res.Confidence,
		"classified":   true,
		"updatedAt":    at,
	}
	if res.UsableTitle() {
		set["title"] = res.Title
		set["mlTitle"] = res.Title
	}
	if len(res.Conflicts) > 0 {
		set["conflicts"] = res.Conflicts
	}

	var r model.Report
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("merge classification: %w", err)
	}
	return &r, nil
}

func listFilter(f model.ReportFilter) bson.M {
	filter := bson.M{}
	if f.Status == "" {
		filter["status"] = bson.M{"$ne": model.StatusDeleted}
	} else {
		filter["status"] = f.Status
	}
	if f.Department != "" {
		filter["department"] = f.Department
	}
	if f.Severity != "" {
		filter["severity"] = f.Severity
	}
	if f.SubmittedBy != "" {
		filter["submittedBy"] = f.SubmittedBy
	}
	return filter
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]*model.Report, error) {
	defer cur.Close(ctx)
	out := make([]*model.Report, 0)
	for cur.Next(ctx) {
		var r model.Report
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *Reports) List(ctx context.Context, f model.ReportFilter, page, limit int) ([]*model.Report, int64, error) {
	filter := listFilter(f)
	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(skipFor(page, limit)).
		SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	items, err := decodeAll(ctx, cur)
	return items, total, err
}

func (s *Reports) Near(ctx context.Context, lat, lng, radiusMeters float64, department string, limit int) ([]*model.Report, error) {
	filter := bson.M{
		"status": bson.M{"$ne": model.StatusDeleted},
		"location": bson.M{"$near": bson.M{
			"$geometry":    bson.M{"type": "Point", "coordinates": bson.A{lng, lat}},
			"$maxDistance": radiusMeters,
		}},
	}
	if department != "" {
		filter["department"] = department
	}
	cur, err := s.col.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("near reports: %w", err)
	}
	return decodeAll(ctx, cur)
}

func (s *Reports) WithinBounds(ctx context.Context, sw, ne model.Location, limit int) ([]*model.Report, error) {
	ring := bson.A{
		bson.A{sw.Lng(), sw.Lat()},
		bson.A{ne.Lng(), sw.Lat()},
		bson.A{ne.Lng(), ne.Lat()},
		bson.A{sw.Lng(), ne.Lat()},
		bson.A{sw.Lng(), sw.Lat()},
	}
	filter := bson.M{
		"status": bson.M{"$ne": model.StatusDeleted},
		"location": bson.M{"$geoWithin": bson.M{
			"$geometry": bson.M{"type": "Polygon", "coordinates": bson.A{ring}},
		}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("bounds reports: %w", err)
	}
	return decodeAll(ctx, cur)
}

func (s *Reports) Stats(ctx context.Context) (model.ReportStats, error) {
	var st model.ReportStats
	var err error
	if st.Total, err = s.col.CountDocuments(ctx, bson.M{"status": bson.M{"$ne": model.StatusDeleted}}); err != nil {
		return st, fmt.Errorf("count total: %w", err)
	}
	active := bson.M{"status": bson.M{"$in": bson.A{model.StatusSubmitted, model.StatusAcknowledged}}}
	if st.Active, err = s.col.CountDocuments(ctx, active); err != nil {
		return st, fmt.Errorf("count active: %w", err)
	}
	if st.Resolved, err = s.col.CountDocuments(ctx, bson.M{"status": model.StatusResolved}); err != nil {
		return st, fmt.Errorf("count resolved: %w", err)
	}
	return st, nil
}

func (s *Reports) ResolvedCountsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": model.StatusResolved, "resolvedAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$submittedBy", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate resolved: %w", err)
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			UserID string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode resolved count: %w", err)
		}
		counts[row.UserID] = row.Count
	}
	return counts, cur.Err()
}
