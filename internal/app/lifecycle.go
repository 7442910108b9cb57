package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/civicflow/internal/adapters/broadcast"
	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	"github.com/okian/civicflow/internal/app/notify"
	"github.com/okian/civicflow/internal/domain/dedupe"
	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/scoring"
	"github.com/okian/civicflow/internal/domain/types"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

// Task names, used for metrics labels and dedupe keys.
const (
	taskClassify   = "classify-enqueue"
	taskChain      = "chain-record"
	taskNotify     = "notify"
	taskBroadcast  = "broadcast"
	taskRewards    = "rewards"
	taskAudit      = "audit"
	taskEnsureUser = "ensure-user"
)

// Submit creates a SUBMITTED report and spawns classification, the submitted
// milestone and a newReport broadcast.
func (s *Service) Submit(ctx context.Context, req types.SubmitReport) (*model.Report, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: description is required", model.ErrInvalidInput)
	}
	if req.SubmittedBy == "" {
		return nil, fmt.Errorf("%w: submitter is required", model.ErrInvalidInput)
	}
	loc, err := model.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := model.NewReport(uuid.NewString(), desc, strings.TrimSpace(req.Address), req.SubmittedBy, loc, req.MediaRefs, now)
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	metrics.RecordTransition(string(model.StatusSubmitted))
	s.logger.Info(ctx, "report submitted",
		logger.String("reportId", r.ID),
		logger.String("submittedBy", r.SubmittedBy))

	snapshot := r.Clone()
	s.spawn(ctx, taskEnsureUser, dedupe.Key(taskEnsureUser, r.SubmittedBy), func(ctx context.Context) error {
		return s.users.Ensure(ctx, snapshot.SubmittedBy, scoring.PeriodStart(now), now)
	})
	s.spawn(ctx, taskClassify, dedupe.Key(taskClassify, r.ID), func(ctx context.Context) error {
		return s.enqueueClassification(ctx, snapshot)
	})
	s.spawnChainRecord(ctx, model.MilestoneSubmitted, r.ID, r.SubmittedBy)
	s.spawnBroadcast(ctx, broadcast.TopicNewReport, snapshot)
	return r, nil
}

// Acknowledge moves a SUBMITTED report to ACKNOWLEDGED. Of concurrent callers
// exactly one wins; the rest get ErrInvalidTransition.
func (s *Service) Acknowledge(ctx context.Context, id, actor string) (*model.Report, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", model.ErrInvalidInput)
	}
	r, err := s.commit(ctx, id, s.policy.Acknowledge(actor, s.now()))
	if err != nil {
		return nil, err
	}

	s.spawnChainRecord(ctx, model.MilestoneAcknowledged, r.ID, actor)
	s.spawnNotify(ctx, r, model.NotificationAcknowledgment)
	s.spawnBroadcast(ctx, broadcast.TopicReportStatus, statusEvent(r))
	return r, nil
}

// Resolve moves a report to RESOLVED and credits the submitter and upvoters.
// A second resolve returns ErrConflict and credits nothing.
func (s *Service) Resolve(ctx context.Context, id, actor string, isAdmin bool) (*model.Report, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", model.ErrInvalidInput)
	}
	r, err := s.commit(ctx, id, s.policy.Resolve(actor, isAdmin, s.now()))
	if err != nil {
		return nil, err
	}

	snapshot := r.Clone()
	s.spawn(ctx, taskRewards, dedupe.Key(taskRewards, r.ID), func(ctx context.Context) error {
		return s.applyResolutionRewards(ctx, snapshot)
	})
	s.spawnChainRecord(ctx, model.MilestoneResolved, r.ID, actor)
	s.spawnNotify(ctx, r, model.NotificationStatusUpdate)
	s.spawnBroadcast(ctx, broadcast.TopicReportStatus, statusEvent(r))
	return r, nil
}

// Delete moves a live report to DELETED once the dwell time has passed. The
// only side effect is a local audit row.
func (s *Service) Delete(ctx context.Context, id, actor string) (types.Ack, error) {
	r, err := s.commit(ctx, id, s.policy.Delete(actor, s.now()))
	if err != nil {
		return types.Ack{}, err
	}
	s.spawn(ctx, taskAudit, dedupe.Key(taskAudit, string(model.MilestoneDeleted), r.ID), func(ctx context.Context) error {
		return s.recorder.RecordLocal(ctx, model.MilestoneDeleted, r.ID, actor)
	})
	return types.Ack{ID: r.ID, Deleted: true}, nil
}

// ToggleUpvote flips actor's upvote. Calling it twice restores the original state.
func (s *Service) ToggleUpvote(ctx context.Context, id, actor string) (types.UpvoteResult, error) {
	if actor == "" {
		return types.UpvoteResult{}, fmt.Errorf("%w: actor is required", model.ErrInvalidInput)
	}
	r, upvoted, err := s.reports.ToggleUpvote(ctx, id, actor, s.now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrInvalidState) {
			return types.UpvoteResult{}, err
		}
		return types.UpvoteResult{}, fmt.Errorf("toggle upvote: %w", err)
	}
	direction := "down"
	if upvoted {
		direction = "up"
	}
	metrics.RecordUpvoteToggle(direction)
	return types.UpvoteResult{Upvotes: r.Upvotes, Upvoted: upvoted}, nil
}

// MergeClassification writes classifier output into the report's
// classification fields whatever its status.
func (s *Service) MergeClassification(ctx context.Context, id string, res model.ClassificationResult) (*model.Report, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: report id is required", model.ErrInvalidInput)
	}
	r, err := s.reports.MergeClassification(ctx, id, res, s.now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("merge classification: %w", err)
	}
	metrics.RecordClassificationMerge()
	s.logger.Debug(ctx, "classification merged",
		logger.String("reportId", id),
		logger.String("department", res.Department),
		logger.Float64("confidence", res.Confidence))

	s.spawnBroadcast(ctx, broadcast.TopicReportClassified, r.Clone())
	return r, nil
}

func (s *Service) enqueueClassification(ctx context.Context, r *model.Report) error {
	err := s.classify.Push(ctx, mlqueue.Job{
		ReportID:    r.ID,
		Description: r.Description,
		ImageURL:    r.PrimaryMedia(),
		Title:       r.Title,
		Timestamp:   s.now(),
	})
	switch {
	case err == nil:
		metrics.RecordClassificationEnqueue("queued")
		return nil
	case errors.Is(err, mlqueue.ErrDisabled):
		metrics.RecordClassificationEnqueue("skipped")
		return nil
	default:
		// The report stays unclassified; the pool logs the failure.
		metrics.RecordClassificationEnqueue("failed")
		return fmt.Errorf("%w: classification enqueue: %w", model.ErrDownstreamDegraded, err)
	}
}

func (s *Service) spawnChainRecord(ctx context.Context, kind model.MilestoneKind, reportID, actor string) {
	s.spawn(ctx, taskChain, dedupe.Key(taskChain, string(kind), reportID), func(ctx context.Context) error {
		_, err := s.recorder.RecordEvent(ctx, kind, reportID, actor)
		// A synthetic ref is a normal outcome; the recorder already logged it.
		if errors.Is(err, model.ErrDownstreamDegraded) {
			return nil
		}
		return err
	})
}

func (s *Service) spawnNotify(ctx context.Context, r *model.Report, typ model.NotificationType) {
	req := notify.Request{
		RecipientID: r.SubmittedBy,
		ReportID:    r.ID,
		ReportTitle: r.Title,
		Status:      r.Status,
		Type:        typ,
	}
	s.spawn(ctx, taskNotify, dedupe.Key(taskNotify, string(r.Status), r.ID), func(ctx context.Context) error {
		_, err := s.notifier.Dispatch(ctx, req)
		return err
	})
}

func (s *Service) spawnBroadcast(ctx context.Context, topic string, payload any) {
	s.spawn(ctx, taskBroadcast, "", func(context.Context) error {
		s.emitter.Emit(topic, payload)
		return nil
	})
}

// StatusEvent is the reportStatusUpdated payload.
type StatusEvent struct {
	ReportID       string       `json:"reportId"`
	Status         model.Status `json:"status"`
	AcknowledgedBy string       `json:"acknowledgedBy,omitempty"`
	ResolvedBy     string       `json:"resolvedBy,omitempty"`
	UpdatedAt      int64        `json:"updatedAt"`
}

func statusEvent(r *model.Report) StatusEvent {
	return StatusEvent{
		ReportID:       r.ID,
		Status:         r.Status,
		AcknowledgedBy: r.AcknowledgedBy,
		ResolvedBy:     r.ResolvedBy,
		UpdatedAt:      r.UpdatedAt.UnixMilli(),
	}
}
