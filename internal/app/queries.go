package service

import (
	"context"
	"fmt"

	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/types"
)

const (
	defaultPage         = 1
	defaultListLimit    = 20
	maxListLimit        = 100
	defaultNearbyRadius = 500.0
	maxNearbyRadius     = 50_000.0
	nearbyLimit         = 50
	boundsLimit         = 100
)

// GetReport returns one report, deleted ones included.
func (s *Service) GetReport(ctx context.Context, id string) (*model.Report, error) {
	return s.reports.Get(ctx, id)
}

// ListReports returns one page newest first.
func (s *Service) ListReports(ctx context.Context, f model.ReportFilter, page, limit int) (types.ReportPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return types.ReportPage{}, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, f.Status)
	}
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, total, err := s.reports.List(ctx, f, page, limit)
	if err != nil {
		return types.ReportPage{}, fmt.Errorf("list reports: %w", err)
	}
	if items == nil {
		items = []*model.Report{}
	}
	return types.ReportPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Nearby returns live reports within radius meters of the point, nearest
// first. A non-positive radius means the default.
func (s *Service) Nearby(ctx context.Context, lat, lng, radius float64, department string) ([]*model.Report, error) {
	if _, err := model.NewPoint(lat, lng); err != nil {
		return nil, err
	}
	if radius <= 0 {
		radius = defaultNearbyRadius
	}
	if radius > maxNearbyRadius {
		radius = maxNearbyRadius
	}
	out, err := s.reports.Near(ctx, lat, lng, radius, department, nearbyLimit)
	if err != nil {
		return nil, fmt.Errorf("nearby reports: %w", err)
	}
	return nonNil(out), nil
}

// InBounds returns live reports inside the box spanned by the south-west and
// north-east corners.
func (s *Service) InBounds(ctx context.Context, swLat, swLng, neLat, neLng float64) ([]*model.Report, error) {
	sw, err := model.NewPoint(swLat, swLng)
	if err != nil {
		return nil, err
	}
	ne, err := model.NewPoint(neLat, neLng)
	if err != nil {
		return nil, err
	}
	if swLat > neLat {
		return nil, fmt.Errorf("%w: south-west corner is north of north-east corner", model.ErrInvalidInput)
	}
	out, err := s.reports.WithinBounds(ctx, sw, ne, boundsLimit)
	if err != nil {
		return nil, fmt.Errorf("reports in bounds: %w", err)
	}
	return nonNil(out), nil
}

// Stats summarizes live reports.
func (s *Service) Stats(ctx context.Context) (model.ReportStats, error) {
	st, err := s.reports.Stats(ctx)
	if err != nil {
		return model.ReportStats{}, fmt.Errorf("report stats: %w", err)
	}
	return st, nil
}

// AuditTrail lists every ledger attempt recorded for a report, oldest first.
func (s *Service) AuditTrail(ctx context.Context, reportID string) ([]model.AuditEntry, error) {
	if _, err := s.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	return entries, nil
}

// QueueStatus reports the classification backlog.
func (s *Service) QueueStatus(ctx context.Context) (types.QueueStatus, error) {
	n, err := s.classify.Len(ctx)
	if err != nil {
		return types.QueueStatus{Mode: s.classify.Mode()}, fmt.Errorf("%w: queue length: %w", model.ErrDownstreamDegraded, err)
	}
	return types.QueueStatus{Mode: s.classify.Mode(), QueueLength: n}, nil
}

// Inbox returns a page of the recipient's notifications.
func (s *Service) Inbox(ctx context.Context, recipientID string, page, size int) (types.Inbox, error) {
	return s.notifier.Inbox(ctx, recipientID, page, size)
}

// MarkRead flags one of the recipient's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	return s.notifier.MarkRead(ctx, id, recipientID)
}

// MarkAllRead flags all of the recipient's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.notifier.MarkAllRead(ctx, recipientID)
}

// RegisterDeviceToken stores where pushes for the user go.
func (s *Service) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	return s.notifier.RegisterDeviceToken(ctx, userID, token)
}

func nonNil(rs []*model.Report) []*model.Report {
	if rs == nil {
		return []*model.Report{}
	}
	return rs
}
