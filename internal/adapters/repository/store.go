// Package repository defines the persistence contracts for reports, users,
// notifications and audit entries, plus in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/civicflow/internal/domain/lifecycle"
	"github.com/okian/civicflow/internal/domain/model"
)

// ReportStore is the authoritative report record. Every mutation is a single
// atomic operation against one report.
type ReportStore interface {
	Create(ctx context.Context, r *model.Report) error

	// Get returns ErrNotFound (wrapping model.ErrNotFound) for unknown ids.
	Get(ctx context.Context, id string) (*model.Report, error)

	// Transition applies t only if its preconditions hold at write time. When
	// they do not, it returns the current report together with ErrConditionFailed.
	Transition(ctx context.Context, id string, t lifecycle.Transition) (*model.Report, error)

	// ToggleUpvote flips actor's membership in the upvoter set and moves the
	// count by one. Deleted reports return model.ErrInvalidState.
	ToggleUpvote(ctx context.Context, id, actor string, at time.Time) (r *model.Report, upvoted bool, err error)

	// MergeClassification writes only the classification fields. It never
	// reads or writes status.
	MergeClassification(ctx context.Context, id string, res model.ClassificationResult, at time.Time) (*model.Report, error)

	// List returns one page newest first plus the total match count. DELETED
	// reports are excluded unless the filter asks for them.
	List(ctx context.Context, f model.ReportFilter, page, limit int) ([]*model.Report, int64, error)

	// Near returns live reports within radius meters, nearest first.
	Near(ctx context.Context, lat, lng, radiusMeters float64, department string, limit int) ([]*model.Report, error)

	// WithinBounds returns live reports inside the south-west/north-east box.
	WithinBounds(ctx context.Context, sw, ne model.Location, limit int) ([]*model.Report, error)

	Stats(ctx context.Context) (model.ReportStats, error)

	// ResolvedCountsSince counts RESOLVED reports per submitter resolved at or
	// after since.
	ResolvedCountsSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// UserStore is the points ledger.
type UserStore interface {
	// Ensure creates the user with zero points if absent.
	Ensure(ctx context.Context, id string, periodStart, at time.Time) error

	Get(ctx context.Context, id string) (*model.User, error)

	// AddPoints credits d atomically. If the user's last monthly reset predates
	// periodStart, monthly points are zeroed before the credit lands.
	AddPoints(ctx context.Context, d model.PointsDelta, periodStart, at time.Time) (*model.User, error)

	// ResetMonthly zeroes monthly points for users not yet reset for
	// periodStart and returns how many changed. Re-running is a no-op.
	ResetMonthly(ctx context.Context, periodStart, at time.Time) (int64, error)

	SetDeviceToken(ctx context.Context, id, token string, at time.Time) error

	List(ctx context.Context) ([]model.User, error)
}

// NotificationStore is the per-user inbox.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) error

	// ListByRecipient returns a page newest first. page starts at 1.
	ListByRecipient(ctx context.Context, recipientID string, page, size int) ([]model.Notification, error)

	UnreadCount(ctx context.Context, recipientID string) (int64, error)

	// MarkRead is idempotent. Unknown ids and other users' rows are ErrNotFound.
	MarkRead(ctx context.Context, id, recipientID string) error

	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// AuditStore keeps one row per ledger milestone attempt.
type AuditStore interface {
	Append(ctx context.Context, e *model.AuditEntry) error
	ListByReport(ctx context.Context, reportID string) ([]model.AuditEntry, error)
}
