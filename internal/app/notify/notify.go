// Package notify writes inbox rows and attempts device pushes.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/civicflow/internal/adapters/push"
	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/scoring"
	"github.com/okian/civicflow/internal/domain/types"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var statusMessages = map[model.Status]string{ //nolint:gochecknoglobals // fixed copy
	model.StatusAcknowledged: "Your report has been acknowledged and is being reviewed.",
	model.StatusResolved:     "Great news! Your report has been resolved.",
}

// Request describes one notification about a report.
type Request struct {
	RecipientID string
	ReportID    string
	ReportTitle string
	Status      model.Status
	Type        model.NotificationType
}

// Service owns the inbox and the push channel.
type Service struct {
	inbox  repository.NotificationStore
	users  repository.UserStore
	sender push.Sender
	now    func() time.Time
	log    logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSender sets the push sender. The default drops pushes.
func WithSender(s push.Sender) Option {
	return func(n *Service) {
		if s != nil {
			n.sender = s
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Service) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Service) {
		if l != nil {
			n.log = l
		}
	}
}

// New creates a notification service.
func New(inbox repository.NotificationStore, users repository.UserStore, opts ...Option) *Service {
	s := &Service{
		inbox:  inbox,
		users:  users,
		sender: push.Nop{},
		now:    time.Now,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compose builds the title and body for a request.
func Compose(req Request) (title, body string) {
	if req.Type == model.NotificationAcknowledgment {
		return "Report Acknowledged",
			fmt.Sprintf("Your report %q has been acknowledged by authorities and is now being processed.", req.ReportTitle)
	}
	if msg, ok := statusMessages[req.Status]; ok {
		return "Report Status Update", msg
	}
	return "Report Status Update",
		fmt.Sprintf("Your report status has been updated to %s.", req.Status)
}

// Dispatch durably writes the inbox row, then tries a push. Only the inbox
// write can fail the call.
func (s *Service) Dispatch(ctx context.Context, req Request) (*model.Notification, error) {
	if req.RecipientID == "" {
		return nil, fmt.Errorf("%w: empty recipient", model.ErrInvalidInput)
	}
	title, body := Compose(req)
	n := &model.Notification{
		ID:          uuid.NewString(),
		RecipientID: req.RecipientID,
		ReportID:    req.ReportID,
		Title:       title,
		Message:     body,
		Type:        req.Type,
		CreatedAt:   s.now(),
	}
	if err := s.inbox.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	metrics.RecordNotificationSaved()

	s.push(ctx, req, title, body)
	return n, nil
}

func (s *Service) push(ctx context.Context, req Request, title, body string) {
	u, err := s.users.Get(ctx, req.RecipientID)
	if err != nil || u.DeviceToken == "" {
		metrics.RecordPush("skipped")
		return
	}
	msg := push.Message{
		Token: u.DeviceToken,
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":     string(req.Type),
			"reportId": req.ReportID,
			"status":   strings.ToLower(string(req.Status)),
			"title":    req.ReportTitle,
		},
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		metrics.RecordPush("failed")
		s.log.Warn(ctx, "push failed",
			logger.String("recipientId", req.RecipientID),
			logger.String("reportId", req.ReportID),
			logger.Error(err))
		return
	}
	metrics.RecordPush("sent")
}

// Inbox returns one page newest first with the recipient's unread count.
func (s *Service) Inbox(ctx context.Context, recipientID string, page, size int) (types.Inbox, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	items, err := s.inbox.ListByRecipient(ctx, recipientID, page, size)
	if err != nil {
		return types.Inbox{}, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.inbox.UnreadCount(ctx, recipientID)
	if err != nil {
		return types.Inbox{}, fmt.Errorf("count unread: %w", err)
	}
	if items == nil {
		items = []model.Notification{}
	}
	return types.Inbox{Items: items, UnreadCount: unread, Page: page, Size: size}, nil
}

// MarkRead flags one notification as read. Repeating it is harmless.
func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.inbox.MarkRead(ctx, id, recipientID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.inbox.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// RegisterDeviceToken stores the push token, creating the user if needed.
func (s *Service) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return fmt.Errorf("%w: user and token are required", model.ErrInvalidInput)
	}
	now := s.now()
	if err := s.users.Ensure(ctx, userID, scoring.PeriodStart(now), now); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if err := s.users.SetDeviceToken(ctx, userID, token, now); err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	return nil
}
